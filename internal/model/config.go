package model

import (
	"bytes"
	"encoding/json"
)

// SimulationConfig is the closed set of scenario configurations. Only the
// four variants in this package implement it.
type SimulationConfig interface {
	LabType() LabType
	Accept(v ConfigVisitor)
}

// ConfigVisitor has one method per config variant. Adding a variant adds a
// method here, so every validator and scorer stops compiling until it
// handles the new case.
type ConfigVisitor interface {
	VisitPhishingEmail(c *PhishingEmailConfig)
	VisitSuspiciousLinks(c *SuspiciousLinksConfig)
	VisitPasswordStrength(c *PasswordStrengthConfig)
	VisitSocialEngineering(c *SocialEngineeringConfig)
}

// Sender is the From header of a simulated email.
type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Email is one message in a phishing inbox.
type Email struct {
	ID         string   `json:"id"`
	From       Sender   `json:"from"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	IsPhishing bool     `json:"isPhishing"`
	RedFlags   []string `json:"redFlags"`
}

// PhishingEmailConfig is the scenario for PHISHING_EMAIL labs.
type PhishingEmailConfig struct {
	EmailInterface    string  `json:"emailInterface"`
	Emails            []Email `json:"emails"`
	Instructions      string  `json:"instructions"`
	FeedbackCorrect   string  `json:"feedbackCorrect"`
	FeedbackIncorrect string  `json:"feedbackIncorrect"`
}

func (c *PhishingEmailConfig) LabType() LabType        { return LabTypePhishingEmail }
func (c *PhishingEmailConfig) Accept(v ConfigVisitor) { v.VisitPhishingEmail(c) }

func (c *PhishingEmailConfig) MarshalJSON() ([]byte, error) {
	type plain PhishingEmailConfig
	return marshalTagged(LabTypePhishingEmail, (*plain)(c))
}

// Link is one URL whose display text may differ from its target.
type Link struct {
	DisplayText string `json:"displayText"`
	ActualURL   string `json:"actualUrl"`
	IsMalicious bool   `json:"isMalicious"`
	Explanation string `json:"explanation"`
}

// SuspiciousLinksConfig is the scenario for SUSPICIOUS_LINKS labs.
type SuspiciousLinksConfig struct {
	Scenario     string `json:"scenario"`
	Instructions string `json:"instructions"`
	Links        []Link `json:"links"`
}

func (c *SuspiciousLinksConfig) LabType() LabType        { return LabTypeSuspiciousLinks }
func (c *SuspiciousLinksConfig) Accept(v ConfigVisitor) { v.VisitSuspiciousLinks(c) }

func (c *SuspiciousLinksConfig) MarshalJSON() ([]byte, error) {
	type plain SuspiciousLinksConfig
	return marshalTagged(LabTypeSuspiciousLinks, (*plain)(c))
}

// PasswordRequirements lists the character-class rules a candidate must meet.
type PasswordRequirements struct {
	MinLength        int  `json:"minLength"`
	RequireUppercase bool `json:"requireUppercase"`
	RequireNumbers   bool `json:"requireNumbers"`
	RequireSpecial   bool `json:"requireSpecial"`
}

// PasswordStrengthConfig is the scenario for PASSWORD_STRENGTH labs.
type PasswordStrengthConfig struct {
	Scenario        string               `json:"scenario"`
	Requirements    PasswordRequirements `json:"requirements"`
	BannedPasswords []string             `json:"bannedPasswords"` // lower-cased
	Hints           []string             `json:"hints"`
}

func (c *PasswordStrengthConfig) LabType() LabType        { return LabTypePasswordStrength }
func (c *PasswordStrengthConfig) Accept(v ConfigVisitor) { v.VisitPasswordStrength(c) }

func (c *PasswordStrengthConfig) MarshalJSON() ([]byte, error) {
	type plain PasswordStrengthConfig
	return marshalTagged(LabTypePasswordStrength, (*plain)(c))
}

// Tactic names the persuasion technique an attacker message relies on.
type Tactic string

const (
	TacticAuthority   Tactic = "authority"
	TacticUrgency     Tactic = "urgency"
	TacticFear        Tactic = "fear"
	TacticTrust       Tactic = "trust"
	TacticReciprocity Tactic = "reciprocity"
	TacticScarcity    Tactic = "scarcity"
	TacticSocialProof Tactic = "social_proof"
	TacticLiking      Tactic = "liking"
)

// Valid reports whether t is a known tactic.
func (t Tactic) Valid() bool {
	switch t {
	case TacticAuthority, TacticUrgency, TacticFear, TacticTrust,
		TacticReciprocity, TacticScarcity, TacticSocialProof, TacticLiking:
		return true
	}
	return false
}

// SocialResponse is one authored reply the student may choose.
type SocialResponse struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback"`
}

// SocialMessage is one attacker turn in a social-engineering conversation.
type SocialMessage struct {
	ID                string           `json:"id"`
	AttackerMessage   string           `json:"attackerMessage"`
	TacticUsed        Tactic           `json:"tacticUsed"`
	TacticExplanation string           `json:"tacticExplanation"`
	Responses         []SocialResponse `json:"responses"`
}

// SocialEngineeringConfig is the scenario for SOCIAL_ENGINEERING labs.
type SocialEngineeringConfig struct {
	Scenario     string          `json:"scenario"`
	Context      string          `json:"context"`
	AttackerName string          `json:"attackerName"`
	AttackerRole string          `json:"attackerRole"`
	Instructions string          `json:"instructions"`
	Messages     []SocialMessage `json:"messages"`
}

func (c *SocialEngineeringConfig) LabType() LabType        { return LabTypeSocialEngineering }
func (c *SocialEngineeringConfig) Accept(v ConfigVisitor) { v.VisitSocialEngineering(c) }

func (c *SocialEngineeringConfig) MarshalJSON() ([]byte, error) {
	type plain SocialEngineeringConfig
	return marshalTagged(LabTypeSocialEngineering, (*plain)(c))
}

// marshalTagged encodes v as a JSON object with a leading "type" member.
func marshalTagged(t LabType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(t)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
