package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// LabType is the tag selecting how a lab is played and graded.
type LabType string

const (
	LabTypeContent           LabType = "CONTENT"
	LabTypePhishingEmail     LabType = "PHISHING_EMAIL"
	LabTypeSuspiciousLinks   LabType = "SUSPICIOUS_LINKS"
	LabTypePasswordStrength  LabType = "PASSWORD_STRENGTH"
	LabTypeSocialEngineering LabType = "SOCIAL_ENGINEERING"
)

// Valid reports whether t is one of the known lab types.
func (t LabType) Valid() bool {
	switch t {
	case LabTypeContent, LabTypePhishingEmail, LabTypeSuspiciousLinks,
		LabTypePasswordStrength, LabTypeSocialEngineering:
		return true
	}
	return false
}

// Interactive reports whether labs of this type are graded simulations.
func (t LabType) Interactive() bool {
	return t.Valid() && t != LabTypeContent
}

var (
	// ErrUnknownLabType is returned for a lab type outside the closed set.
	ErrUnknownLabType = errors.New("unknown lab type")
	// ErrMissingConfig means an interactive lab has no simulation config.
	ErrMissingConfig = errors.New("simulation config required for interactive lab")
	// ErrConfigMismatch means the config's shape or tag does not match the lab type.
	ErrConfigMismatch = errors.New("simulation config does not match lab type")
)

// Lab is a gradeable or self-reported learning exercise.
type Lab struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	LabType          LabType          `json:"labType"`
	PassingScore     int              `json:"passingScore"`
	SimulationConfig SimulationConfig `json:"simulationConfig"`
	EstimatedTime    *int             `json:"estimatedTime,omitempty"` // minutes
	Objectives       []string         `json:"objectives"`

	// Free-text fields carried by CONTENT labs.
	Instructions string `json:"instructions,omitempty"`
	Scenario     string `json:"scenario,omitempty"`
	Resources    string `json:"resources,omitempty"`
	Hints        string `json:"hints,omitempty"`
}

// labAlias breaks the UnmarshalJSON recursion.
type labAlias Lab

type labWire struct {
	labAlias
	SimulationConfig json.RawMessage `json:"simulationConfig"`
}

// UnmarshalJSON decodes a lab and coerces its simulation config into the
// variant selected by labType.
func (l *Lab) UnmarshalJSON(data []byte) error {
	var w labWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := DecodeSimulationConfig(w.LabType, w.SimulationConfig)
	if err != nil {
		return fmt.Errorf("lab %q: %w", w.ID, err)
	}
	*l = Lab(w.labAlias)
	l.SimulationConfig = cfg
	return nil
}

// CheckConfig verifies the load-time invariant that the config variant
// equals the lab type.
func (l Lab) CheckConfig() error {
	if !l.LabType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLabType, l.LabType)
	}
	if l.LabType == LabTypeContent {
		if l.SimulationConfig != nil {
			return fmt.Errorf("%w: content lab carries %s config", ErrConfigMismatch, l.SimulationConfig.LabType())
		}
		return nil
	}
	if l.SimulationConfig == nil {
		return fmt.Errorf("%w: %s", ErrMissingConfig, l.LabType)
	}
	if got := l.SimulationConfig.LabType(); got != l.LabType {
		return fmt.Errorf("%w: lab is %s, config is %s", ErrConfigMismatch, l.LabType, got)
	}
	return nil
}

// DecodeSimulationConfig decodes a stored config blob into the variant for
// labType. Decoding is strict: unknown fields are rejected, and an embedded
// "type" tag, when present, must agree with labType.
func DecodeSimulationConfig(labType LabType, raw []byte) (SimulationConfig, error) {
	if !labType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabType, labType)
	}
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	if labType == LabTypeContent {
		if !empty {
			return nil, fmt.Errorf("%w: content lab must not carry a simulation config", ErrConfigMismatch)
		}
		return nil, nil
	}
	if empty {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, labType)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMismatch, err)
	}
	if rawTag, ok := fields["type"]; ok {
		var tag LabType
		if err := json.Unmarshal(rawTag, &tag); err != nil {
			return nil, fmt.Errorf("%w: type tag: %v", ErrConfigMismatch, err)
		}
		if tag != labType {
			return nil, fmt.Errorf("%w: lab is %s, config tagged %s", ErrConfigMismatch, labType, tag)
		}
		delete(fields, "type")
		stripped, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		raw = stripped
	}

	var cfg SimulationConfig
	switch labType {
	case LabTypePhishingEmail:
		cfg = &PhishingEmailConfig{}
	case LabTypeSuspiciousLinks:
		cfg = &SuspiciousLinksConfig{}
	case LabTypePasswordStrength:
		cfg = &PasswordStrengthConfig{}
	case LabTypeSocialEngineering:
		cfg = &SocialEngineeringConfig{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigMismatch, labType, err)
	}
	return cfg, nil
}

// EncodeSimulationConfig returns the stored form of cfg, with its type tag.
func EncodeSimulationConfig(cfg SimulationConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}

// Redacted returns a copy of the lab with answer keys and explanations
// removed, suitable for sending to a student before grading.
func (l Lab) Redacted() Lab {
	out := l
	if l.SimulationConfig != nil {
		r := &redactor{}
		l.SimulationConfig.Accept(r)
		out.SimulationConfig = r.out
	}
	return out
}

type redactor struct {
	out SimulationConfig
}

func (r *redactor) VisitPhishingEmail(c *PhishingEmailConfig) {
	cp := *c
	cp.Emails = make([]Email, len(c.Emails))
	for i, e := range c.Emails {
		e.IsPhishing = false
		e.RedFlags = nil
		cp.Emails[i] = e
	}
	cp.FeedbackCorrect, cp.FeedbackIncorrect = "", ""
	r.out = &cp
}

func (r *redactor) VisitSuspiciousLinks(c *SuspiciousLinksConfig) {
	cp := *c
	cp.Links = make([]Link, len(c.Links))
	for i, l := range c.Links {
		l.IsMalicious = false
		l.Explanation = ""
		cp.Links[i] = l
	}
	r.out = &cp
}

func (r *redactor) VisitPasswordStrength(c *PasswordStrengthConfig) {
	cp := *c
	cp.BannedPasswords = nil
	r.out = &cp
}

func (r *redactor) VisitSocialEngineering(c *SocialEngineeringConfig) {
	cp := *c
	cp.Messages = make([]SocialMessage, len(c.Messages))
	for i, m := range c.Messages {
		m.TacticUsed = ""
		m.TacticExplanation = ""
		resp := make([]SocialResponse, len(m.Responses))
		for j, rs := range m.Responses {
			resp[j] = SocialResponse{Text: rs.Text}
		}
		m.Responses = resp
		cp.Messages[i] = m
	}
	r.out = &cp
}
