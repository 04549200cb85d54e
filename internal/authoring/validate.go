// Package authoring checks lab definitions before they are saved. Errors
// block the save; warnings are shown to the author but do not.
package authoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/awarelab/internal/model"
)

// Minimum item counts per scenario.
const (
	MinEmails    = 2
	MinLinks     = 3
	MinMessages  = 2
	MinResponses = 2
)

// Message IDs, resolved through the i18n bundle.
const (
	MsgRequired          = "ValidationRequired"
	MsgMinItems          = "ValidationMinItems"
	MsgRange             = "ValidationRange"
	MsgPositive          = "ValidationPositive"
	MsgUnknownLabType    = "ValidationUnknownLabType"
	MsgMissingConfig     = "ValidationMissingConfig"
	MsgUnexpectedConfig  = "ValidationUnexpectedConfig"
	MsgConfigMismatch    = "ValidationConfigMismatch"
	MsgDuplicateID       = "ValidationDuplicateID"
	MsgUnknownTactic     = "ValidationUnknownTactic"
	MsgExactlyOneCorrect = "ValidationExactlyOneCorrect"
	MsgSinglePolarity    = "WarningSinglePolarity"
	MsgNoRedFlags        = "WarningNoRedFlags"
	MsgNoExplanation     = "WarningNoExplanation"
	MsgEmptyBanned       = "WarningEmptyBanned"
	MsgNoInstructions    = "WarningNoInstructions"
)

var ErrInvalid = errors.New("lab definition is invalid")

// Issue is one field-level finding.
type Issue struct {
	Field     string         `json:"field"`
	MessageID string         `json:"messageId"`
	Params    map[string]any `json:"params,omitempty"`
	Message   string         `json:"message"`
}

// Report collects blocking errors and advisory warnings.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// OK reports whether the lab may be saved.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Err returns nil when the report is clean, otherwise an error wrapping
// ErrInvalid that lists every blocking issue.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, is := range r.Errors {
		msgs[i] = is.Field + ": " + is.Message
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func (r *Report) fail(field, id, msg string, params map[string]any) {
	r.Errors = append(r.Errors, Issue{Field: field, MessageID: id, Params: params, Message: msg})
}

func (r *Report) warn(field, id, msg string, params map[string]any) {
	r.Warnings = append(r.Warnings, Issue{Field: field, MessageID: id, Params: params, Message: msg})
}

func (r *Report) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		r.fail(field, MsgRequired, field+" is required", map[string]any{"Field": field})
	}
}

func (r *Report) minItems(field string, n, want int) {
	if n < want {
		r.fail(field, MsgMinItems, fmt.Sprintf("at least %d %s required", want, field),
			map[string]any{"Field": field, "Min": want, "Count": n})
	}
}

// Validate checks lab against the schema for its type.
func Validate(lab model.Lab) Report {
	var r Report
	r.required("id", lab.ID)
	r.required("title", lab.Title)
	if lab.PassingScore < 0 || lab.PassingScore > 100 {
		r.fail("passingScore", MsgRange, "passingScore must be between 0 and 100",
			map[string]any{"Field": "passingScore", "Min": 0, "Max": 100})
	}
	if lab.EstimatedTime != nil && *lab.EstimatedTime <= 0 {
		r.fail("estimatedTime", MsgPositive, "estimatedTime must be positive", map[string]any{"Field": "estimatedTime"})
	}

	switch {
	case !lab.LabType.Valid():
		r.fail("labType", MsgUnknownLabType, fmt.Sprintf("unknown lab type %q", lab.LabType),
			map[string]any{"Type": string(lab.LabType)})
	case lab.LabType == model.LabTypeContent:
		if lab.SimulationConfig != nil {
			r.fail("simulationConfig", MsgUnexpectedConfig, "content labs have no simulationConfig", nil)
		}
		if strings.TrimSpace(lab.Instructions) == "" {
			r.warn("instructions", MsgNoInstructions, "content lab has no instructions", nil)
		}
	case lab.SimulationConfig == nil:
		r.fail("simulationConfig", MsgMissingConfig, "simulationConfig is required",
			map[string]any{"Type": string(lab.LabType)})
	case lab.SimulationConfig.LabType() != lab.LabType:
		r.fail("simulationConfig", MsgConfigMismatch,
			fmt.Sprintf("simulationConfig is %s but labType is %s", lab.SimulationConfig.LabType(), lab.LabType),
			map[string]any{"Got": string(lab.SimulationConfig.LabType()), "Want": string(lab.LabType)})
	default:
		lab.SimulationConfig.Accept(&configValidator{r: &r})
	}
	return r
}

type configValidator struct {
	r *Report
}

func (v *configValidator) VisitPhishingEmail(c *model.PhishingEmailConfig) {
	r := v.r
	r.minItems("emails", len(c.Emails), MinEmails)
	seen := map[string]bool{}
	phishing := 0
	for i, e := range c.Emails {
		f := fmt.Sprintf("emails[%d]", i)
		r.required(f+".id", e.ID)
		if e.ID != "" && seen[e.ID] {
			r.fail(f+".id", MsgDuplicateID, fmt.Sprintf("duplicate id %q", e.ID), map[string]any{"ID": e.ID})
		}
		seen[e.ID] = true
		r.required(f+".from.email", e.From.Email)
		r.required(f+".subject", e.Subject)
		r.required(f+".body", e.Body)
		if e.IsPhishing {
			phishing++
			if len(e.RedFlags) == 0 {
				r.warn(f+".redFlags", MsgNoRedFlags, "phishing email lists no red flags", nil)
			}
		}
	}
	if len(c.Emails) >= MinEmails && (phishing == 0 || phishing == len(c.Emails)) {
		r.warn("emails", MsgSinglePolarity, "emails should include both phishing and legitimate messages",
			map[string]any{"Field": "emails"})
	}
}

func (v *configValidator) VisitSuspiciousLinks(c *model.SuspiciousLinksConfig) {
	r := v.r
	r.minItems("links", len(c.Links), MinLinks)
	malicious := 0
	for i, l := range c.Links {
		f := fmt.Sprintf("links[%d]", i)
		r.required(f+".displayText", l.DisplayText)
		r.required(f+".actualUrl", l.ActualURL)
		if l.IsMalicious {
			malicious++
		}
		if strings.TrimSpace(l.Explanation) == "" {
			r.warn(f+".explanation", MsgNoExplanation, "link has no explanation", nil)
		}
	}
	if len(c.Links) > 0 && (malicious == 0 || malicious == len(c.Links)) {
		r.warn("links", MsgSinglePolarity, "links should include both safe and malicious examples",
			map[string]any{"Field": "links"})
	}
}

func (v *configValidator) VisitPasswordStrength(c *model.PasswordStrengthConfig) {
	r := v.r
	if c.Requirements.MinLength < 1 {
		r.fail("requirements.minLength", MsgPositive, "requirements.minLength must be positive",
			map[string]any{"Field": "requirements.minLength"})
	}
	for i, b := range c.BannedPasswords {
		if strings.TrimSpace(b) == "" {
			f := fmt.Sprintf("bannedPasswords[%d]", i)
			r.warn(f, MsgEmptyBanned, "empty banned password is ignored", nil)
		}
	}
}

func (v *configValidator) VisitSocialEngineering(c *model.SocialEngineeringConfig) {
	r := v.r
	r.minItems("messages", len(c.Messages), MinMessages)
	seen := map[string]bool{}
	for i, m := range c.Messages {
		f := fmt.Sprintf("messages[%d]", i)
		r.required(f+".id", m.ID)
		if m.ID != "" && seen[m.ID] {
			r.fail(f+".id", MsgDuplicateID, fmt.Sprintf("duplicate id %q", m.ID), map[string]any{"ID": m.ID})
		}
		seen[m.ID] = true
		r.required(f+".attackerMessage", m.AttackerMessage)
		if !m.TacticUsed.Valid() {
			r.fail(f+".tacticUsed", MsgUnknownTactic, fmt.Sprintf("unknown tactic %q", m.TacticUsed),
				map[string]any{"Tactic": string(m.TacticUsed)})
		}
		r.minItems(f+".responses", len(m.Responses), MinResponses)
		correct := 0
		for j, resp := range m.Responses {
			r.required(fmt.Sprintf("%s.responses[%d].text", f, j), resp.Text)
			if resp.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			r.fail(f+".responses", MsgExactlyOneCorrect,
				fmt.Sprintf("exactly one correct response required, found %d", correct),
				map[string]any{"Count": correct})
		}
	}
}
