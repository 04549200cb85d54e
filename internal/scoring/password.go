package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/awarelab/internal/model"
)

// Strength is the coarse bucket shown to the student.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthGood   Strength = "good"
	StrengthStrong Strength = "strong"
)

const (
	specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	digitChars   = "0123456789"

	optionalBonus = 5
	lengthBonus   = 10
	lengthMargin  = 4
	bannedPenalty = 50
)

// PasswordReport is the full breakdown of a password evaluation.
type PasswordReport struct {
	Length            int      `json:"length"`
	MeetsLength       bool     `json:"meetsLength"`
	HasUpper          bool     `json:"hasUpper"`
	HasLower          bool     `json:"hasLower"`
	HasNumber         bool     `json:"hasNumber"`
	HasSpecial        bool     `json:"hasSpecial"`
	IsBanned          bool     `json:"isBanned"`
	TotalRequirements int      `json:"totalRequirements"`
	RequirementsMet   int      `json:"requirementsMet"`
	Base              int      `json:"base"`
	Bonus             int      `json:"bonus"`
	Score             int      `json:"score"`
	Strength          Strength `json:"strength"`
}

// AnalyzePassword scores password against req and the banned list.
// Banned entries match when the lower-cased password equals or contains
// them; empty entries are ignored.
func AnalyzePassword(password string, req model.PasswordRequirements, banned []string) PasswordReport {
	r := PasswordReport{
		Length:     utf8.RuneCountInString(password),
		HasUpper:   strings.ContainsAny(password, upperChars),
		HasLower:   strings.ContainsAny(password, lowerChars),
		HasNumber:  strings.ContainsAny(password, digitChars),
		HasSpecial: strings.ContainsAny(password, specialChars),
	}
	r.MeetsLength = r.Length >= req.MinLength
	r.IsBanned = isBanned(password, banned)

	r.TotalRequirements = 1
	if r.MeetsLength {
		r.RequirementsMet++
	}
	for _, rule := range []struct{ required, met bool }{
		{req.RequireUppercase, r.HasUpper},
		{req.RequireNumbers, r.HasNumber},
		{req.RequireSpecial, r.HasSpecial},
	} {
		if !rule.required {
			if rule.met {
				r.Bonus += optionalBonus
			}
			continue
		}
		r.TotalRequirements++
		if rule.met {
			r.RequirementsMet++
		}
	}
	if r.HasUpper && r.HasLower {
		r.Bonus += optionalBonus
	}
	if r.Length > req.MinLength+lengthMargin {
		r.Bonus += lengthBonus
	}

	r.Base = Percent(r.RequirementsMet, r.TotalRequirements)
	r.Score = min(100, r.Base+r.Bonus)
	if r.IsBanned {
		r.Score = max(0, r.Score-bannedPenalty)
	}

	switch {
	case password == "" || r.IsBanned || r.Score < 40:
		r.Strength = StrengthWeak
	case r.Score < 70:
		r.Strength = StrengthFair
	case r.Score < 90:
		r.Strength = StrengthGood
	default:
		r.Strength = StrengthStrong
	}
	return r
}

func isBanned(password string, banned []string) bool {
	lower := strings.ToLower(password)
	for _, b := range banned {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		if lower == b || strings.Contains(lower, b) {
			return true
		}
	}
	return false
}

// ScorePassword grades a single candidate password. A banned or empty
// password never passes, whatever its numeric score.
func ScorePassword(c *model.PasswordStrengthConfig, password string, passingScore int) Result {
	var req model.PasswordRequirements
	var banned []string
	if c != nil {
		req = c.Requirements
		banned = c.BannedPasswords
	}
	rep := AnalyzePassword(password, req, banned)
	passed := rep.Score >= passingScore && !rep.IsBanned && password != ""
	correct := 0
	if passed {
		correct = 1
	}
	return Result{
		Score:    rep.Score,
		Passed:   passed,
		Correct:  correct,
		Total:    1,
		Items:    []ItemResult{{Index: 0, Answered: password != "", Correct: passed}},
		Password: &rep,
	}
}
