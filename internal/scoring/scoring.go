// Package scoring grades interactive lab attempts. Every function here is
// pure: identical inputs always produce identical results, and malformed or
// empty inputs degrade to a zero score instead of an error.
package scoring

import (
	"math"

	"github.com/pavelanni/awarelab/internal/model"
)

// Answers carries a student's input for any scenario type. Only the fields
// relevant to the lab's variant are read.
type Answers struct {
	// Reported maps item index to "reported as malicious" for phishing
	// emails and suspicious links. Missing items count as wrong.
	Reported map[int]bool `json:"reported,omitempty"`
	// Password is the candidate for password-strength labs.
	Password string `json:"password,omitempty"`
	// Chosen maps message index to the selected response index for
	// social-engineering labs.
	Chosen map[int]int `json:"chosen,omitempty"`
}

// ItemResult is the correctness of one scenario item.
type ItemResult struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Answered bool   `json:"answered"`
	Correct  bool   `json:"correct"`
}

// Result is the outcome of grading one attempt.
type Result struct {
	Score    int             `json:"score"`
	Passed   bool            `json:"passed"`
	Correct  int             `json:"correct"`
	Total    int             `json:"total"`
	Items    []ItemResult    `json:"items,omitempty"`
	Password *PasswordReport `json:"password,omitempty"`
}

// Percent returns round(100*correct/total), or 0 when total is zero.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// Score grades answers against cfg. A nil cfg yields a zero result; that
// case is rejected when the lab is loaded, not here.
func Score(cfg model.SimulationConfig, answers Answers, passingScore int) Result {
	if cfg == nil {
		return Result{}
	}
	s := &scorer{answers: answers, passing: passingScore}
	cfg.Accept(s)
	return s.result
}

type scorer struct {
	answers Answers
	passing int
	result  Result
}

func (s *scorer) VisitPhishingEmail(c *model.PhishingEmailConfig) {
	s.result = ScorePhishing(c, s.answers.Reported, s.passing)
}

func (s *scorer) VisitSuspiciousLinks(c *model.SuspiciousLinksConfig) {
	s.result = ScoreLinks(c, s.answers.Reported, s.passing)
}

func (s *scorer) VisitPasswordStrength(c *model.PasswordStrengthConfig) {
	s.result = ScorePassword(c, s.answers.Password, s.passing)
}

func (s *scorer) VisitSocialEngineering(c *model.SocialEngineeringConfig) {
	s.result = ScoreSocial(c, s.answers.Chosen, s.passing)
}

// ScorePhishing grades report/keep decisions on each email.
func ScorePhishing(c *model.PhishingEmailConfig, reported map[int]bool, passingScore int) Result {
	var truth []bool
	var ids []string
	if c != nil {
		for _, e := range c.Emails {
			truth = append(truth, e.IsPhishing)
			ids = append(ids, e.ID)
		}
	}
	return scoreBinary(truth, ids, reported, passingScore)
}

// ScoreLinks grades report/trust decisions on each link.
func ScoreLinks(c *model.SuspiciousLinksConfig, reported map[int]bool, passingScore int) Result {
	var truth []bool
	if c != nil {
		for _, l := range c.Links {
			truth = append(truth, l.IsMalicious)
		}
	}
	return scoreBinary(truth, nil, reported, passingScore)
}

// CheckBinary reports whether a single report decision is correct.
func CheckBinary(reportedAsBad, isBad bool) bool {
	return reportedAsBad == isBad
}

func scoreBinary(truth []bool, ids []string, reported map[int]bool, passingScore int) Result {
	res := Result{Total: len(truth), Items: make([]ItemResult, len(truth))}
	for i, isBad := range truth {
		item := ItemResult{Index: i}
		if i < len(ids) {
			item.ID = ids[i]
		}
		if got, ok := reported[i]; ok {
			item.Answered = true
			item.Correct = CheckBinary(got, isBad)
		}
		if item.Correct {
			res.Correct++
		}
		res.Items[i] = item
	}
	res.Score = Percent(res.Correct, res.Total)
	res.Passed = res.Score >= passingScore
	return res
}

// CheckResponse reports whether choosing response idx on msg is correct.
// Out-of-range choices are wrong.
func CheckResponse(msg model.SocialMessage, idx int) bool {
	if idx < 0 || idx >= len(msg.Responses) {
		return false
	}
	return msg.Responses[idx].IsCorrect
}

// ScoreSocial grades one chosen response per attacker message.
func ScoreSocial(c *model.SocialEngineeringConfig, chosen map[int]int, passingScore int) Result {
	var msgs []model.SocialMessage
	if c != nil {
		msgs = c.Messages
	}
	res := Result{Total: len(msgs), Items: make([]ItemResult, len(msgs))}
	for i, m := range msgs {
		item := ItemResult{Index: i, ID: m.ID}
		if idx, ok := chosen[i]; ok {
			item.Answered = true
			item.Correct = CheckResponse(m, idx)
		}
		if item.Correct {
			res.Correct++
		}
		res.Items[i] = item
	}
	res.Score = Percent(res.Correct, res.Total)
	res.Passed = res.Score >= passingScore
	return res
}
