// Package attempt drives a single playthrough of an interactive lab: which
// item is current, which answers are locked in, when feedback is showing,
// and when the attempt is finished and graded.
package attempt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/scoring"
)

// Phase is the session's position in its state machine.
type Phase string

const (
	PhaseSelecting Phase = "selecting"
	PhaseFeedback  Phase = "feedback"
	PhaseFinished  Phase = "finished"
)

var (
	ErrNotInteractive = errors.New("lab is not an interactive simulation")
	ErrWrongVariant   = errors.New("operation not supported for this lab type")
	ErrFinished       = errors.New("attempt already finished")
	ErrNotFinished    = errors.New("attempt not finished")
	ErrAnswerLocked   = errors.New("item already answered")
	ErrItemRange      = errors.New("item index out of range")
	ErrOutOfOrder     = errors.New("items must be answered in order")
	ErrIncomplete     = errors.New("every item must be answered before submitting")
	ErrNoFeedback     = errors.New("no feedback is showing")
)

// Feedback is what the student sees right after answering one item.
type Feedback struct {
	Item    int    `json:"item"`
	Correct bool   `json:"correct"`
	Message string `json:"message,omitempty"`
	// Detail carries the red flags, link explanation or tactic explanation.
	Detail []string `json:"detail,omitempty"`
}

// Session is an in-memory controller for one attempt. It is not safe for
// concurrent use; callers serialize access per student.
type Session struct {
	id       string
	lab      model.Lab
	attempt  int
	phase    Phase
	current  int
	answers  scoring.Answers
	feedback *Feedback
	result   *scoring.Result
	last     *scoring.Result
}

// New starts attempt 1 of lab. It fails when the lab is CONTENT or its
// config does not match its type.
func New(lab model.Lab) (*Session, error) {
	if err := lab.CheckConfig(); err != nil {
		return nil, fmt.Errorf("load lab: %w", err)
	}
	if !lab.LabType.Interactive() {
		return nil, ErrNotInteractive
	}
	s := &Session{id: uuid.NewString(), lab: lab}
	s.reset()
	return s, nil
}

func (s *Session) reset() {
	s.attempt++
	s.phase = PhaseSelecting
	s.current = 0
	s.answers = scoring.Answers{Reported: map[int]bool{}, Chosen: map[int]int{}}
	s.feedback = nil
	s.result = nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Lab returns the lab being played.
func (s *Session) Lab() model.Lab { return s.lab }

// Attempt returns the 1-based attempt number within this session.
func (s *Session) Attempt() int { return s.attempt }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Current returns the item the student is looking at.
func (s *Session) Current() int { return s.current }

// Feedback returns the feedback on display, or nil.
func (s *Session) Feedback() *Feedback { return s.feedback }

// Result returns the graded result once finished, or nil.
func (s *Session) Result() *scoring.Result { return s.result }

// LastResult returns the most recent graded result, which survives Retry
// until the next submission replaces it.
func (s *Session) LastResult() *scoring.Result { return s.last }

// ItemCount returns the number of gradeable items in the scenario.
func (s *Session) ItemCount() int {
	switch c := s.lab.SimulationConfig.(type) {
	case *model.PhishingEmailConfig:
		return len(c.Emails)
	case *model.SuspiciousLinksConfig:
		return len(c.Links)
	case *model.SocialEngineeringConfig:
		return len(c.Messages)
	}
	return 1
}

func (s *Session) binary() bool {
	t := s.lab.LabType
	return t == model.LabTypePhishingEmail || t == model.LabTypeSuspiciousLinks
}

// Answered reports whether item i has a locked answer.
func (s *Session) Answered(i int) bool {
	if s.binary() {
		_, ok := s.answers.Reported[i]
		return ok
	}
	_, ok := s.answers.Chosen[i]
	return ok
}

// Select moves to item i. Phishing and link items may be visited in any
// order; selecting dismisses any feedback on display.
func (s *Session) Select(i int) error {
	if s.phase == PhaseFinished {
		return ErrFinished
	}
	if !s.binary() {
		return ErrWrongVariant
	}
	if i < 0 || i >= s.ItemCount() {
		return ErrItemRange
	}
	s.current = i
	s.feedback = nil
	s.phase = PhaseSelecting
	return nil
}

// Report records whether item i is malicious. The answer is locked once
// given and the session shows feedback for it.
func (s *Session) Report(i int, reportedAsBad bool) (*Feedback, error) {
	if s.phase == PhaseFinished {
		return nil, ErrFinished
	}
	if !s.binary() {
		return nil, ErrWrongVariant
	}
	if i < 0 || i >= s.ItemCount() {
		return nil, ErrItemRange
	}
	if _, ok := s.answers.Reported[i]; ok {
		return nil, ErrAnswerLocked
	}
	s.answers.Reported[i] = reportedAsBad

	fb := &Feedback{Item: i}
	switch c := s.lab.SimulationConfig.(type) {
	case *model.PhishingEmailConfig:
		e := c.Emails[i]
		fb.Correct = scoring.CheckBinary(reportedAsBad, e.IsPhishing)
		fb.Message = c.FeedbackIncorrect
		if fb.Correct {
			fb.Message = c.FeedbackCorrect
		}
		fb.Detail = e.RedFlags
	case *model.SuspiciousLinksConfig:
		l := c.Links[i]
		fb.Correct = scoring.CheckBinary(reportedAsBad, l.IsMalicious)
		if l.Explanation != "" {
			fb.Detail = []string{l.Explanation}
		}
	}
	s.current = i
	s.feedback = fb
	s.phase = PhaseFeedback
	return fb, nil
}

// Dismiss hides feedback and returns to item selection.
func (s *Session) Dismiss() error {
	if s.phase != PhaseFeedback {
		return ErrNoFeedback
	}
	if !s.binary() {
		return ErrWrongVariant
	}
	s.feedback = nil
	s.phase = PhaseSelecting
	return nil
}

// SubmitAll grades a phishing or links attempt once every item has an
// answer.
func (s *Session) SubmitAll() (scoring.Result, error) {
	if s.phase == PhaseFinished {
		return scoring.Result{}, ErrFinished
	}
	if !s.binary() {
		return scoring.Result{}, ErrWrongVariant
	}
	for i := range s.ItemCount() {
		if !s.Answered(i) {
			return scoring.Result{}, ErrIncomplete
		}
	}
	return s.finish(), nil
}

// Choose picks response r for the current social-engineering message and
// shows its feedback. Messages are answered strictly in order.
func (s *Session) Choose(item, r int) (*Feedback, error) {
	if s.phase == PhaseFinished {
		return nil, ErrFinished
	}
	c, ok := s.lab.SimulationConfig.(*model.SocialEngineeringConfig)
	if !ok {
		return nil, ErrWrongVariant
	}
	if item < 0 || item >= len(c.Messages) {
		return nil, ErrItemRange
	}
	if _, done := s.answers.Chosen[item]; done {
		return nil, ErrAnswerLocked
	}
	if item != s.current || s.phase != PhaseSelecting {
		return nil, ErrOutOfOrder
	}
	msg := c.Messages[item]
	if r < 0 || r >= len(msg.Responses) {
		return nil, ErrItemRange
	}
	s.answers.Chosen[item] = r

	fb := &Feedback{
		Item:    item,
		Correct: scoring.CheckResponse(msg, r),
		Message: msg.Responses[r].Feedback,
	}
	if msg.TacticExplanation != "" {
		fb.Detail = []string{msg.TacticExplanation}
	}
	s.feedback = fb
	s.phase = PhaseFeedback
	return fb, nil
}

// Advance leaves social-engineering feedback for the next message. After
// the last message the attempt finishes and the result is returned.
func (s *Session) Advance() (*scoring.Result, error) {
	if s.phase == PhaseFinished {
		return nil, ErrFinished
	}
	c, ok := s.lab.SimulationConfig.(*model.SocialEngineeringConfig)
	if !ok {
		return nil, ErrWrongVariant
	}
	if s.phase != PhaseFeedback {
		return nil, ErrNoFeedback
	}
	s.feedback = nil
	if s.current+1 >= len(c.Messages) {
		res := s.finish()
		return &res, nil
	}
	s.current++
	s.phase = PhaseSelecting
	return nil, nil
}

// SubmitPassword grades a password candidate and finishes immediately.
func (s *Session) SubmitPassword(password string) (scoring.Result, error) {
	if s.phase == PhaseFinished {
		return scoring.Result{}, ErrFinished
	}
	if s.lab.LabType != model.LabTypePasswordStrength {
		return scoring.Result{}, ErrWrongVariant
	}
	s.answers.Password = password
	return s.finish(), nil
}

func (s *Session) finish() scoring.Result {
	res := scoring.Score(s.lab.SimulationConfig, s.answers, s.lab.PassingScore)
	s.result = &res
	s.last = &res
	s.phase = PhaseFinished
	return res
}

// Retry discards the finished attempt's answers and starts a fresh one.
// LastResult keeps reporting the finished attempt until the new one is
// submitted.
func (s *Session) Retry() error {
	if s.phase != PhaseFinished {
		return ErrNotFinished
	}
	s.reset()
	return nil
}

// AnswersJSON returns the recorded answers in their persisted form. The
// password is never included.
func (s *Session) AnswersJSON() (json.RawMessage, error) {
	a := s.answers
	a.Password = ""
	return json.Marshal(a)
}
