package attempt

import (
	"fmt"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/scoring"
)

// Snapshot is the serializable state of a session, used to park it in a
// cache between requests.
type Snapshot struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"userId"`
	LabID      string          `json:"labId"`
	Attempt    int             `json:"attempt"`
	Phase      Phase           `json:"phase"`
	Current    int             `json:"current"`
	Answers    scoring.Answers `json:"answers"`
	Feedback   *Feedback       `json:"feedback,omitempty"`
	Result     *scoring.Result `json:"result,omitempty"`
	LastResult *scoring.Result `json:"lastResult,omitempty"`
}

// Snapshot captures the session for storage. The lab itself is not
// included; Restore reloads it. Password candidates are dropped.
func (s *Session) Snapshot(userID int64) Snapshot {
	answers := s.answers
	answers.Password = ""
	return Snapshot{
		ID:         s.id,
		UserID:     userID,
		LabID:      s.lab.ID,
		Attempt:    s.attempt,
		Phase:      s.phase,
		Current:    s.current,
		Answers:    answers,
		Feedback:   s.feedback,
		Result:     s.result,
		LastResult: s.last,
	}
}

// Restore rebuilds a session from snap against the current lab definition.
func Restore(lab model.Lab, snap Snapshot) (*Session, error) {
	if lab.ID != snap.LabID {
		return nil, fmt.Errorf("restore attempt %s: lab %q does not match %q", snap.ID, lab.ID, snap.LabID)
	}
	s, err := New(lab)
	if err != nil {
		return nil, err
	}
	s.id = snap.ID
	s.attempt = snap.Attempt
	s.phase = snap.Phase
	s.current = snap.Current
	s.answers = snap.Answers
	if s.answers.Reported == nil {
		s.answers.Reported = map[int]bool{}
	}
	if s.answers.Chosen == nil {
		s.answers.Chosen = map[int]int{}
	}
	s.feedback = snap.Feedback
	s.result = snap.Result
	s.last = snap.LastResult
	return s, nil
}
