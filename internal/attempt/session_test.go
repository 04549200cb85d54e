package attempt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pavelanni/awarelab/internal/model"
)

func phishingLab() model.Lab {
	return model.Lab{
		ID:           "phish",
		LabType:      model.LabTypePhishingEmail,
		PassingScore: 70,
		SimulationConfig: &model.PhishingEmailConfig{
			FeedbackCorrect:   "Nice catch.",
			FeedbackIncorrect: "Not quite.",
			Emails: []model.Email{
				{ID: "e1", IsPhishing: true, RedFlags: []string{"urgent tone"}},
				{ID: "e2", IsPhishing: false},
				{ID: "e3", IsPhishing: true},
			},
		},
	}
}

func socialLab() model.Lab {
	resp := func(correct int) []model.SocialResponse {
		return []model.SocialResponse{
			{Text: "a", IsCorrect: correct == 0, Feedback: "fa"},
			{Text: "b", IsCorrect: correct == 1, Feedback: "fb"},
		}
	}
	return model.Lab{
		ID:           "se",
		LabType:      model.LabTypeSocialEngineering,
		PassingScore: 60,
		SimulationConfig: &model.SocialEngineeringConfig{
			Messages: []model.SocialMessage{
				{ID: "m1", TacticUsed: model.TacticUrgency, TacticExplanation: "pressure", Responses: resp(0)},
				{ID: "m2", TacticUsed: model.TacticAuthority, Responses: resp(1)},
				{ID: "m3", TacticUsed: model.TacticLiking, Responses: resp(0)},
			},
		},
	}
}

func passwordLab() model.Lab {
	return model.Lab{
		ID:           "pw",
		LabType:      model.LabTypePasswordStrength,
		PassingScore: 70,
		SimulationConfig: &model.PasswordStrengthConfig{
			Requirements:    model.PasswordRequirements{MinLength: 8, RequireUppercase: true, RequireNumbers: true, RequireSpecial: true},
			BannedPasswords: []string{"password"},
		},
	}
}

func newSession(t *testing.T, lab model.Lab) *Session {
	t.Helper()
	s, err := New(lab)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsContentAndMismatch(t *testing.T) {
	if _, err := New(model.Lab{ID: "c", LabType: model.LabTypeContent}); !errors.Is(err, ErrNotInteractive) {
		t.Errorf("expected ErrNotInteractive, got %v", err)
	}
	_, err := New(model.Lab{ID: "p", LabType: model.LabTypePhishingEmail})
	if !errors.Is(err, model.ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig, got %v", err)
	}
	_, err = New(model.Lab{ID: "p", LabType: model.LabTypePhishingEmail, SimulationConfig: &model.SuspiciousLinksConfig{}})
	if !errors.Is(err, model.ErrConfigMismatch) {
		t.Errorf("expected ErrConfigMismatch, got %v", err)
	}
}

func TestPhishingAnyOrderAndLocking(t *testing.T) {
	s := newSession(t, phishingLab())

	if err := s.Select(2); err != nil {
		t.Fatalf("Select: %v", err)
	}
	fb, err := s.Report(2, true)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !fb.Correct || fb.Message != "Nice catch." {
		t.Errorf("unexpected feedback: %+v", fb)
	}
	if s.Phase() != PhaseFeedback {
		t.Errorf("expected feedback phase, got %q", s.Phase())
	}

	// Locked: answering the same item again fails.
	if _, err := s.Report(2, false); !errors.Is(err, ErrAnswerLocked) {
		t.Errorf("expected ErrAnswerLocked, got %v", err)
	}

	// Submitting early fails.
	if _, err := s.SubmitAll(); !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}

	if err := s.Dismiss(); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	fb, _ = s.Report(0, true)
	if len(fb.Detail) != 1 || fb.Detail[0] != "urgent tone" {
		t.Errorf("expected red flags in detail, got %v", fb.Detail)
	}
	fb, _ = s.Report(1, true)
	if fb.Correct || fb.Message != "Not quite." {
		t.Errorf("expected incorrect feedback, got %+v", fb)
	}

	res, err := s.SubmitAll()
	if err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	if res.Score != 67 || res.Passed {
		t.Errorf("expected 67 failing, got %d passed=%v", res.Score, res.Passed)
	}
	if s.Phase() != PhaseFinished {
		t.Errorf("expected finished, got %q", s.Phase())
	}
	if _, err := s.Report(0, false); !errors.Is(err, ErrFinished) {
		t.Errorf("expected ErrFinished, got %v", err)
	}
}

func TestPhishingRejectsSocialOperations(t *testing.T) {
	s := newSession(t, phishingLab())
	if _, err := s.Choose(0, 0); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("expected ErrWrongVariant, got %v", err)
	}
	if _, err := s.SubmitPassword("x"); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("expected ErrWrongVariant, got %v", err)
	}
	if _, err := s.Report(5, true); !errors.Is(err, ErrItemRange) {
		t.Errorf("expected ErrItemRange, got %v", err)
	}
}

func TestSocialSequentialAutoFinish(t *testing.T) {
	s := newSession(t, socialLab())

	if _, err := s.Choose(1, 0); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
	if _, err := s.SubmitAll(); !errors.Is(err, ErrWrongVariant) {
		t.Errorf("social labs have no submit-all step, got %v", err)
	}

	fb, err := s.Choose(0, 0)
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if !fb.Correct || fb.Message != "fa" || fb.Detail[0] != "pressure" {
		t.Errorf("unexpected feedback: %+v", fb)
	}
	// Must advance before answering the next one.
	if _, err := s.Choose(1, 1); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder while feedback shows, got %v", err)
	}
	if res, err := s.Advance(); err != nil || res != nil {
		t.Fatalf("Advance: res=%v err=%v", res, err)
	}
	if s.Current() != 1 {
		t.Errorf("expected current 1, got %d", s.Current())
	}

	s.Choose(1, 1)
	s.Advance()
	s.Choose(2, 1) // wrong
	res, err := s.Advance()
	if err != nil {
		t.Fatalf("final Advance: %v", err)
	}
	if res == nil {
		t.Fatal("expected result after last message")
	}
	if res.Score != 67 || !res.Passed {
		t.Errorf("expected 67 passing, got %d passed=%v", res.Score, res.Passed)
	}
	if s.Phase() != PhaseFinished {
		t.Errorf("expected finished, got %q", s.Phase())
	}
}

func TestPasswordFinishesOnSubmit(t *testing.T) {
	s := newSession(t, passwordLab())
	res, err := s.SubmitPassword("Password1!")
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if res.Score != 50 || res.Passed {
		t.Errorf("expected 50 failing, got %d passed=%v", res.Score, res.Passed)
	}
	if s.Phase() != PhaseFinished {
		t.Errorf("expected finished, got %q", s.Phase())
	}
	raw, err := s.AnswersJSON()
	if err != nil {
		t.Fatalf("AnswersJSON: %v", err)
	}
	var a map[string]any
	if err := json.Unmarshal(raw, &a); err != nil {
		t.Fatalf("decode answers: %v", err)
	}
	if _, ok := a["password"]; ok {
		t.Error("persisted answers must not include the password")
	}
}

func TestRetryKeepsLastResult(t *testing.T) {
	s := newSession(t, passwordLab())
	if err := s.Retry(); !errors.Is(err, ErrNotFinished) {
		t.Errorf("expected ErrNotFinished, got %v", err)
	}
	first, _ := s.SubmitPassword("weak")

	if err := s.Retry(); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.Attempt() != 2 {
		t.Errorf("expected attempt 2, got %d", s.Attempt())
	}
	if s.Phase() != PhaseSelecting {
		t.Errorf("expected selecting, got %q", s.Phase())
	}
	if s.Result() != nil {
		t.Error("fresh attempt should have no result")
	}
	if s.LastResult() == nil || s.LastResult().Score != first.Score {
		t.Error("last result should survive retry until the next submission")
	}

	second, _ := s.SubmitPassword("C0mplex!Pass#2024")
	if s.LastResult().Score != second.Score {
		t.Errorf("last result should now be %d, got %d", second.Score, s.LastResult().Score)
	}
}

func TestSnapshotRestore(t *testing.T) {
	lab := phishingLab()
	s := newSession(t, lab)
	s.Report(0, true)
	s.Dismiss()
	s.Report(1, false)

	snap := s.Snapshot(42)
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	r, err := Restore(lab, back)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if r.ID() != s.ID() {
		t.Errorf("expected id %s, got %s", s.ID(), r.ID())
	}
	if !r.Answered(0) || !r.Answered(1) || r.Answered(2) {
		t.Error("answers not restored")
	}
	if _, err := r.Report(1, true); !errors.Is(err, ErrAnswerLocked) {
		t.Errorf("restored answers should stay locked, got %v", err)
	}

	other := socialLab()
	if _, err := Restore(other, back); err == nil {
		t.Error("expected error restoring against a different lab")
	}
}

func TestSubmitAllAfterLabShrinks(t *testing.T) {
	long := phishingLab()
	cfg := *long.SimulationConfig.(*model.PhishingEmailConfig)
	cfg.Emails = append(cfg.Emails, model.Email{ID: "e4"}, model.Email{ID: "e5", IsPhishing: true})
	long.SimulationConfig = &cfg

	s := newSession(t, long)
	for _, i := range []int{0, 3, 4} {
		if _, err := s.Report(i, true); err != nil {
			t.Fatalf("Report(%d): %v", i, err)
		}
		s.Dismiss()
	}

	// The author trims the inbox back to three emails; stale answers for
	// the removed ones must not count towards completeness.
	r, err := Restore(phishingLab(), s.Snapshot(1))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := r.SubmitAll(); !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
}
