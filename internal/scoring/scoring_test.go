package scoring

import (
	"reflect"
	"testing"

	"github.com/pavelanni/awarelab/internal/model"
)

func fiveEmails() *model.PhishingEmailConfig {
	return &model.PhishingEmailConfig{
		Emails: []model.Email{
			{ID: "e1", IsPhishing: true},
			{ID: "e2", IsPhishing: false},
			{ID: "e3", IsPhishing: true},
			{ID: "e4", IsPhishing: false},
			{ID: "e5", IsPhishing: true},
		},
	}
}

func threeMessages() *model.SocialEngineeringConfig {
	msg := func(id string, correct int) model.SocialMessage {
		m := model.SocialMessage{ID: id}
		for i := 0; i < 3; i++ {
			m.Responses = append(m.Responses, model.SocialResponse{Text: "r", IsCorrect: i == correct})
		}
		return m
	}
	return &model.SocialEngineeringConfig{
		Messages: []model.SocialMessage{msg("m1", 0), msg("m2", 2), msg("m3", 1)},
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{4, 5, 80},
		{2, 3, 67},
		{1, 3, 33},
		{1, 2, 50},
		{1, 8, 13},
		{5, 5, 100},
	}
	for _, tt := range tests {
		if got := Percent(tt.correct, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestScorePhishingFourOfFive(t *testing.T) {
	cfg := fiveEmails()
	// e4 is legitimate but reported.
	reported := map[int]bool{0: true, 1: false, 2: true, 3: true, 4: true}

	res := ScorePhishing(cfg, reported, 70)
	if res.Score != 80 {
		t.Errorf("expected score 80, got %d", res.Score)
	}
	if !res.Passed {
		t.Error("expected passed with passing score 70")
	}
	if res.Correct != 4 || res.Total != 5 {
		t.Errorf("expected 4/5, got %d/%d", res.Correct, res.Total)
	}
	if res.Items[3].Correct {
		t.Error("item 3 should be marked wrong")
	}
	if res.Items[0].ID != "e1" {
		t.Errorf("expected item id e1, got %q", res.Items[0].ID)
	}
}

func TestScoreBinaryEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		links      []model.Link
		reported   map[int]bool
		passing    int
		wantScore  int
		wantPassed bool
	}{
		{"no links", nil, nil, 70, 0, false},
		{"no links zero threshold", nil, nil, 0, 0, true},
		{"all unanswered", []model.Link{{IsMalicious: true}, {IsMalicious: false}}, nil, 50, 0, false},
		{"unanswered legit link is still wrong", []model.Link{{IsMalicious: false}}, map[int]bool{}, 50, 0, false},
		{"answers outside range ignored", []model.Link{{IsMalicious: true}}, map[int]bool{0: true, 7: true}, 100, 100, true},
		{"mixed", []model.Link{{IsMalicious: true}, {IsMalicious: false}, {IsMalicious: true}}, map[int]bool{0: true, 1: true, 2: true}, 70, 67, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ScoreLinks(&model.SuspiciousLinksConfig{Links: tt.links}, tt.reported, tt.passing)
			if res.Score != tt.wantScore {
				t.Errorf("expected score %d, got %d", tt.wantScore, res.Score)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("expected passed=%v, got %v", tt.wantPassed, res.Passed)
			}
		})
	}
}

func TestScoreNilConfigs(t *testing.T) {
	if res := ScorePhishing(nil, map[int]bool{0: true}, 0); res.Score != 0 || res.Total != 0 {
		t.Errorf("nil phishing config: %+v", res)
	}
	if res := ScoreSocial(nil, map[int]int{0: 1}, 50); res.Score != 0 || res.Passed {
		t.Errorf("nil social config: %+v", res)
	}
	if res := Score(nil, Answers{}, 0); res.Score != 0 {
		t.Errorf("nil config via Score: %+v", res)
	}
}

func TestScoreSocialTwoOfThree(t *testing.T) {
	cfg := threeMessages()
	chosen := map[int]int{0: 0, 1: 2, 2: 0}

	for _, tt := range []struct {
		passing int
		want    bool
	}{{60, true}, {67, true}, {70, false}} {
		res := ScoreSocial(cfg, chosen, tt.passing)
		if res.Score != 67 {
			t.Fatalf("expected score 67, got %d", res.Score)
		}
		if res.Passed != tt.want {
			t.Errorf("passing %d: expected passed=%v, got %v", tt.passing, tt.want, res.Passed)
		}
	}
}

func TestCheckResponseOutOfRange(t *testing.T) {
	msg := threeMessages().Messages[0]
	for _, idx := range []int{-1, 3, 99} {
		if CheckResponse(msg, idx) {
			t.Errorf("CheckResponse(%d) should be false", idx)
		}
	}
	if !CheckResponse(msg, 0) {
		t.Error("CheckResponse(0) should be true")
	}
}

func TestScoreDispatch(t *testing.T) {
	tests := []struct {
		name      string
		cfg       model.SimulationConfig
		answers   Answers
		wantScore int
	}{
		{"phishing", fiveEmails(), Answers{Reported: map[int]bool{0: true, 1: false, 2: true, 3: false, 4: true}}, 100},
		{"links", &model.SuspiciousLinksConfig{Links: []model.Link{{IsMalicious: true}, {}}}, Answers{Reported: map[int]bool{0: true}}, 50},
		{"password", &model.PasswordStrengthConfig{Requirements: model.PasswordRequirements{MinLength: 4}}, Answers{Password: "abcd"}, 100},
		{"social", threeMessages(), Answers{Chosen: map[int]int{0: 0}}, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.cfg, tt.answers, 50)
			if res.Score != tt.wantScore {
				t.Errorf("expected %d, got %d", tt.wantScore, res.Score)
			}
		})
	}
}

func TestScoreIsPure(t *testing.T) {
	cfgs := []struct {
		cfg     model.SimulationConfig
		answers Answers
	}{
		{fiveEmails(), Answers{Reported: map[int]bool{0: true, 3: true}}},
		{threeMessages(), Answers{Chosen: map[int]int{0: 0, 1: 1}}},
		{&model.PasswordStrengthConfig{
			Requirements:    model.PasswordRequirements{MinLength: 8, RequireSpecial: true},
			BannedPasswords: []string{"qwerty"},
		}, Answers{Password: "Qwerty!2024"}},
	}
	for _, c := range cfgs {
		a := Score(c.cfg, c.answers, 60)
		b := Score(c.cfg, c.answers, 60)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: results differ between calls:\n%+v\n%+v", c.cfg.LabType(), a, b)
		}
	}
}
