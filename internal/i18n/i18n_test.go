package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Awareness Labs" {
		t.Errorf("T(AppTitle) = %q, want 'Awareness Labs'", got)
	}
	if got := T(ctx, "StatusIN_PROGRESS"); got != "In progress" {
		t.Errorf("T(StatusIN_PROGRESS) = %q, want 'In progress'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "StrengthStrong"); got != "Надёжный" {
		t.Errorf("T(StrengthStrong) = %q, want 'Надёжный'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "MinutesSpent", 1); got != "1 minute" {
		t.Errorf("Tp(MinutesSpent, 1) = %q, want '1 minute'", got)
	}
	if got := Tp(ctx, "MinutesSpent", 5); got != "5 minutes" {
		t.Errorf("Tp(MinutesSpent, 5) = %q, want '5 minutes'", got)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "MinutesSpent", 5); got != "5 минут" {
		t.Errorf("Tp(MinutesSpent, 5) ru = %q, want '5 минут'", got)
	}
}

func TestValidationMessage(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ValidationMinItems", map[string]any{"Field": "emails", "Min": 2})
	if got != "at least 2 emails required" {
		t.Errorf("Td(ValidationMinItems) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"de-DE", "en"},
		{"fr;q=0.5, en-GB", "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.header); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Выйти" {
		t.Errorf("Accept-Language ru gave %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "ru")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Log out" {
		t.Errorf("lang=en override gave %q", got)
	}
}
