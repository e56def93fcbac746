package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "SubmitAccepted")
	if got != "Your answers have been submitted." {
		t.Errorf("T(SubmitAccepted) = %q", got)
	}

	got = T(ctx, "LoginError")
	if got != "Invalid username or password." {
		t.Errorf("T(LoginError) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "SubmitAccepted")
	if got != "Ваши ответы отправлены." {
		t.Errorf("T(SubmitAccepted) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TimeRemaining", map[string]any{"Seconds": 3000})
	if got != "Time remaining: 3000 seconds." {
		t.Errorf("Td(TimeRemaining) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the key itself", got)
	}
}
