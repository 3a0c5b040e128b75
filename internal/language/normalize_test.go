package language

import "testing"

func TestNormalizeLocale(t *testing.T) {
	t.Parallel()

	if got := NormalizeLocale(" EN_us "); got != "en-us" {
		t.Fatalf("unexpected normalized locale: %q", got)
	}
	if got := NormalizeLocale("ja-JP"); got != "ja-jp" {
		t.Fatalf("unexpected normalized locale: %q", got)
	}
	if got := NormalizeLocale("id--ID"); got != "id-id" {
		t.Fatalf("unexpected collapsed locale: %q", got)
	}
	if got := NormalizeLocale("en_123"); got != "" {
		t.Fatalf("expected malformed locale to normalize to empty string, got %q", got)
	}
}

func TestLanguageCode(t *testing.T) {
	t.Parallel()

	if got := LanguageCode(" EN-us "); got != "en" {
		t.Fatalf("unexpected language code: %q", got)
	}
	if got := LanguageCode("ja"); got != "ja" {
		t.Fatalf("unexpected language code: %q", got)
	}
	if got := LanguageCode(" "); got != "" {
		t.Fatalf("expected blank locale to yield empty code, got %q", got)
	}
}
