package language

import "strings"

// NormalizeLocale folds an STT locale to its canonical lowercase dashed form.
// Transcription services report locales inconsistently ("en", "EN_us",
// "ja-JP"); folding both sides keeps table lookups stable against that.
// Returns an empty string for blank or malformed values.
func NormalizeLocale(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "-")
}

// LanguageCode reduces a locale to its bare language code ("en" from "en-US").
// Detection results and the STT table both key on the bare code.
func LanguageCode(raw string) string {
	locale := NormalizeLocale(raw)
	if locale == "" {
		return ""
	}
	if dash := strings.IndexByte(locale, '-'); dash >= 0 {
		return locale[:dash]
	}
	return locale
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
