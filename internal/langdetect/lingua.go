package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detection is the detector's best guess for a transcript's language.
type Detection struct {
	ISO6391    string
	Confidence float64
}

// DetectISO6391 returns the ISO 639-1 code of the most likely language of the
// text, or an empty code when the sample is too short to judge.
func DetectISO6391(text string) string {
	return Detect(text).ISO6391
}

// Detect returns the most likely language of the text together with the
// detector's confidence. Samples with fewer than six letters are not judged.
func Detect(text string) Detection {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return Detection{}
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return Detection{}
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Detection{}
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return Detection{}
	}

	confidence := getDetector().ComputeLanguageConfidence(sample, language)
	return Detection{ISO6391: code, Confidence: confidence}
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
