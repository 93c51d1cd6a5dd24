package parser

import "github.com/abadojack/whatlanggo"

// LanguageDetector identifies the language of plain text. Detection
// is best-effort and may refuse to answer; failure is never fatal to
// extraction.
type LanguageDetector interface {
	Detect(text string) (code string, ok bool)
}

// WhatlangDetector detects content language using trigram profiles.
type WhatlangDetector struct{}

// Detect returns an ISO 639-1 code (639-3 when no two-letter code
// exists) and whether the guess is reliable.
func (WhatlangDetector) Detect(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", false
	}

	code := info.Lang.Iso6391()
	if code == "" {
		code = info.Lang.Iso6393()
	}
	return code, true
}
