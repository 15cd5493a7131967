package detector

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage guesses the language of one subtitle line. Short lines give
// the detector very little signal, so an unconfident result comes back as
// language.Und and the caller treats the line as foreign.
func DetectLanguage(text string) language.Tag {
	text = strings.TrimSpace(text)
	if text == "" {
		return language.Und
	}
	code := whatlanggo.DetectLang(text).Iso6391()
	if code == "" {
		return language.Und
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und
	}
	return tag
}

// translationNeeded reports whether a translated line should be produced at
// all. Only a confident detection matching the target language suppresses
// it; Und errs on the side of translating.
func translationNeeded(text string, target language.Tag) bool {
	detected := DetectLanguage(text)
	if detected == language.Und {
		return true
	}
	db, _ := detected.Base()
	tb, _ := target.Base()
	return db != tb
}
