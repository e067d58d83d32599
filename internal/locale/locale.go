// Package locale maps UI language codes onto the languages the companion
// speaks and writes.
package locale

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultCode is the UI language used when none is chosen.
const DefaultCode = "en"

// Supported are the UI languages. The first entry is the fallback.
var Supported = []language.Tag{language.English, language.Tamil, language.Hindi}

var matcher = language.NewMatcher(Supported)

// Resolve maps a UI language code such as "ta" or "hi-IN" onto one
// of [Supported]. Unknown or malformed codes resolve to English.
func Resolve(code string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return Supported[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Supported[0]
	}
	return Supported[idx]
}

// Name returns the English name of the resolved language, as used in
// prompts ("Tamil").
func Name(code string) string {
	return display.English.Tags().Name(Resolve(code))
}

// Code returns the base language code of the resolved language ("ta").
func Code(code string) string {
	base, _ := Resolve(code).Base()
	return base.String()
}

// IsSupported reports whether code resolves to a supported language other
// than by falling back.
func IsSupported(code string) bool {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return false
	}
	_, _, conf := matcher.Match(tag)
	return conf != language.No
}
