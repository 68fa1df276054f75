package rules

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/reoring/formstate"
)

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy
)

func strictSanitizer() *bluemonday.Policy {
	strictOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// ContainsMarkup reports whether sanitizing s with a strict policy changes
// its text, i.e. s carries tags, comments or entities that would be stripped.
func ContainsMarkup(s string) bool {
	if !strings.ContainsAny(s, "<>&") {
		return false
	}
	return html.UnescapeString(strictSanitizer().Sanitize(s)) != s
}

func noMarkup(_ Context, v formstate.Value) error {
	s, ok := v.AsText()
	if !ok || s == "" {
		return nil
	}
	if ContainsMarkup(s) {
		return issue(formstate.CodeMarkup, nil)
	}
	return nil
}
