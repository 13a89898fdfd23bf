package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeTitle cleans a video title for use in metadata and filenames:
// control characters are dropped, whitespace collapses to single spaces, and
// shouting or all-lowercase titles are re-cased.
func NormalizeTitle(raw string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsControl(r):
		case unicode.IsSpace(r):
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		default:
			cleaned.WriteRune(r)
			prevSpace = false
		}
	}

	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled Episode"
	}
	if !hasMixedCase(title) {
		title = cases.Title(language.Und).String(strings.ToLower(title))
	}
	return title
}

func hasMixedCase(value string) bool {
	var hasUpper, hasLower bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
		if hasUpper && hasLower {
			return true
		}
	}
	return false
}
