package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup tags and surrounding whitespace from a single-line field.
// The result is plain text: entities the policy produced are decoded again, so
// characters such as '&', '<' and quotes are kept as typed.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(input)))
}
