package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/width"
)

var plainTextPolicy = bluemonday.StrictPolicy()

const plainTextPasses = 8

// PlainText strips markup from customer supplied free text and collapses runs of whitespace.
// Escaped markup such as "&lt;b&gt;" is decoded and stripped too, so PlainText is idempotent.
// Text that keeps unfolding past plainTextPasses loses its '<', '>' and '&' characters.
func PlainText(value string) string {
	text := value
	settled := false
	for i := 0; i < plainTextPasses; i++ {
		next := html.UnescapeString(plainTextPolicy.Sanitize(text))
		if next == text {
			settled = true
			break
		}
		text = next
	}
	if !settled {
		text = strings.Map(func(r rune) rune {
			if r == '<' || r == '>' || r == '&' {
				return -1
			}
			return r
		}, text)
	}
	return strings.Join(strings.Fields(text), " ")
}

// FirstNonBlank returns the first value that is not empty after trimming.
func FirstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// StripPhoneSeparators folds full-width characters to ASCII and removes whitespace,
// parentheses, hyphens and plus signs. The result is not validated.
func StripPhoneSeparators(value string) string {
	folded := width.Narrow.String(value)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '(' || r == ')' || r == '-' || r == '+':
			continue
		case unicode.IsSpace(r):
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsDigits reports whether value is non-empty and consists of ASCII digits only.
func IsDigits(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
