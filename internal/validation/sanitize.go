package validation

import (
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// MaxFileNameLength bounds sanitized file names.
const MaxFileNameLength = 255

// maxStripPasses bounds the unescape-and-strip loop in SanitizeText.
const maxStripPasses = 4

// InlineTags is the allow-list kept by SanitizeHTML.
var InlineTags = []string{"b", "i", "u", "strong", "em", "p", "br", "ul", "ol", "li"}

var (
	strictPolicy = bluemonday.StrictPolicy()
	inlinePolicy = newInlinePolicy()

	urlScheme      = regexp.MustCompile(`^https?://`)
	fileNameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

func newInlinePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(InlineTags...)
	return p
}

// SanitizeText strips all markup and returns plain, unescaped text. Entity
// encoded tags are decoded and stripped too, so the result holds no tags.
// Empty input yields an empty string.
func SanitizeText(input string) string {
	if input == "" {
		return ""
	}
	text := norm.NFC.String(input)
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(strictPolicy.Sanitize(text))
		if next == text {
			return text
		}
		text = next
	}
	// Still changing: fall back to the escaped form, which cannot carry tags.
	return strictPolicy.Sanitize(text)
}

// SanitizeHTML keeps the inline formatting allow-list and drops every other
// element and every attribute.
func SanitizeHTML(input string) string {
	if input == "" {
		return ""
	}
	return inlinePolicy.Sanitize(norm.NFC.String(input))
}

// SanitizeURL strips markup and returns the result when it uses http or
// https. A plain URL comes back unchanged, query string included. Anything
// else yields an empty string.
func SanitizeURL(input string) string {
	cleaned := SanitizeText(input)
	if !urlScheme.MatchString(cleaned) {
		return ""
	}
	return cleaned
}

// SanitizeFileName keeps [a-zA-Z0-9._-] and truncates to MaxFileNameLength.
// Applying it twice yields the same result as applying it once.
func SanitizeFileName(input string) string {
	cleaned := fileNameUnsafe.ReplaceAllString(input, "")
	if len(cleaned) > MaxFileNameLength {
		cleaned = cleaned[:MaxFileNameLength]
	}
	return cleaned
}
