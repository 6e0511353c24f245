package extraction

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	markupPattern     = regexp.MustCompile(`(?i)</?(p|div|span|br|li|ul|ol|h[1-6]|strong|em|b|i|a|code|pre|table|thead|tbody|tr|td|th|blockquote|img|hr)(\s[^<>]*)?/?>`)
	blockTagPattern   = regexp.MustCompile(`(?i)<(br\s*/?|/p|/div|/li|/h[1-6]|/pre|/tr)>`)
	excessBlankLines  = regexp.MustCompile(`\n\n\n+`)
	trailingSpaceLine = regexp.MustCompile(`[ \t]+\n`)
	stripPolicy       = bluemonday.StrictPolicy()
)

// NormalizeContent cleans message text while preserving its structure:
// line endings become LF, text is NFC-normalized, markup is stripped,
// and runs of blank lines are collapsed.
func NormalizeContent(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = norm.NFC.String(content)

	if HasMarkup(content) {
		content = StripMarkup(content)
	}

	content = trailingSpaceLine.ReplaceAllString(content, "\n")
	content = excessBlankLines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// HasMarkup reports whether text contains HTML tags outside fenced code blocks.
func HasMarkup(text string) bool {
	return markupPattern.MatchString(withoutFences(text))
}

// StripMarkup removes HTML tags, turning block-level closers into line breaks.
// Fenced code blocks are left untouched.
func StripMarkup(text string) string {
	parts := strings.Split(text, "```")
	for i := range parts {
		// even indices are outside fences
		if i%2 == 1 {
			continue
		}
		p := blockTagPattern.ReplaceAllString(parts[i], "$0\n")
		p = stripPolicy.Sanitize(p)
		parts[i] = html.UnescapeString(p)
	}
	return strings.Join(parts, "```")
}

func withoutFences(text string) string {
	parts := strings.Split(text, "```")
	var sb strings.Builder
	for i, p := range parts {
		if i%2 == 0 {
			sb.WriteString(p)
		}
	}
	return sb.String()
}
