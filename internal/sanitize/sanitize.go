// Package sanitize cleans the free-text fields of a run, its label and tags,
// before they are stored in history and echoed back to MCP clients.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLabelLength is the maximum allowed length for a run label.
const MaxLabelLength = 80

// MaxTagLength is the maximum allowed length for a tag.
const MaxTagLength = 40

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reWhitespace = regexp.MustCompile(`\s+`)

	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// Label cleans a run label: control characters and markup tags are
// removed, whitespace runs become one space and the result is truncated to
// MaxLabelLength bytes on a rune boundary.
func Label(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, MaxLabelLength)
}

// Tag keeps only [a-zA-Z0-9-_/.:] and enforces MaxTagLength. Repeated
// hyphens and underscores are collapsed.
func Tag(input string) string {
	if input == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' || r == ':' {
			b.WriteRune(r)
		}
	}
	s := reRepeatedHyphens.ReplaceAllString(b.String(), "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	return truncate(s, MaxTagLength)
}

// Tags sanitizes every tag and drops the ones left empty.
func Tags(input []string) []string {
	if len(input) == 0 {
		return nil
	}
	out := make([]string, 0, len(input))
	for _, t := range input {
		if s := Tag(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			if r == '\n' || r == '\t' {
				b.WriteRune(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
