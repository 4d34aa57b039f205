package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// ExtractSnippet returns the human-review context for the match at
// [start, end) and the window it was cut from.
//
// When content is longer than truncateLine the window is the match padded by
// offset bytes on each side, clipped to the content bounds and pulled inward
// to UTF-8 rune boundaries. Otherwise the window is the whole content.
// The snippet is the window with surrounding whitespace trimmed; if trimming
// would leave nothing, the untrimmed window is returned so a snippet is never
// empty for a non-empty match.
//
// Returns an empty snippet and zero span if start/end are out of range.
func ExtractSnippet(content string, start, end, truncateLine, offset int) (string, types.OffsetSpan) {
	if start < 0 || end > len(content) || start > end {
		return "", types.OffsetSpan{}
	}

	left, right := 0, len(content)
	if len(content) > truncateLine {
		left = max(start-offset, 0)
		right = min(end+offset, len(content))

		// Never cut a multi-byte rune in half. Moving inward cannot cross the
		// match because start and end are rune boundaries.
		for left < start && !utf8.RuneStart(content[left]) {
			left++
		}
		for right > end && right < len(content) && !utf8.RuneStart(content[right]) {
			right--
		}
	}

	window := content[left:right]
	snippet := strings.TrimSpace(window)
	if snippet == "" {
		snippet = window
	}

	return snippet, types.OffsetSpan{Start: left, End: right}
}

// TruncateSecret shortens s to at most limit runes for display.
// A non-positive limit disables truncation.
func TruncateSecret(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
