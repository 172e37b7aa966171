// Package sanitize normalizes user-supplied free text before it is stored.
//
// It is defense in depth only; every query still goes through bound parameters.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// Field length limits applied after the generic pipeline.
const (
	RoomTitleMaxLength       = 100
	RoomDescriptionMaxLength = 500
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	jsSchemePattern   = regexp.MustCompile(`(?i)javascript\s*:`)
	sqlMetaCharacters = "'\";\\"
)

// Text runs the full pipeline: tags, javascript: schemes, SQL metacharacters and
// control characters are removed until the string stops changing, then it is trimmed.
// Text(Text(x)) == Text(x).
func Text(raw string) string {
	if raw == "" {
		return ""
	}
	s := raw
	for {
		next := stripOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// RoomTitle sanitizes a room title and caps it at RoomTitleMaxLength runes.
func RoomTitle(raw string) string {
	return truncate(Text(raw), RoomTitleMaxLength)
}

// RoomDescription sanitizes a room description and caps it at RoomDescriptionMaxLength runes.
func RoomDescription(raw string) string {
	return truncate(Text(raw), RoomDescriptionMaxLength)
}

func stripOnce(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = jsSchemePattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(sqlMetaCharacters, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// truncate 按 rune 截断，避免切断多字节字符；截断后可能露出尾部空白，再 trim 一次。
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
