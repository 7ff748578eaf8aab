package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold returns s in NFKC form, case-folded, trimmed, with runs of whitespace
// collapsed to one space. Two strings that a reader would consider the same
// name fold to the same value.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// NormalizeKeyword is the canonical form stored in the keyword table.
func NormalizeKeyword(s string) string {
	return Fold(s)
}

// KeywordID derives the canonical keyword identifier from a raw keyword.
// The same keyword string always yields the same positive ID across runs.
func KeywordID(keyword string) int64 {
	return int64(StringHash(NormalizeKeyword(keyword)))
}

// StringHash is the classic multiply-by-31 string hash over runes, truncated
// to 32 bits and made non-negative. Empty input hashes to 0.
func StringHash(s string) uint32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	if h < 0 {
		// -math.MinInt32 overflows int32; widen before negating.
		return uint32(-int64(h))
	}
	return uint32(h)
}

// TruncateWords shortens s to at most limit runes, cutting at the last word
// boundary and appending an ellipsis when anything was removed.
func TruncateWords(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	cut := runes[:limit-3]
	if idx := lastSpace(cut); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "..."
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
