package core

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditDistance returns the Levenshtein distance between a and b with unit
// costs for insertion, deletion and substitution. Distance is counted in
// runes, so Hangul syllables cost one edit each.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Similarity returns 1 - distance/maxLen in [0, 1]. Two empty strings are
// identical.
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-EditDistance(a, b)) / float64(maxLen)
}

// normalizeName trims and collapses internal whitespace.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
