package question

import (
	"sort"
	"strconv"
	"strings"
)

// WildCard matches any single character in a value pattern.
const WildCard = '?'

// MatchPattern reports whether value matches any pattern. A pattern matches
// only a value of the same length whose characters agree at every
// non-wildcard position.
func MatchPattern(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchOne(p, value) {
			return true
		}
	}
	return false
}

func matchOne(pattern, value string) bool {
	if len(pattern) != len(value) {
		return false
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != WildCard && pattern[i] != value[i] {
			return false
		}
	}
	return true
}

// LessValueSet returns patterns matching exactly the decimal strings of the
// integers in [0, v). No returned pattern begins with a wildcard.
func LessValueSet(v int) []string {
	if v <= 0 {
		return nil
	}
	digits := strconv.Itoa(v)
	n := len(digits)

	var raw []string
	// Every number with fewer digits than v.
	for width := 1; width < n; width++ {
		raw = append(raw, strings.Repeat(string(WildCard), width))
	}
	// Numbers of v's width: fix a prefix of v, lower the next digit, free the rest.
	for pos := 0; pos < n; pos++ {
		lo := byte('0')
		if pos == 0 && n > 1 {
			lo = '1'
		}
		for c := lo; c < digits[pos]; c++ {
			raw = append(raw, digits[:pos]+string(c)+strings.Repeat(string(WildCard), n-pos-1))
		}
	}

	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.Trim(p, string(WildCard)) != "" {
			out = append(out, p)
			continue
		}
		out = append(out, expandLeadingDigit(p)...)
	}
	return out
}

// LessEqualValueSet returns patterns for the integers in [0, v].
func LessEqualValueSet(v int) []string {
	return LessValueSet(v + 1)
}

// expandLeadingDigit replaces the first wildcard of an all-wildcard pattern
// with explicit digits. Multi-digit numbers never start with 0.
func expandLeadingDigit(p string) []string {
	lo := byte('1')
	if len(p) == 1 {
		lo = '0'
	}
	out := make([]string, 0, 10)
	for c := lo; c <= '9'; c++ {
		out = append(out, string(c)+p[1:])
	}
	return out
}

// ExpandWildCard enumerates every digit substitution of the wildcards in
// pattern. A pattern without wildcards expands to itself.
func ExpandWildCard(pattern string) []string {
	i := strings.IndexByte(pattern, WildCard)
	if i < 0 {
		return []string{pattern}
	}
	var out []string
	for c := byte('0'); c <= '9'; c++ {
		out = append(out, ExpandWildCard(pattern[:i]+string(c)+pattern[i+1:])...)
	}
	return out
}

// sortValues puts numeric patterns first, ordered by width then text (which
// is numeric order for plain integers), followed by the rest in text order.
func sortValues(values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		a, b := values[i], values[j]
		na, nb := isNumericPattern(a), isNumericPattern(b)
		if na != nb {
			return na
		}
		if na && len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
}

func isNumericPattern(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (s[i] < '0' || s[i] > '9') && s[i] != WildCard {
			return false
		}
	}
	return true
}
