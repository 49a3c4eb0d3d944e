// Package classify inspects the text surrounding a hit: whether a negation
// cue sits near it, and how much dosage/form language accompanies it.
//
// Patterns are user-authored, so they are compiled with regexp2, which
// accepts the look-around constructs that RE2 rejects.
package classify

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/gcbaptista/medlex-spotter/internal/errors"
)

// Window returns the bounds of [start-radius, end+radius) clamped to a text
// of length runes. All values count runes.
func Window(length, start, end, radius int) (lo, hi int) {
	if radius < 0 {
		radius = 0
	}
	lo = clamp(start-radius, 0, length)
	hi = clamp(end+radius, 0, length)
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Snippet returns the text inside Window.
func Snippet(text []rune, start, end, radius int) string {
	lo, hi := Window(len(text), start, end, radius)
	return string(text[lo:hi])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func compile(field, expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return nil, errors.WrapConfigError(field, fmt.Sprintf("invalid regular expression %q", expr), err)
	}
	return re, nil
}

// countMatches counts non-overlapping matches of re in s. Patterns carry no
// MatchTimeout, so the only error regexp2 can return never occurs.
func countMatches(re *regexp2.Regexp, s []rune) int {
	if re == nil || len(s) == 0 {
		return 0
	}
	n := 0
	m, _ := re.FindRunesMatch(s)
	for m != nil {
		n++
		m, _ = re.FindNextMatch(m)
	}
	return n
}
