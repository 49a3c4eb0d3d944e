package classify

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Negation decides whether a hit sits near a negation cue. It is immutable
// and safe for concurrent use.
type Negation struct {
	sources  []string
	patterns []*regexp2.Regexp
	window   int
}

// NewNegation compiles each pattern separately, case-insensitively. A pattern
// that fails to compile is reported as a ConfigError naming its position.
func NewNegation(patterns []string, window int) (*Negation, error) {
	n := &Negation{
		sources:  append([]string(nil), patterns...),
		patterns: make([]*regexp2.Regexp, 0, len(patterns)),
		window:   window,
	}
	for i, p := range patterns {
		re, err := compile(fmt.Sprintf("negation.patterns[%d]", i), p)
		if err != nil {
			return nil, err
		}
		n.patterns = append(n.patterns, re)
	}
	return n, nil
}

// IsNegated reports whether any pattern matches within the window of
// radius Window() around text[start:end]. Offsets count runes; bounds
// outside the text are clamped.
func (n *Negation) IsNegated(text []rune, start, end int) bool {
	if len(text) == 0 {
		return false
	}
	lo, hi := Window(len(text), start, end, n.window)
	window := text[lo:hi]
	for _, re := range n.patterns {
		// No MatchTimeout is set, so MatchRunes cannot fail.
		if ok, _ := re.MatchRunes(window); ok {
			return true
		}
	}
	return false
}

// Window returns the radius, in runes, searched around a hit.
func (n *Negation) Window() int { return n.window }

// Patterns returns the source patterns in evaluation order.
func (n *Negation) Patterns() []string {
	return append([]string(nil), n.sources...)
}
