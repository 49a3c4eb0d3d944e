package classify

import (
	"github.com/dlclark/regexp2"
)

// Context scores the dosage and medication-form language around a hit.
// The score is an auxiliary signal and never gates a flag.
type Context struct {
	dosage *regexp2.Regexp
	forms  *regexp2.Regexp
	window int
}

// NewContext compiles the dosage-unit and form fragments. An empty fragment
// disables its half of the score.
func NewContext(dosageUnits, forms string, window int) (*Context, error) {
	c := &Context{window: window}

	if dosageUnits != "" {
		re, err := compile("defaults.dosage_units", `\b\d+(?:\.\d+)?\s*(`+dosageUnits+`)\b`)
		if err != nil {
			return nil, err
		}
		c.dosage = re
	}
	if forms != "" {
		re, err := compile("defaults.forms", `\b`+forms+`\b`)
		if err != nil {
			return nil, err
		}
		c.forms = re
	}
	return c, nil
}

// Score counts dosage expressions ("500mg", "10 units") plus form words
// ("tablet", "XR") within the window around text[start:end].
func (c *Context) Score(text []rune, start, end int) int {
	if len(text) == 0 {
		return 0
	}
	lo, hi := Window(len(text), start, end, c.window)
	window := text[lo:hi]
	return countMatches(c.dosage, window) + countMatches(c.forms, window)
}

// Window returns the radius, in runes, scored around a hit.
func (c *Context) Window() int { return c.window }
