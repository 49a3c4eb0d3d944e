package matcher

import (
	"fmt"
	"strings"

	"github.com/gcbaptista/medlex-spotter/config"
	"github.com/gcbaptista/medlex-spotter/internal/errors"
)

// Entry holds the compiled matchers for one canonical, in the order they run:
// exact, then fuzzy (one per term), then phonetic.
type Entry struct {
	Canonical string
	Matchers  []Matcher
}

// FindAll runs every matcher of the entry and concatenates their hits.
func (e Entry) FindAll(text []rune) []Hit {
	hits := make([]Hit, 0)
	for _, m := range e.Matchers {
		hits = append(hits, m.FindAll(text)...)
	}
	return hits
}

// Bank maps each canonical to its compiled matchers. It is built once per
// run, never modified afterwards, and shared by every scan.
type Bank struct {
	entries []Entry
	index   map[string]int
}

// Build compiles one Entry per target, preserving configuration order.
// It fails with a *errors.ConfigError when a target has no canonical, has an
// empty terms list, has a fuzzy threshold outside 0-100, or repeats a
// canonical already defined by an earlier target.
func Build(targets []config.Target) (*Bank, error) {
	b := &Bank{
		entries: make([]Entry, 0, len(targets)),
		index:   make(map[string]int, len(targets)),
	}

	for i, t := range targets {
		field := fmt.Sprintf("targets[%d]", i)

		canonical := strings.ToUpper(strings.TrimSpace(t.Canonical))
		if canonical == "" {
			return nil, errors.NewConfigError(field+".canonical", "each target needs a non-empty 'canonical'")
		}
		if len(t.Terms) == 0 {
			return nil, errors.NewConfigError(field+".terms", fmt.Sprintf("target '%s' needs a non-empty 'terms' list", canonical))
		}
		if prev, dup := b.index[canonical]; dup {
			return nil, errors.NewConfigError(field+".canonical",
				fmt.Sprintf("duplicate canonical '%s' (already defined by targets[%d])", canonical, prev))
		}

		entry := Entry{Canonical: canonical}
		entry.Matchers = append(entry.Matchers, NewExactMatcher(canonical, t.Terms))

		if t.Fuzzy != nil {
			if *t.Fuzzy < 0 || *t.Fuzzy > 100 {
				return nil, errors.NewConfigError(field+".fuzzy", fmt.Sprintf("must be between 0 and 100, got %d", *t.Fuzzy))
			}
			for _, term := range t.Terms {
				if fm := NewFuzzyMatcher(canonical, term, *t.Fuzzy); fm != nil {
					entry.Matchers = append(entry.Matchers, fm)
				}
			}
		}

		if t.GeneratePhonetic {
			if pm := NewPhoneticMatcher(canonical, t.Terms); pm != nil {
				entry.Matchers = append(entry.Matchers, pm)
			}
		}

		b.index[canonical] = len(b.entries)
		b.entries = append(b.entries, entry)
	}

	return b, nil
}

// Len returns the number of canonicals in the bank.
func (b *Bank) Len() int { return len(b.entries) }

// Canonicals returns the canonical names in configuration order.
func (b *Bank) Canonicals() []string {
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Canonical
	}
	return out
}

// Entries returns the compiled entries in configuration order. The matchers
// are shared; the slice is a copy.
func (b *Bank) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Entry looks up the matchers of a canonical, case-insensitively.
func (b *Bank) Entry(canonical string) (Entry, bool) {
	i, ok := b.index[strings.ToUpper(strings.TrimSpace(canonical))]
	if !ok {
		return Entry{}, false
	}
	return b.entries[i], true
}
