// Package matcher compiles a target vocabulary into exact, fuzzy and phonetic
// matchers and runs them over note text.
//
// Note text is passed as runes and every offset counts runes. Patterns are
// compiled with regexp2, whose \b and \w follow Unicode word characters, so
// terms in any script match on real word boundaries.
package matcher

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/gcbaptista/medlex-spotter/internal/phonetic"
	"github.com/gcbaptista/medlex-spotter/internal/tokenizer"
	"github.com/gcbaptista/medlex-spotter/internal/typoutil"
)

// Method identifies which kind of matcher produced a hit.
type Method string

const (
	MethodExact    Method = "exact"
	MethodFuzzy    Method = "fuzzy"
	MethodPhonetic Method = "phonetic"
)

const (
	// ExactScore is the confidence of a verbatim term match.
	ExactScore = 100
	// PhoneticScore is the confidence of a phonetic code match.
	PhoneticScore = 80

	fuzzyStubRunes   = 3
	fuzzyMaxTail     = 12
	phoneticMinToken = 3
	phoneticMaxToken = 15
)

// Hit is a single located match of a variant in a text.
type Hit struct {
	Canonical string `json:"canonical"`
	Variant   string `json:"variant"` // configured term, or a ph_ code for phonetic hits
	Score     int    `json:"score"`   // 0-100
	Start     int    `json:"start"`   // rune offset, inclusive
	End       int    `json:"end"`     // rune offset, exclusive
	Method    Method `json:"method"`
}

// Matcher finds hits for one canonical. Implementations are immutable and
// safe for concurrent use.
type Matcher interface {
	Method() Method
	FindAll(text []rune) []Hit
}

// ExactMatcher matches any configured term verbatim, case-insensitively, on
// word boundaries.
type ExactMatcher struct {
	canonical string
	terms     []string
	re        *regexp2.Regexp // nil when there are no usable terms; never matches
}

// NewExactMatcher compiles the alternation of all non-blank terms. Longer
// terms are tried first so "insulin glargine" wins over "insulin".
func NewExactMatcher(canonical string, terms []string) *ExactMatcher {
	m := &ExactMatcher{canonical: canonical, terms: usableTerms(terms)}
	if len(m.terms) == 0 {
		return m
	}

	ordered := append([]string(nil), m.terms...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})

	quoted := make([]string, len(ordered))
	for i, t := range ordered {
		quoted[i] = regexp2.Escape(t)
	}
	m.re = regexp2.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`, regexp2.IgnoreCase)
	return m
}

func (m *ExactMatcher) Method() Method { return MethodExact }

func (m *ExactMatcher) FindAll(text []rune) []Hit {
	hits := make([]Hit, 0)
	if m.re == nil || len(text) == 0 {
		return hits
	}
	for _, loc := range findAll(m.re, text) {
		hits = append(hits, Hit{
			Canonical: m.canonical,
			Variant:   m.variantFor(string(text[loc[0]:loc[1]])),
			Score:     ExactScore,
			Start:     loc[0],
			End:       loc[1],
			Method:    MethodExact,
		})
	}
	return hits
}

// variantFor maps the matched text back to the configured term it came from.
func (m *ExactMatcher) variantFor(matched string) string {
	for _, t := range m.terms {
		if strings.EqualFold(t, matched) {
			return t
		}
	}
	return matched
}

// FuzzyMatcher accepts windows that start with the first three characters of
// a term and are similar enough to it.
type FuzzyMatcher struct {
	canonical  string
	term       string
	normalized string
	threshold  int
	re         *regexp2.Regexp
}

// NewFuzzyMatcher returns nil for a blank term.
func NewFuzzyMatcher(canonical, term string, threshold int) *FuzzyMatcher {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	stub := term
	if utf8.RuneCountInString(term) > fuzzyStubRunes {
		stub = string([]rune(term)[:fuzzyStubRunes])
	}

	return &FuzzyMatcher{
		canonical:  canonical,
		term:       term,
		normalized: tokenizer.Normalize(term),
		threshold:  threshold,
		re:         regexp2.MustCompile(regexp2.Escape(stub) + `\w{0,` + strconv.Itoa(fuzzyMaxTail) + `}`, regexp2.IgnoreCase),
	}
}

func (m *FuzzyMatcher) Method() Method { return MethodFuzzy }

// Threshold returns the minimum accepted similarity.
func (m *FuzzyMatcher) Threshold() int { return m.threshold }

func (m *FuzzyMatcher) FindAll(text []rune) []Hit {
	hits := make([]Hit, 0)
	if len(text) == 0 {
		return hits
	}
	for _, loc := range findAll(m.re, text) {
		ratio := typoutil.Ratio(tokenizer.Normalize(string(text[loc[0]:loc[1]])), m.normalized)
		if ratio < float64(m.threshold) {
			continue
		}
		hits = append(hits, Hit{
			Canonical: m.canonical,
			Variant:   m.term,
			Score:     int(math.Round(ratio)),
			Start:     loc[0],
			End:       loc[1],
			Method:    MethodFuzzy,
		})
	}
	return hits
}

// PhoneticMatcher accepts word tokens whose Double Metaphone codes equal a
// code of one of the terms.
type PhoneticMatcher struct {
	canonical string
	codes     []string
}

// NewPhoneticMatcher returns nil when no term yields a phonetic code.
func NewPhoneticMatcher(canonical string, terms []string) *PhoneticMatcher {
	codes := phonetic.EncodeAll(usableTerms(terms))
	if len(codes) == 0 {
		return nil
	}
	return &PhoneticMatcher{canonical: canonical, codes: codes}
}

func (m *PhoneticMatcher) Method() Method { return MethodPhonetic }

// Codes returns the phonetic codes the matcher accepts.
func (m *PhoneticMatcher) Codes() []string { return append([]string(nil), m.codes...) }

// FindAll reports one hit per (code, token) pair, codes in sorted order and
// tokens in text order.
func (m *PhoneticMatcher) FindAll(text []rune) []Hit {
	hits := make([]Hit, 0)
	if len(text) == 0 {
		return hits
	}

	tokens := tokenizer.WordTokens(text, phoneticMinToken, phoneticMaxToken)
	tokenCodes := make([]map[string]struct{}, len(tokens))
	for i, tok := range tokens {
		set := make(map[string]struct{}, 2)
		for _, c := range phonetic.EncodeWindow(text, tok.Start, tok.End) {
			set[c] = struct{}{}
		}
		tokenCodes[i] = set
	}

	for _, code := range m.codes {
		for i, tok := range tokens {
			if _, ok := tokenCodes[i][code]; !ok {
				continue
			}
			hits = append(hits, Hit{
				Canonical: m.canonical,
				Variant:   code,
				Score:     PhoneticScore,
				Start:     tok.Start,
				End:       tok.End,
				Method:    MethodPhonetic,
			})
		}
	}
	return hits
}

// findAll returns the [start, end) rune offsets of the successive
// non-overlapping matches of re in text. The patterns are built from escaped
// terms and carry no match timeout, so matching cannot fail.
func findAll(re *regexp2.Regexp, text []rune) [][2]int {
	var locs [][2]int
	m, _ := re.FindRunesMatch(text)
	for m != nil {
		locs = append(locs, [2]int{m.Index, m.Index + m.Length})
		m, _ = re.FindNextMatch(m)
	}
	return locs
}

// usableTerms trims terms and drops blank ones.
func usableTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
