// Package phonetic derives Double Metaphone codes for vocabulary terms and
// for token windows of note text.
//
// Codes are lowercased and carry the "ph_" prefix so they can never collide
// with a literal surface term when both are reported as a hit variant.
package phonetic

import (
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/gcbaptista/medlex-spotter/internal/tokenizer"
)

const (
	// CodePrefix marks a variant as a phonetic code.
	CodePrefix = "ph_"

	// WindowMargin is how many runes EncodeWindow widens a span on each side.
	WindowMargin = 3
)

// Encode returns the primary and alternate Double Metaphone codes for term,
// deduplicated and sorted. Non-letters are removed before encoding, so
// "co-amoxiclav" and "coamoxiclav" share codes. Terms without letters, or
// without anything Double Metaphone can encode, yield an empty slice.
func Encode(term string) []string {
	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, term)
	if letters == "" {
		return []string{}
	}

	primary, alternate := matchr.DoubleMetaphone(letters)
	codes := make(map[string]struct{}, 2)
	if primary != "" {
		codes[CodePrefix+strings.ToLower(primary)] = struct{}{}
	}
	if alternate != "" {
		codes[CodePrefix+strings.ToLower(alternate)] = struct{}{}
	}
	return sortedKeys(codes)
}

// EncodeAll returns the union of Encode over terms.
func EncodeAll(terms []string) []string {
	codes := make(map[string]struct{}, len(terms)*2)
	for _, t := range terms {
		for _, c := range Encode(t) {
			codes[c] = struct{}{}
		}
	}
	return sortedKeys(codes)
}

// EncodeWindow encodes the word found at text[start:end]. The span is first
// widened by WindowMargin runes on each side (clamped to the text), and every
// word of the widened window that overlaps the original span is encoded in
// full. A token whose boundary was cut mid-word is thereby encoded as the
// word it belongs to, as far as the margin reaches.
func EncodeWindow(text []rune, start, end int) []string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return []string{}
	}

	lo := start - WindowMargin
	if lo < 0 {
		lo = 0
	}
	hi := end + WindowMargin
	if hi > len(text) {
		hi = len(text)
	}

	codes := make(map[string]struct{}, 2)
	for _, tok := range tokenizer.WordTokens(text[lo:hi], 1, hi-lo) {
		tokStart := lo + tok.Start
		tokEnd := lo + tok.End
		if tokEnd <= start || tokStart >= end {
			continue
		}
		for _, c := range Encode(tok.Text) {
			codes[c] = struct{}{}
		}
	}
	return sortedKeys(codes)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
