// Package tokenizer canonicalizes vocabulary terms and splits note text into
// word tokens with rune offsets.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents decomposes, drops nonspacing marks and recomposes ("é" -> "e").
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Token is a word located in a source text.
type Token struct {
	Text  string
	Start int // rune offset, inclusive
	End   int // rune offset, exclusive
}

// Normalize converts a term into the form used for fuzzy comparison.
// It lowercases, strips accents, replaces every rune that is not a letter or
// digit with a space, collapses runs of spaces and trims the result.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(term string) string {
	lower := strings.ToLower(term)
	folded, _, err := transform.String(foldAccents, lower)
	if err != nil {
		folded = lower
	}

	var out strings.Builder
	out.Grow(len(folded))

	lastWasSpace := true // Start true to trim leading spaces
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			out.WriteByte(' ')
			lastWasSpace = true
		}
	}

	return strings.TrimSuffix(out.String(), " ")
}

// IsWordRune reports whether r belongs to the word class used by the
// matchers: letters, nonspacing marks, decimal digits and connector
// punctuation such as '_'. It is the class regexp2 uses for \w and \b.
func IsWordRune(r rune) bool {
	return unicode.In(r, unicode.L, unicode.Mn, unicode.Nd, unicode.Pc)
}

// WordTokens returns the tokens the pattern \w{minLen,maxLen} would find in
// text, scanning left to right: runs longer than maxLen are cut into
// consecutive maxLen chunks and any trailing chunk shorter than minLen is
// dropped. Lengths and offsets count runes.
func WordTokens(text []rune, minLen, maxLen int) []Token {
	tokens := make([]Token, 0) // Initialize as empty slice, not nil
	if minLen < 1 {
		minLen = 1
	}
	if maxLen < minLen {
		return tokens
	}

	i := 0
	for i < len(text) {
		for i < len(text) && !IsWordRune(text[i]) {
			i++
		}
		runStart := i
		for i < len(text) && IsWordRune(text[i]) {
			i++
		}
		for start := runStart; start < i; start += maxLen {
			end := start + maxLen
			if end > i {
				end = i
			}
			if end-start < minLen {
				break
			}
			tokens = append(tokens, Token{Text: string(text[start:end]), Start: start, End: end})
		}
	}
	return tokens
}
