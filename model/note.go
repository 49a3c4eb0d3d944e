package model

import "sort"

// Note is one row of the input table.
type Note struct {
	NoteID int64  `json:"note_id"`
	Text   string `json:"text"`
}

// Span describes one hit found in a note. Every hit produces a span, negated
// or not.
type Span struct {
	Matched      string `json:"matched"` // text as it appears in the note
	Span         [2]int `json:"span"`    // rune offsets [start, end)
	Context      string `json:"context"` // text around the hit
	Source       string `json:"source"`  // canonical
	IsNegated    bool   `json:"is_negated"`
	Variant      string `json:"variant"` // configured term or ph_ code
	Score        int    `json:"score"`
	Method       string `json:"method"`
	ContextScore int    `json:"context_score"`
}

// NoteResult is the outcome of scanning one note.
type NoteResult struct {
	Flags map[string]int `json:"flags"` // has_<canonical> -> 0 or 1
	Spans []Span         `json:"spans"`
}

// Flagged returns the flag keys set to 1, sorted.
func (r NoteResult) Flagged() []string {
	var out []string
	for k, v := range r.Flags {
		if v == 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Row is a scanned note ready to be written to the result table.
type Row struct {
	NoteID int64 `json:"note_id"`
	NoteResult
}
