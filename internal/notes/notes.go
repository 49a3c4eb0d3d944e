// Package notes reads note tables and writes scan result tables.
//
// Input tables are CSV or TSV with at least a note_id and a text column. The
// result table has a note_id column, one has_<canonical> column per flag
// key, and a spans column holding the span list as JSON.
package notes

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/model"
)

// Separator selects the input delimiter.
type Separator string

const (
	SeparatorAuto Separator = "auto"
	SeparatorCSV  Separator = "csv"
	SeparatorTSV  Separator = "tsv"
)

const (
	ColumnNoteID = "note_id"
	ColumnText   = "text"
	ColumnSpans  = "spans"
)

// ParseSeparator validates a --sep value.
func ParseSeparator(s string) (Separator, error) {
	switch sep := Separator(strings.ToLower(strings.TrimSpace(s))); sep {
	case "", SeparatorAuto:
		return SeparatorAuto, nil
	case SeparatorCSV, SeparatorTSV:
		return sep, nil
	default:
		return "", errors.NewInputError("--sep", fmt.Sprintf("unknown separator %q (want auto, csv or tsv)", s))
	}
}

// DetectDelimiter returns a tab when the header line contains one, otherwise
// a comma.
func DetectDelimiter(header string) rune {
	if strings.ContainsRune(header, '\t') {
		return '\t'
	}
	return ','
}

// ReadFile reads a note table from path.
func ReadFile(path string, sep Separator) ([]model.Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInputError(path, fmt.Sprintf("cannot open input table: %v", err))
	}
	defer f.Close()
	return Read(f, sep, path)
}

// Read parses a note table. source names the table in errors. Required
// columns are checked before any row is parsed; a missing text cell reads as
// the empty string; a note_id that is not an integer fails the whole table.
func Read(r io.Reader, sep Separator, source string) ([]model.Note, error) {
	br := bufio.NewReader(r)

	delim := ','
	switch sep {
	case SeparatorTSV:
		delim = '\t'
	case SeparatorCSV:
	default:
		peek, _ := br.Peek(2048)
		header, _, _ := strings.Cut(string(peek), "\n")
		delim = DetectDelimiter(header)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewInputError(source, "input table is empty")
	}
	if err != nil {
		return nil, errors.NewInputError(source, fmt.Sprintf("cannot read header: %v", err))
	}

	idCol, textCol := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case ColumnNoteID:
			if idCol < 0 {
				idCol = i
			}
		case ColumnText:
			if textCol < 0 {
				textCol = i
			}
		}
	}
	var missing []string
	if idCol < 0 {
		missing = append(missing, ColumnNoteID)
	}
	if textCol < 0 {
		missing = append(missing, ColumnText)
	}
	if len(missing) > 0 {
		return nil, errors.NewInputError(source, fmt.Sprintf(
			"input must contain columns: %s, %s (missing: %s)", ColumnNoteID, ColumnText, strings.Join(missing, ", ")))
	}

	var notes []model.Note
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInputError(source, fmt.Sprintf("cannot read row: %v", err))
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		line, _ := cr.FieldPos(0)
		if idCol >= len(record) {
			return nil, errors.NewInputError(source, fmt.Sprintf("line %d: missing note_id", line))
		}
		id, err := parseNoteID(record[idCol])
		if err != nil {
			return nil, errors.NewInputError(source, fmt.Sprintf("line %d: %v", line, err))
		}

		var text string
		if textCol < len(record) {
			text = record[textCol]
		}
		notes = append(notes, model.Note{NoteID: id, Text: text})
	}
	return notes, nil
}

// parseNoteID accepts integers, and floats with no fractional part ("12.0").
func parseNoteID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f), nil
	}
	return 0, fmt.Errorf("note_id %q is not an integer", raw)
}

// Write writes the result table. flagKeys lists the has_<canonical> columns
// expected from the configuration; keys found only in rows are added, and
// the union is sorted. Rows are written in ascending note_id order and a
// flag missing from a row is written as 0.
func Write(w io.Writer, rows []model.Row, flagKeys []string) error {
	columns := flagColumns(rows, flagKeys)

	sorted := append([]model.Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NoteID < sorted[j].NoteID })

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(columns)+2)
	header = append(header, ColumnNoteID)
	header = append(header, columns...)
	header = append(header, ColumnSpans)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range sorted {
		spans, err := EncodeSpans(row.Spans)
		if err != nil {
			return fmt.Errorf("note %d: %w", row.NoteID, err)
		}
		record[0] = strconv.FormatInt(row.NoteID, 10)
		for i, key := range columns {
			record[i+1] = strconv.Itoa(row.Flags[key])
		}
		record[len(record)-1] = spans
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write note %d: %w", row.NoteID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes the result table to path, or to stdout when path is "-"
// or empty.
func WriteFile(path string, rows []model.Row, flagKeys []string) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, rows, flagKeys)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	if err := Write(f, rows, flagKeys); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeSpans renders spans as a compact JSON array, keeping non-ASCII text
// and HTML characters unescaped. A nil list encodes as [].
func EncodeSpans(spans []model.Span) (string, error) {
	if spans == nil {
		spans = []model.Span{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(spans); err != nil {
		return "", fmt.Errorf("failed to encode spans: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func flagColumns(rows []model.Row, flagKeys []string) []string {
	seen := make(map[string]struct{}, len(flagKeys))
	columns := make([]string, 0, len(flagKeys))
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			columns = append(columns, k)
		}
	}
	for _, k := range flagKeys {
		add(k)
	}
	for _, row := range rows {
		for k := range row.Flags {
			add(k)
		}
	}
	sort.Strings(columns)
	return columns
}
