// Package csvimport groups flat spreadsheet rows into nested parent/child documents.
package csvimport

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoHeader is returned when a CSV document has no header row.
var ErrNoHeader = errors.New("the CSV file must start with a header row")

// Row is one spreadsheet record keyed by lower-cased, trimmed header names.
type Row map[string]string

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// FromMap builds a Row from a client-parsed record. Keys are matched case-insensitively.
func FromMap(m map[string]string) Row {
	row := make(Row, len(m))
	for k, v := range m {
		row[normalizeHeader(k)] = v
	}
	return row
}

func FromMaps(ms []map[string]string) []Row {
	rows := make([]Row, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, FromMap(m))
	}
	return rows
}

// ParseCSV reads a CSV document whose first record is the header row.
// Short records leave the missing columns empty.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading CSV header")
	}
	for i, h := range header {
		header[i] = normalizeHeader(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]Row, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading CSV record")
		}
		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Get returns the trimmed value of the first header alias holding a non-blank value.
func (row Row) Get(headers ...string) string {
	for _, h := range headers {
		if v := strings.TrimSpace(row[normalizeHeader(h)]); v != "" {
			return v
		}
	}
	return ""
}

// Float parses the value like JavaScript's parseFloat: the longest numeric prefix, 0 when there is none.
func (row Row) Float(headers ...string) float64 {
	return ParseFloat(row.Get(headers...))
}

// Int parses the value like JavaScript's parseInt: leading digits only, 0 when there are none.
func (row Row) Int(headers ...string) int {
	return ParseInt(row.Get(headers...))
}

func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			if seenDigit {
				end = i + 1
			}
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return 0
	}
	// trailing exponent markers without digits are not part of the number
	num := strings.TrimRight(s[:end], "eE+-")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return f
}

func ParseInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			end = i + 1
			continue
		}
		if i == 0 && (c == '+' || c == '-') {
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Key builds the grouping key of a row: the normalized values joined with "|".
// ok is false when one of the fields is blank.
func Key(row Row, fields ...[]string) (key string, ok bool) {
	parts := make([]string, 0, len(fields))
	for _, aliases := range fields {
		v := strings.ToLower(row.Get(aliases...))
		if v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "|"), true
}

// Grouping describes how rows fold into parents of type P.
type Grouping[P any] struct {
	// KeyFields lists, per key part, the header aliases to read it from.
	KeyFields [][]string
	// ChildField lists the header aliases of the field a row needs to contribute a child.
	ChildField []string
	// NewParent builds the parent from the first row of its group.
	NewParent func(row Row) P
	// MergeParent fills parent fields still empty from a later row of the group. Optional.
	MergeParent func(parent *P, row Row)
	// AddChild appends the child described by row to parent.
	AddChild func(parent *P, row Row)
}

// Group folds rows into parents, in order of first appearance.
// Rows with a blank key field are skipped silently.
func Group[P any](rows []Row, g Grouping[P]) []P {
	index := make(map[string]int)
	parents := make([]P, 0)
	for _, row := range rows {
		key, ok := Key(row, g.KeyFields...)
		if !ok {
			continue
		}
		i, found := index[key]
		if !found {
			parents = append(parents, g.NewParent(row))
			i = len(parents) - 1
			index[key] = i
		} else if g.MergeParent != nil {
			g.MergeParent(&parents[i], row)
		}
		if len(g.ChildField) == 0 || row.Get(g.ChildField...) != "" {
			g.AddChild(&parents[i], row)
		}
	}
	return parents
}

// FirstNonEmpty keeps current unless it is empty.
func FirstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
