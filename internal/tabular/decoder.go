// Package tabular decodes uploaded delimited text files into rows with named
// fields. The delimiter is selected by filename extension (.tsv → tab,
// anything else → comma). Decoding is tolerant: unknown columns are ignored
// by callers, optional columns read as empty strings, and an empty file
// yields a table with zero rows.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Table is an ordered sequence of decoded rows with named columns.
type Table struct {
	columns map[string]int
	rows    [][]string
}

// Row is a view over one decoded record.
type Row struct {
	table  *Table
	values []string
}

// Decode reads the whole stream and parses it with the delimiter implied by
// filename. The input must be valid UTF-8; anything else is a decode error.
func Decode(r io.Reader, filename string) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("decode %s: not valid UTF-8", filename)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = delimiterFor(filename)
	reader.FieldsPerRecord = -1 // allow variable column count

	header, err := reader.Read()
	if err == io.EOF {
		// Empty file: zero data rows, not an error.
		return &Table{columns: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: read header: %w", filename, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: read row %d: %w", filename, len(rows)+2, err)
		}
		rows = append(rows, record)
	}

	return &Table{columns: columns, rows: rows}, nil
}

func delimiterFor(filename string) rune {
	if strings.HasSuffix(strings.ToLower(filename), ".tsv") {
		return '\t'
	}
	return ','
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// HasColumn reports whether the header named a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Row returns the i-th data row.
func (t *Table) Row(i int) Row {
	return Row{table: t, values: t.rows[i]}
}

// Field returns the value of the named column, or "" when the column is
// absent from the header or the record is short. Missing optional columns
// (such as "name") therefore read as empty strings for every row.
func (r Row) Field(name string) string {
	idx, ok := r.table.columns[name]
	if !ok || idx >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[idx])
}

// Int parses the named column as a base-10 integer.
func (r Row) Int(name string) (int64, error) {
	v := r.Field(name)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: parse %q: %w", name, v, err)
	}
	return n, nil
}

// Float parses the named column as a float.
func (r Row) Float(name string) (float64, error) {
	v := r.Field(name)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: parse %q: %w", name, v, err)
	}
	return f, nil
}
