// pkg/model/table.go
package model

import (
	"math"
	"strconv"
	"strings"
)

// Row holds the raw cells of one source row keyed by column name.
// A column missing from the map is absent for that row.
type Row map[string]string

// Table is a rectangular, loosely typed source table
type Table struct {
	Name    string   // Source name (e.g. "hd", "adm")
	Columns []string // Column names in header order
	Rows    []Row    // Data rows
}

// NewTable creates an empty table with the given header
func NewTable(name string, columns []string) *Table {
	return &Table{
		Name:    name,
		Columns: columns,
		Rows:    make([]Row, 0),
	}
}

// HasColumn reports whether the table exposes a column (exact, case-sensitive)
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// HasColumns reports whether every named column exists
func (t *Table) HasColumns(names ...string) bool {
	for _, name := range names {
		if !t.HasColumn(name) {
			return false
		}
	}
	return true
}

// ColumnIndex returns the header position of a column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// MatchColumns returns the columns accepted by match, in header order
func (t *Table) MatchColumns(match func(string) bool) []string {
	var matched []string
	for _, col := range t.Columns {
		if match(col) {
			matched = append(matched, col)
		}
	}
	return matched
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Get returns a cell and whether it is present
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// CanonicalKey normalizes an institution identifier so that "100654",
// " 100654 " and "100654.0" join to the same row.
func CanonicalKey(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	if _, err := strconv.ParseInt(key, 10, 64); err == nil {
		return key
	}
	f, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return key
	}
	// int64 conversion is undefined outside its range
	if math.Abs(f) >= 1<<63 {
		return key
	}
	return strconv.FormatInt(int64(f), 10)
}
