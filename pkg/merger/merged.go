package merger

import (
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// Merged is the joined table plus the provenance of every column it holds
type Merged struct {
	Base      string
	KeyColumn string
	Table     *model.Table

	// source -> original column -> final column
	provenance map[string]map[string]string
	// original columns per source, in header order
	originals map[string][]string
	// sources joined, in stage order (base first)
	joined  []string
	matched map[string]int

	used map[string]bool
	keys []string
}

func newMerged(base, key string, table *model.Table) *Merged {
	m := &Merged{
		Base:       base,
		KeyColumn:  key,
		Table:      model.NewTable(table.Name, append([]string{}, table.Columns...)),
		provenance: make(map[string]map[string]string),
		originals:  make(map[string][]string),
		matched:    make(map[string]int),
		used:       make(map[string]bool),
	}

	cols := make(map[string]string, len(table.Columns))
	for _, col := range table.Columns {
		cols[col] = col
		m.used[col] = true
	}
	m.provenance[base] = cols
	m.originals[base] = append([]string{}, table.Columns...)
	m.joined = append(m.joined, base)

	m.Table.Rows = make([]model.Row, len(table.Rows))
	m.keys = make([]string, len(table.Rows))
	for i, row := range table.Rows {
		copied := make(model.Row, len(row))
		for col, v := range row {
			copied[col] = v
		}
		m.Table.Rows[i] = copied
		m.keys[i] = model.CanonicalKey(row[key])
	}
	m.matched[base] = len(table.Rows)
	return m
}

// join appends the incoming columns (renamed on collision) and fills them
// for every base row with a matching key
func (m *Merged) join(source, suffix string, incoming []string, index map[string]model.Row) {
	cols := make(map[string]string, len(incoming))
	var originals []string
	for _, col := range incoming {
		if col == m.KeyColumn {
			continue
		}
		if _, dup := cols[col]; dup {
			continue
		}
		final := uniqueName(col, suffix, m.used)
		m.used[final] = true
		cols[col] = final
		originals = append(originals, col)
		m.Table.Columns = append(m.Table.Columns, final)
	}
	m.provenance[source] = cols
	m.originals[source] = originals
	m.joined = append(m.joined, source)

	matched := 0
	for i, key := range m.keys {
		src, ok := index[key]
		if !ok || key == "" {
			continue
		}
		matched++
		row := m.Table.Rows[i]
		for orig, final := range cols {
			if v, present := src[orig]; present {
				row[final] = v
			}
		}
	}
	m.matched[source] = matched
}

func (m *Merged) duplicateBaseKeys() int {
	seen := make(map[string]bool, len(m.keys))
	dups := 0
	for _, key := range m.keys {
		if key == "" {
			continue
		}
		if seen[key] {
			dups++
		}
		seen[key] = true
	}
	return dups
}

// Resolve returns the final column name of a source's original column
func (m *Merged) Resolve(source, column string) (string, bool) {
	cols, ok := m.provenance[source]
	if !ok {
		return "", false
	}
	final, ok := cols[column]
	return final, ok
}

// SourceColumns returns the original columns a source contributed, in
// header order
func (m *Merged) SourceColumns(source string) []string {
	return m.originals[source]
}

// Joined reports whether a source took part in the merge
func (m *Merged) Joined(source string) bool {
	_, ok := m.provenance[source]
	return ok
}

// Sources returns the joined sources, base first
func (m *Merged) Sources() []string {
	return append([]string{}, m.joined...)
}

// Matched returns how many base rows found a match in the source
func (m *Merged) Matched(source string) int {
	return m.matched[source]
}

// Key returns the canonical key of row i
func (m *Merged) Key(i int) string {
	return m.keys[i]
}

// Len returns the number of merged rows
func (m *Merged) Len() int {
	return m.Table.Len()
}

// Provenance returns a copy of the source -> original -> final column map
func (m *Merged) Provenance() map[string]map[string]string {
	out := make(map[string]map[string]string, len(m.provenance))
	for src, cols := range m.provenance {
		copied := make(map[string]string, len(cols))
		for k, v := range cols {
			copied[k] = v
		}
		out[src] = copied
	}
	return out
}
