// Package merger left-joins secondary IPEDS tables onto the directory table.
package merger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// ErrBaseTableMissing is returned when the base table is not loaded or has
// no key column; no output can be produced without it
var ErrBaseTableMissing = errors.New("base table unavailable")

// Merger joins tables on an institution key column
type Merger struct {
	key    string
	conv   *converter.Converter
	logger *zap.Logger
}

// New creates a merger joining on keyColumn
func New(keyColumn string, conv *converter.Converter, logger *zap.Logger) *Merger {
	if conv == nil {
		conv = converter.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		key:    keyColumn,
		conv:   conv,
		logger: logger.Named("merger"),
	}
}

// Merge starts from the base table and applies each stage in order. The
// result has exactly one row per base row. Degraded stages are reported as
// diagnostics; only an unusable base table is an error.
func (m *Merger) Merge(base string, tables map[string]*model.Table, stages []JoinStage) (*Merged, []model.Diagnostic, error) {
	baseTable, ok := tables[base]
	if !ok || baseTable == nil {
		return nil, nil, fmt.Errorf("%w: source %q was not loaded", ErrBaseTableMissing, base)
	}
	if !baseTable.HasColumn(m.key) {
		return nil, nil, fmt.Errorf("%w: source %q has no %s column", ErrBaseTableMissing, base, m.key)
	}

	merged := newMerged(base, m.key, baseTable)
	var diags []model.Diagnostic

	if dups := merged.duplicateBaseKeys(); dups > 0 {
		diags = append(diags, model.NewDiagnostic(model.StageMerge, model.CategoryDuplicateKey,
			fmt.Sprintf("%d base rows repeat an earlier %s; all are kept", dups, m.key)).
			WithSource(base).WithColumn(m.key))
	}

	for _, stage := range stages {
		start := time.Now()
		stageDiags, joined := m.apply(merged, tables[stage.Source], stage)
		diags = append(diags, stageDiags...)

		if joined {
			m.logger.Info("Joined source",
				zap.String("source", stage.Source),
				zap.Int("matched", merged.matched[stage.Source]),
				zap.Int("rows", merged.Table.Len()),
				zap.Duration("duration", time.Since(start)))
		}
	}

	return merged, diags, nil
}

// apply joins one stage and reports whether the source took part
func (m *Merger) apply(merged *Merged, table *model.Table, stage JoinStage) ([]model.Diagnostic, bool) {
	var diags []model.Diagnostic
	newDiag := func(category model.Category, msg string) model.Diagnostic {
		return model.NewDiagnostic(model.StageMerge, category, msg).WithSource(stage.Source)
	}

	if table == nil {
		m.logger.Warn("Skipping join, source unavailable", zap.String("source", stage.Source))
		return append(diags, newDiag(model.CategorySourceUnavailable, "source not loaded; join skipped")), false
	}

	if !table.HasColumn(m.key) {
		m.logger.Warn("Skipping join, key column missing",
			zap.String("source", stage.Source), zap.String("key", m.key))
		return append(diags, newDiag(model.CategoryMissingJoinKey,
			fmt.Sprintf("no %s column; join skipped", m.key)).WithColumn(m.key)), false
	}

	rows := table.Rows
	if stage.Filter != nil {
		if missing := missingColumns(table, stage.Filter.Columns); len(missing) > 0 {
			m.logger.Warn("Filter columns missing, joining unfiltered",
				zap.String("source", stage.Source), zap.Strings("missing", missing))
			diags = append(diags, newDiag(model.CategoryMissingFilterColumn,
				fmt.Sprintf("filter %s not applied: missing %s; joined unfiltered",
					stage.Filter.Description, strings.Join(missing, ", "))).
				WithColumn(strings.Join(missing, ",")))
		} else {
			rows = filterRows(rows, stage.Filter.Match)
			m.logger.Debug("Filtered source",
				zap.String("source", stage.Source),
				zap.String("filter", stage.Filter.Description),
				zap.Int("kept", len(rows)),
				zap.Int("total", table.Len()))
		}
	}

	var incoming []string
	var index map[string]model.Row
	if stage.Aggregate != nil {
		incoming, index = m.aggregate(table, rows, stage.Aggregate)
	} else {
		var dups int
		incoming = table.Columns
		index, dups = m.firstByKey(rows)
		if dups > 0 {
			diags = append(diags, newDiag(model.CategoryDuplicateKey,
				fmt.Sprintf("%d rows repeat an earlier %s; first row kept", dups, m.key)).WithColumn(m.key))
		}
	}

	merged.join(stage.Source, stage.Suffix, incoming, index)
	return diags, true
}

// firstByKey indexes rows by canonical key, keeping the first row per key
func (m *Merger) firstByKey(rows []model.Row) (map[string]model.Row, int) {
	index := make(map[string]model.Row, len(rows))
	dups := 0
	for _, row := range rows {
		key := model.CanonicalKey(row[m.key])
		if key == "" {
			continue
		}
		if _, seen := index[key]; seen {
			dups++
			continue
		}
		index[key] = row
	}
	return index, dups
}

// aggregate groups rows by key and sums the aggregated columns. A group
// with no numeric contribution to a column leaves that cell absent.
func (m *Merger) aggregate(table *model.Table, rows []model.Row, agg *Aggregation) ([]string, map[string]model.Row) {
	columns := []string{m.key}
	for _, col := range table.Columns {
		if col != m.key && agg.includes(col) {
			columns = append(columns, col)
		}
	}

	sums := make(map[string]map[string]float64)
	for _, row := range rows {
		key := model.CanonicalKey(row[m.key])
		if key == "" {
			continue
		}
		group, ok := sums[key]
		if !ok {
			group = make(map[string]float64)
			sums[key] = group
		}
		for _, col := range columns[1:] {
			if v := m.conv.Float(row[col]); v != nil {
				group[col] += *v
			}
		}
	}

	index := make(map[string]model.Row, len(sums))
	for key, group := range sums {
		row := model.Row{m.key: key}
		for col, total := range group {
			row[col] = converter.FormatNumber(total)
		}
		index[key] = row
	}
	return columns, index
}

func filterRows(rows []model.Row, match func(model.Row) bool) []model.Row {
	kept := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if match(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func missingColumns(table *model.Table, columns []string) []string {
	var missing []string
	for _, col := range columns {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// uniqueName returns name, or name+suffix, name+suffix+"2", ... whichever is
// first not in used
func uniqueName(name, suffix string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	candidate := name + suffix
	for n := 2; used[candidate]; n++ {
		candidate = name + suffix + strconv.Itoa(n)
	}
	return candidate
}
