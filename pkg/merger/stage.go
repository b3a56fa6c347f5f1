package merger

import (
	"fmt"
	"strings"

	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/schema"
)

// Filter scopes a secondary table before it is joined. It applies only when
// every column in Columns exists.
type Filter struct {
	Columns     []string
	Match       func(row model.Row) bool
	Description string
}

// Aggregation collapses rows sharing a key by summing numeric columns.
// A column takes part when it is listed in Columns or accepted by Match.
type Aggregation struct {
	Columns []string
	Match   func(column string) bool
}

// includes reports whether a column takes part in the aggregation
func (a *Aggregation) includes(column string) bool {
	for _, col := range a.Columns {
		if col == column {
			return true
		}
	}
	return a.Match != nil && a.Match(column)
}

// JoinStage describes how one secondary table is left-joined onto the
// accumulated result
type JoinStage struct {
	Source    string
	Suffix    string
	Filter    *Filter
	Aggregate *Aggregation
}

func (s JoinStage) String() string {
	var parts []string
	parts = append(parts, s.Source)
	if s.Filter != nil {
		parts = append(parts, "filter="+s.Filter.Description)
	}
	if s.Aggregate != nil {
		parts = append(parts, "aggregate")
	}
	return strings.Join(parts, " ")
}

// EqualsFilter builds a filter keeping rows whose numeric cells equal the
// given values, e.g. {"GRTYPE": 3, "COHORT": 2}. Columns are checked in the
// order given.
func EqualsFilter(conv *converter.Converter, columns []string, values []float64) *Filter {
	desc := make([]string, len(columns))
	for i, col := range columns {
		desc[i] = fmt.Sprintf("%s==%s", col, converter.FormatNumber(values[i]))
	}

	return &Filter{
		Columns:     columns,
		Description: strings.Join(desc, " && "),
		Match: func(row model.Row) bool {
			for i, col := range columns {
				v := conv.Float(row[col])
				if v == nil || *v != values[i] {
					return false
				}
			}
			return true
		},
	}
}

// DefaultStages is the join plan for the IPEDS sources described by reg
func DefaultStages(reg schema.Registry, conv *converter.Converter) []JoinStage {
	enroll := reg.Enrollment
	enrollCols := append([]string{}, enroll.RaceColumns()...)
	enrollCols = append(enrollCols, enroll.Male...)
	enrollCols = append(enrollCols, enroll.Female...)

	gradFilter := func(g schema.GraduationFields) *Filter {
		if g.TypeColumn == "" && g.CohortColumn == "" {
			return nil
		}
		var cols []string
		var vals []float64
		if g.TypeColumn != "" {
			cols = append(cols, g.TypeColumn)
			vals = append(vals, g.TypeValue)
		}
		if g.CohortColumn != "" {
			cols = append(cols, g.CohortColumn)
			vals = append(vals, g.CohortValue)
		}
		return EqualsFilter(conv, cols, vals)
	}

	var enrollFilter *Filter
	if enroll.LevelColumn != "" {
		enrollFilter = EqualsFilter(conv, []string{enroll.LevelColumn}, []float64{enroll.UndergradLevel})
	}

	return []JoinStage{
		{Source: schema.SourceAdmissions, Suffix: "_adm"},
		{
			Source: schema.SourceEnrollment,
			Suffix: "_ef",
			Filter: enrollFilter,
			Aggregate: &Aggregation{
				Columns: enrollCols,
				Match: func(col string) bool {
					return enroll.IsMaleColumn(col) || enroll.IsFemaleColumn(col)
				},
			},
		},
		{Source: schema.SourceAid, Suffix: "_sfa"},
		{Source: schema.SourceCost, Suffix: "_ic"},
		{Source: schema.SourceGrad4, Suffix: "_gr", Filter: gradFilter(reg.Grad4)},
		{Source: schema.SourceGrad6, Suffix: "_gr200", Filter: gradFilter(reg.Grad6)},
		{Source: schema.SourceCharacter, Suffix: "_icrv"},
	}
}
