package mapper

import (
	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

const (
	genderMale   = "male"
	genderFemale = "female"
)

// cell returns the raw value of a resolved column; "" for unresolved ones
func cell(row model.Row, column string) string {
	if column == "" {
		return ""
	}
	return row[column]
}

func (m *Mapper) text(row model.Row, column string) *string {
	return m.conv.Text(cell(row, column))
}

func (m *Mapper) integer(row model.Row, column string) *int64 {
	return m.conv.Int(cell(row, column))
}

// sum adds the integer cells of columns; nil when none of them has a value
func (m *Mapper) sum(row model.Row, columns []string) *int64 {
	var total *int64
	for _, col := range columns {
		v := m.integer(row, col)
		if v == nil {
			continue
		}
		if total == nil {
			total = new(int64)
		}
		*total += *v
	}
	return total
}

func (m *Mapper) location(p *plan, row model.Row) model.Location {
	return model.Location{
		City:   m.text(row, p.city),
		State:  m.text(row, p.state),
		Zip:    m.text(row, p.zip),
		Locale: m.integer(row, p.locale),
	}
}

func (m *Mapper) admissions(p *plan, row model.Row) model.Admissions {
	return model.Admissions{
		AcceptanceRate: m.conv.SafeDivide(cell(row, p.admitted), cell(row, p.applied)),
		SATRange: model.ScoreRange{
			Min: converter.SumInts(m.integer(row, p.satVerb25), m.integer(row, p.satMath25)),
			Max: converter.SumInts(m.integer(row, p.satVerb75), m.integer(row, p.satMath75)),
		},
		ACTRange: model.ScoreRange{
			Min: m.integer(row, p.act25),
			Max: m.integer(row, p.act75),
		},
	}
}

// diversity computes fractions of undergraduate enrollment. Without a
// positive undergraduate count every percentage is absent.
func (m *Mapper) diversity(p *plan, row model.Row, undergrad *int64) model.Diversity {
	d := model.Diversity{
		RaceEthnicityPct: map[string]float64{},
		GenderPct:        map[string]float64{},
	}
	if undergrad == nil || *undergrad <= 0 {
		return d
	}

	for _, rc := range p.race {
		if pct := m.conv.DivideInt(m.integer(row, rc.column), undergrad); pct != nil {
			d.RaceEthnicityPct[rc.key] = *pct
		}
	}

	for gender, columns := range map[string][]string{genderMale: p.male, genderFemale: p.female} {
		total := m.sum(row, columns)
		if total == nil || *total <= 0 {
			continue
		}
		if pct := m.conv.DivideInt(total, undergrad); pct != nil {
			d.GenderPct[gender] = *pct
		}
	}

	for _, col := range p.pell {
		if recipients := m.integer(row, col); recipients != nil {
			d.PellPct = m.conv.DivideInt(recipients, undergrad)
			break
		}
	}

	return d
}

func (m *Mapper) financials(p *plan, row model.Row) model.Financials {
	return model.Financials{
		TuitionInState:    m.integer(row, p.tuitionIn),
		TuitionOutOfState: m.integer(row, p.tuitionOut),
		FeesInState:       m.integer(row, p.feesIn),
		FeesOutOfState:    m.integer(row, p.feesOut),
		AvgCostAttendance: m.integer(row, p.avgCost),
	}
}

// gradRate divides completers by the first cohort-size column holding a
// positive count
func (m *Mapper) gradRate(row model.Row, gp gradPlan) *float64 {
	completers := m.integer(row, gp.completers)
	if completers == nil {
		return nil
	}
	for _, col := range gp.cohortSize {
		size := m.integer(row, col)
		if size != nil && *size > 0 {
			return m.conv.DivideInt(completers, size)
		}
	}
	return nil
}
