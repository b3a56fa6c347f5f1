package writer

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// Group is one completeness metric
type Group struct {
	Key   string
	Label string
	Count int
	Total int
}

// Percent returns the share of records covered by the group
func (g Group) Percent() float64 {
	if g.Total == 0 {
		return 0
	}
	return float64(g.Count) * 100 / float64(g.Total)
}

// Report summarizes field coverage across all records
type Report struct {
	Total  int
	Groups []Group
}

// Group returns the group with the given key
func (r Report) Group(key string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

type groupDef struct {
	key     string
	label   string
	present func(c *model.College) bool
}

var groupDefs = []groupDef{
	{"acceptanceRate", "Acceptance rate", func(c *model.College) bool { return c.Admissions.AcceptanceRate != nil }},
	{"satRange", "SAT range", func(c *model.College) bool {
		return c.Admissions.SATRange.Min != nil || c.Admissions.SATRange.Max != nil
	}},
	{"actRange", "ACT range", func(c *model.College) bool {
		return c.Admissions.ACTRange.Min != nil || c.Admissions.ACTRange.Max != nil
	}},
	{"enrollment", "Undergrad enrollment", func(c *model.College) bool { return c.Enrollment.Undergrad != nil }},
	{"tuition", "Tuition", func(c *model.College) bool {
		return c.Financials.TuitionInState != nil || c.Financials.TuitionOutOfState != nil
	}},
	{"diversity", "Race/ethnicity", func(c *model.College) bool { return len(c.Diversity.RaceEthnicityPct) > 0 }},
	{"pell", "Pell share", func(c *model.College) bool { return c.Diversity.PellPct != nil }},
	{"gradRate4yr", "4-year graduation", func(c *model.College) bool { return c.Outcomes.GradRate4yr != nil }},
	{"gradRate6yr", "6-year graduation", func(c *model.College) bool { return c.Outcomes.GradRate6yr != nil }},
}

// Completeness counts, per field group, how many records carry a value
func Completeness(records []model.College) Report {
	report := Report{Total: len(records), Groups: make([]Group, len(groupDefs))}
	for i, def := range groupDefs {
		report.Groups[i] = Group{Key: def.key, Label: def.label, Total: len(records)}
	}

	for i := range records {
		for j, def := range groupDefs {
			if def.present(&records[i]) {
				report.Groups[j].Count++
			}
		}
	}
	return report
}

// PrintReport renders the completeness report, one "key: n (pct%)" line
// per group
func PrintReport(w io.Writer, report Report) {
	header := color.New(color.Bold)
	header.Fprintf(w, "Data completeness (%d records)\n", report.Total)

	for _, g := range report.Groups {
		pct := g.Percent()
		paint := color.RedString
		switch {
		case pct >= 75:
			paint = color.GreenString
		case pct >= 40:
			paint = color.YellowString
		}
		fmt.Fprintf(w, "  %s: %d (%s)\n", g.Key, g.Count, paint("%.1f%%", pct))
	}
}
