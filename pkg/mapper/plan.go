package mapper

import (
	"fmt"
	"strings"

	"github.com/David-Botos/ipeds-ingress/pkg/merger"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/schema"
)

// raceColumn pairs an output key with its merged column
type raceColumn struct {
	key    string
	column string
}

// gradPlan holds the merged columns feeding one graduation rate
type gradPlan struct {
	completers string
	cohortSize []string
}

// plan is the registry resolved against one merged table: every field
// names the final merged column it reads, or "" when the column is absent
type plan struct {
	key string

	name, alias, website     string
	city, state, zip, locale string
	control, sector          string
	admitted, applied        string
	satVerb25, satMath25     string
	satVerb75, satMath75     string
	act25, act75             string
	undergrad                string
	race                     []raceColumn
	male, female             []string
	pell                     []string
	tuitionIn, tuitionOut    string
	feesIn, feesOut, avgCost string
	grad4, grad6             gradPlan
}

// resolver looks up final column names through the merge provenance
type resolver struct {
	merged *merger.Merged
}

func (r resolver) col(source, column string) string {
	if column == "" {
		return ""
	}
	final, ok := r.merged.Resolve(source, column)
	if !ok {
		return ""
	}
	return final
}

func (r resolver) cols(source string, columns []string) []string {
	var out []string
	for _, c := range columns {
		if final := r.col(source, c); final != "" {
			out = append(out, final)
		}
	}
	return out
}

// matching resolves the source's own columns accepted by match, in header order
func (r resolver) matching(source string, match func(string) bool) []string {
	var out []string
	for _, c := range r.merged.SourceColumns(source) {
		if match(c) {
			out = append(out, r.col(source, c))
		}
	}
	return out
}

// buildPlan resolves the registry against the merged table. Naming
// convention fallbacks are reported as SchemaFallback diagnostics.
func buildPlan(reg schema.Registry, pellColumn string, merged *merger.Merged) (*plan, []model.Diagnostic) {
	r := resolver{merged: merged}
	base := merged.Base
	var diags []model.Diagnostic
	fallback := func(source, column, msg string) {
		diags = append(diags, model.NewDiagnostic(model.StageMap, model.CategorySchemaFallback, msg).
			WithSource(source).WithColumn(column))
	}

	dir := reg.Directory
	adm := reg.Admissions
	cost := reg.Cost
	p := &plan{
		key:        merged.KeyColumn,
		name:       r.col(base, dir.Name),
		alias:      r.col(base, dir.Alias),
		website:    r.col(base, dir.Website),
		city:       r.col(base, dir.City),
		state:      r.col(base, dir.State),
		zip:        r.col(base, dir.Zip),
		locale:     r.col(base, dir.Locale),
		control:    r.col(base, dir.Control),
		sector:     r.col(base, dir.Sector),
		admitted:   r.col(schema.SourceAdmissions, adm.Admitted),
		applied:    r.col(schema.SourceAdmissions, adm.Applied),
		satVerb25:  r.col(schema.SourceAdmissions, adm.SATVerb25),
		satMath25:  r.col(schema.SourceAdmissions, adm.SATMath25),
		satVerb75:  r.col(schema.SourceAdmissions, adm.SATVerb75),
		satMath75:  r.col(schema.SourceAdmissions, adm.SATMath75),
		act25:      r.col(schema.SourceAdmissions, adm.ACT25),
		act75:      r.col(schema.SourceAdmissions, adm.ACT75),
		tuitionIn:  r.col(schema.SourceCost, cost.TuitionInState),
		tuitionOut: r.col(schema.SourceCost, cost.TuitionOutOfState),
		feesIn:     r.col(schema.SourceCost, cost.FeesInState),
		feesOut:    r.col(schema.SourceCost, cost.FeesOutOfState),
		avgCost:    r.col(schema.SourceCost, cost.AvgCost),
	}

	// Enrollment
	enroll := reg.Enrollment
	ef := schema.SourceEnrollment
	p.undergrad = r.col(ef, enroll.Total)
	for _, key := range enroll.RaceKeys() {
		if col := r.col(ef, enroll.Race[key]); col != "" {
			p.race = append(p.race, raceColumn{key: key, column: col})
		}
	}

	p.male = r.cols(ef, enroll.Male)
	p.female = r.cols(ef, enroll.Female)
	if merged.Joined(ef) && len(p.male) == 0 && len(p.female) == 0 {
		p.male = r.matching(ef, enroll.IsMaleColumn)
		p.female = r.matching(ef, enroll.IsFemaleColumn)
		if len(p.male) > 0 || len(p.female) > 0 {
			fallback(ef, strings.Join(append(append([]string{}, enroll.Male...), enroll.Female...), ","),
				fmt.Sprintf("gender columns %v/%v not found; summing %d male and %d female breakdown columns",
					enroll.Male, enroll.Female, len(p.male), len(p.female)))
		}
	}

	// Pell
	aid := reg.Aid
	sfa := schema.SourceAid
	preferred := aid.PellColumn
	if pellColumn != "" {
		preferred = pellColumn
	}
	if col := r.col(sfa, preferred); col != "" {
		p.pell = []string{col}
	} else if merged.Joined(sfa) {
		p.pell = r.matching(sfa, aid.IsPellCandidate)
		if len(p.pell) > 0 {
			fallback(sfa, preferred,
				fmt.Sprintf("Pell column %q not found; using first of %d %s columns with a value",
					preferred, len(p.pell), aid.PellPattern))
		}
	}

	// Graduation
	p.grad4 = planGraduation(r, schema.SourceGrad4, reg.Grad4, fallback)
	p.grad6 = planGraduation(r, schema.SourceGrad6, reg.Grad6, fallback)

	return p, diags
}

// planGraduation resolves completers and cohort-size columns strictly
// within one graduation source so the 4- and 6-year rates never cross
func planGraduation(r resolver, source string, g schema.GraduationFields, fallback func(source, column, msg string)) gradPlan {
	gp := gradPlan{completers: r.col(source, g.Completers)}
	if !r.merged.Joined(source) {
		return gp
	}

	gp.cohortSize = r.cols(source, g.CohortSize)
	if len(gp.cohortSize) > 0 {
		return gp
	}

	gp.cohortSize = r.matching(source, g.IsCohortSizeCandidate)
	if len(gp.cohortSize) > 0 {
		msg := fmt.Sprintf("no cohort size column configured; using %v by name pattern", gp.cohortSize)
		if len(g.CohortSize) > 0 {
			msg = fmt.Sprintf("cohort size columns %v not found; using %v by name pattern", g.CohortSize, gp.cohortSize)
		}
		fallback(source, strings.Join(g.CohortSize, ","), msg)
	}
	return gp
}
