package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

func f64(v float64) *float64 { return &v }

func validCollege(id string) model.College {
	name := "Test College " + id
	return model.College{
		IPEDSID: id,
		Name:    &name,
		Admissions: model.Admissions{
			AcceptanceRate: f64(0.0451),
		},
		Diversity: model.Diversity{
			RaceEthnicityPct: map[string]float64{"black": 0.25},
			GenderPct:        map[string]float64{"male": 0.45, "female": 0.55},
			PellPct:          f64(0.15),
		},
		Outcomes:         model.Outcomes{GradRate6yr: f64(0.9697)},
		Override:         map[string]interface{}{},
		StaticSource:     "IPEDS_2022_revised",
		LastStaticUpdate: "2024-03-01T20:30:00Z",
	}
}

func TestVerifyPasses(t *testing.T) {
	v := NewVerifier(4, nil)
	records := []model.College{validCollege("1"), validCollege("2")}

	report := v.Verify(3, records, 1)
	assert.True(t, report.Passed())
	assert.True(t, report.CardinalityMatches)
	assert.Empty(t, report.IntegrityIssues)
	assert.Empty(t, report.Diagnostics())
}

func TestVerifyCardinality(t *testing.T) {
	v := NewVerifier(4, nil)
	assert.True(t, v.VerifyCardinality(10, 8, 2))
	assert.False(t, v.VerifyCardinality(10, 9, 2))

	report := v.Verify(5, []model.College{validCollege("1")}, 0)
	assert.False(t, report.Passed())
	require.Len(t, report.IntegrityIssues, 1)
	assert.Equal(t, IssueCardinality, report.IntegrityIssues[0].IssueType)

	diags := report.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, model.StageVerify, diags[0].Stage)
	assert.Equal(t, model.CategoryVerification, diags[0].Category)
	assert.Empty(t, diags[0].InstitutionID)
}

func TestVerifyRecord(t *testing.T) {
	v := NewVerifier(4, nil)

	tests := []struct {
		name   string
		mutate func(c *model.College)
		issue  string
		field  string
	}{
		{"missing id", func(c *model.College) { c.IPEDSID = "" }, IssueMissingID, "ipedsId"},
		{"NaN rate", func(c *model.College) { c.Admissions.AcceptanceRate = f64(math.NaN()) }, IssueNotFinite, "admissions.acceptanceRate"},
		{"infinite share", func(c *model.College) { c.Diversity.RaceEthnicityPct["black"] = math.Inf(1) }, IssueNotFinite, "diversity.raceEthnicityPct.black"},
		{"percent scale", func(c *model.College) { c.Outcomes.GradRate6yr = f64(96.97) }, IssueOutOfRange, "outcomes.gradRate6yr"},
		{"negative", func(c *model.College) { c.Diversity.GenderPct["male"] = -0.1 }, IssueOutOfRange, "diversity.genderPct.male"},
		{"unrounded", func(c *model.College) { c.Diversity.PellPct = f64(1.0 / 3.0) }, IssueNotRounded, "diversity.pellPct"},
		{"nil override", func(c *model.College) { c.Override = nil }, IssueNullMap, "override"},
		{"nil gender map", func(c *model.College) { c.Diversity.GenderPct = nil }, IssueNullMap, "diversity.genderPct"},
		{"bad timestamp", func(c *model.College) { c.LastStaticUpdate = "yesterday" }, IssueBadTimestamp, "lastStaticUpdate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCollege("100654")
			tt.mutate(&c)

			issues := v.VerifyRecord(&c)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.issue, issues[0].IssueType)
			assert.Equal(t, tt.field, issues[0].Field)
			assert.Equal(t, c.IPEDSID, issues[0].InstitutionID)
		})
	}
}

func TestVerifyReportDiagnostics(t *testing.T) {
	c := validCollege("100654")
	c.Admissions.AcceptanceRate = f64(1.5)

	report := NewVerifier(0, nil).Verify(1, []model.College{c}, 0)
	assert.True(t, report.CardinalityMatches)
	assert.False(t, report.SchemaVerified)

	diags := report.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "100654", diags[0].InstitutionID)
	assert.Equal(t, "Test College 100654", diags[0].Name)
	assert.Equal(t, "admissions.acceptanceRate", diags[0].Column)
	assert.Contains(t, diags[0].Message, "outside 0..1")
}
