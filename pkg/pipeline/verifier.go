package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// Issue types reported by the verifier
const (
	IssueCardinality  = "cardinality"
	IssueMissingID    = "missing_id"
	IssueNotFinite    = "not_finite"
	IssueOutOfRange   = "out_of_range"
	IssueNotRounded   = "not_rounded"
	IssueNullMap      = "null_map"
	IssueBadTimestamp = "bad_timestamp"
)

// IntegrityIssue is one problem found in the output records
type IntegrityIssue struct {
	IssueType     string
	InstitutionID string
	Name          string
	Field         string
	Description   string
}

// VerificationReport contains the results of verifying a run's output
type VerificationReport struct {
	VerificationTime   time.Time
	MergedRows         int
	Records            int
	FailedRows         int
	CardinalityMatches bool
	SchemaVerified     bool
	IntegrityIssues    []IntegrityIssue
	Duration           time.Duration
}

// Passed reports whether no issue was found
func (r *VerificationReport) Passed() bool {
	return r.CardinalityMatches && r.SchemaVerified
}

// Diagnostics converts the issues into Verification diagnostics
func (r *VerificationReport) Diagnostics() []model.Diagnostic {
	diags := make([]model.Diagnostic, 0, len(r.IntegrityIssues))
	for _, issue := range r.IntegrityIssues {
		d := model.NewDiagnostic(model.StageVerify, model.CategoryVerification, issue.Description).
			WithColumn(issue.Field)
		if issue.InstitutionID != "" || issue.Name != "" {
			d = d.WithInstitution(issue.InstitutionID, issue.Name)
		}
		diags = append(diags, d)
	}
	return diags
}

// Verifier checks the records of a run against the output contract
type Verifier struct {
	places int
	logger *zap.Logger
}

// NewVerifier creates a verifier expecting fractions rounded to places
func NewVerifier(places int, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if places <= 0 {
		places = converter.DefaultConfig().RoundingPlaces
	}
	return &Verifier{
		places: places,
		logger: logger.Named("verifier"),
	}
}

// Verify checks that every merged row became a record or a row failure and
// that every record satisfies the output schema
func (v *Verifier) Verify(mergedRows int, records []model.College, failedRows int) *VerificationReport {
	start := time.Now()
	report := &VerificationReport{
		VerificationTime: start,
		MergedRows:       mergedRows,
		Records:          len(records),
		FailedRows:       failedRows,
	}

	report.CardinalityMatches = v.VerifyCardinality(mergedRows, len(records), failedRows)
	if !report.CardinalityMatches {
		report.IntegrityIssues = append(report.IntegrityIssues, IntegrityIssue{
			IssueType: IssueCardinality,
			Description: fmt.Sprintf("%d merged rows but %d records and %d row failures",
				mergedRows, len(records), failedRows),
		})
	}

	schemaIssues := 0
	for i := range records {
		issues := v.VerifyRecord(&records[i])
		schemaIssues += len(issues)
		report.IntegrityIssues = append(report.IntegrityIssues, issues...)
	}
	report.SchemaVerified = schemaIssues == 0
	report.Duration = time.Since(start)

	if report.Passed() {
		v.logger.Info("Verification successful",
			zap.Int("records", report.Records),
			zap.Int("failedRows", failedRows))
	} else {
		v.logger.Warn("Verification found issues",
			zap.Bool("cardinalityMatches", report.CardinalityMatches),
			zap.Int("issues", len(report.IntegrityIssues)))
	}
	return report
}

// VerifyCardinality checks that no merged row was lost or duplicated
func (v *Verifier) VerifyCardinality(mergedRows, records, failedRows int) bool {
	return records+failedRows == mergedRows
}

// VerifyRecord checks a single record
func (v *Verifier) VerifyRecord(c *model.College) []IntegrityIssue {
	var issues []IntegrityIssue
	add := func(issueType, field, format string, args ...interface{}) {
		issues = append(issues, IntegrityIssue{
			IssueType:     issueType,
			InstitutionID: c.IPEDSID,
			Name:          c.DisplayName(),
			Field:         field,
			Description:   fmt.Sprintf(format, args...),
		})
	}

	if c.IPEDSID == "" {
		add(IssueMissingID, "ipedsId", "record has no ipedsId")
	}

	fractions := map[string]*float64{
		"admissions.acceptanceRate": c.Admissions.AcceptanceRate,
		"diversity.pellPct":         c.Diversity.PellPct,
		"outcomes.gradRate4yr":      c.Outcomes.GradRate4yr,
		"outcomes.gradRate6yr":      c.Outcomes.GradRate6yr,
	}
	for field, value := range c.Diversity.RaceEthnicityPct {
		value := value
		fractions["diversity.raceEthnicityPct."+field] = &value
	}
	for field, value := range c.Diversity.GenderPct {
		value := value
		fractions["diversity.genderPct."+field] = &value
	}

	fields := make([]string, 0, len(fractions))
	for field := range fractions {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := fractions[field]
		if value == nil {
			continue
		}
		x := *value
		switch {
		case math.IsNaN(x) || math.IsInf(x, 0):
			add(IssueNotFinite, field, "%s is not a finite number", field)
		case x < 0 || x > 1:
			add(IssueOutOfRange, field, "%s = %v is outside 0..1", field, x)
		case math.Abs(x-converter.Round(x, v.places)) > 1e-12:
			add(IssueNotRounded, field, "%s = %v has more than %d decimal places", field, x, v.places)
		}
	}

	if c.Diversity.RaceEthnicityPct == nil {
		add(IssueNullMap, "diversity.raceEthnicityPct", "diversity.raceEthnicityPct serializes as null")
	}
	if c.Diversity.GenderPct == nil {
		add(IssueNullMap, "diversity.genderPct", "diversity.genderPct serializes as null")
	}
	if c.Override == nil {
		add(IssueNullMap, "override", "override serializes as null")
	}

	if _, err := time.Parse(time.RFC3339, c.LastStaticUpdate); err != nil {
		add(IssueBadTimestamp, "lastStaticUpdate", "lastStaticUpdate %q is not RFC 3339", c.LastStaticUpdate)
	}

	return issues
}
