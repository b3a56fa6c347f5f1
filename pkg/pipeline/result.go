package pipeline

import (
	"time"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/publisher"
	"github.com/David-Botos/ipeds-ingress/pkg/writer"
)

// RunResult represents the outcome of one merge run
type RunResult struct {
	RunID        string
	OutputPath   string
	Sources      []string // Sources that loaded, in configured order
	Unavailable  []string // Sources that could not be loaded
	MergedRows   int
	Records      []model.College
	Diagnostics  []model.Diagnostic
	Completeness writer.Report
	Verification *VerificationReport
	Sync         *publisher.SyncStatus // Set when publishing ran
	Written      bool
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// NewRunResult initializes a result for a run
func NewRunResult(runID, outputPath string) *RunResult {
	return &RunResult{
		RunID:      runID,
		OutputPath: outputPath,
		StartTime:  time.Now(),
	}
}

// Complete marks the run as complete and calculates duration
func (r *RunResult) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// AddDiagnostics appends diagnostics to the result
func (r *RunResult) AddDiagnostics(diags ...model.Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, diags...)
}

// DiagnosticCount returns the number of diagnostics in one category
func (r *RunResult) DiagnosticCount(category model.Category) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Category == category {
			n++
		}
	}
	return n
}

// HasDiagnostics checks if any diagnostics were produced
func (r *RunResult) HasDiagnostics() bool {
	return len(r.Diagnostics) > 0
}

// RowFailures returns the number of merged rows that produced no record
func (r *RunResult) RowFailures() int {
	return r.DiagnosticCount(model.CategoryRowMapping)
}
