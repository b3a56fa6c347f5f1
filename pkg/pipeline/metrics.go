package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// StageMetrics tracks one pipeline stage
type StageMetrics struct {
	Stage     model.Stage
	StartTime time.Time
	EndTime   time.Time
	Items     int
	Skipped   bool
}

// Duration returns how long the stage ran
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// RunMetrics tracks metrics for a merge run
type RunMetrics struct {
	mu            sync.Mutex
	logger        *zap.Logger
	StartTime     time.Time
	EndTime       time.Time
	stages        map[model.Stage]*StageMetrics
	order         []model.Stage
	SourcesLoaded int
	SourcesFailed int
	RowsMerged    int
	RecordsOut    int
	RowsFailed    int
}

// NewRunMetrics creates a new RunMetrics instance
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunMetrics{
		logger:    logger,
		StartTime: time.Now(),
		stages:    make(map[model.Stage]*StageMetrics),
	}
}

// StartStage begins timing a stage
func (rm *RunMetrics) StartStage(stage model.Stage) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.stages[stage]; !ok {
		rm.order = append(rm.order, stage)
	}
	rm.stages[stage] = &StageMetrics{Stage: stage, StartTime: time.Now()}

	rm.logger.Info("Started stage", zap.String("stage", string(stage)))
}

// EndStage stops timing a stage and records how many items it produced
func (rm *RunMetrics) EndStage(stage model.Stage, items int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	sm, ok := rm.stages[stage]
	if !ok {
		return
	}
	sm.EndTime = time.Now()
	sm.Items = items

	rm.logger.Info("Completed stage",
		zap.String("stage", string(stage)),
		zap.Int("items", items),
		zap.Duration("duration", sm.Duration()))
}

// SkipStage records a stage that did not run
func (rm *RunMetrics) SkipStage(stage model.Stage, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now()
	if _, ok := rm.stages[stage]; !ok {
		rm.order = append(rm.order, stage)
	}
	rm.stages[stage] = &StageMetrics{Stage: stage, StartTime: now, EndTime: now, Skipped: true}

	rm.logger.Info("Skipped stage",
		zap.String("stage", string(stage)),
		zap.String("reason", reason))
}

// Stage returns the metrics for one stage
func (rm *RunMetrics) Stage(stage model.Stage) (StageMetrics, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	sm, ok := rm.stages[stage]
	if !ok {
		return StageMetrics{}, false
	}
	return *sm, true
}

// Stages returns stage metrics in the order the stages started
func (rm *RunMetrics) Stages() []StageMetrics {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	out := make([]StageMetrics, 0, len(rm.order))
	for _, stage := range rm.order {
		out = append(out, *rm.stages[stage])
	}
	return out
}

// Complete marks the run as complete
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()
	rm.logger.Info("Merge run completed",
		zap.Duration("totalDuration", rm.EndTime.Sub(rm.StartTime)),
		zap.Int("sourcesLoaded", rm.SourcesLoaded),
		zap.Int("sourcesFailed", rm.SourcesFailed),
		zap.Int("records", rm.RecordsOut),
		zap.Int("rowsFailed", rm.RowsFailed))
}

// Duration returns the total duration of the run
func (rm *RunMetrics) Duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// getPercentage safely calculates a percentage, avoiding division by zero
func getPercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}

// GenerateMetricsReport creates a text report of the run, including the
// diagnostic distribution collected by errors
func (rm *RunMetrics) GenerateMetricsReport(errors *ErrorHandler) string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	totalSources := rm.SourcesLoaded + rm.SourcesFailed
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`
Merge Run Report
================
Duration:                %s

Sources
-------
Loaded:                  %d (%.1f%%)
Unavailable:             %d (%.1f%%)

Records
-------
Merged Rows:             %d
Records Written:         %d
Rows Failed:             %d
`,
		formatDuration(rm.Duration()),
		rm.SourcesLoaded, getPercentage(float64(rm.SourcesLoaded), float64(totalSources)),
		rm.SourcesFailed, getPercentage(float64(rm.SourcesFailed), float64(totalSources)),
		rm.RowsMerged,
		rm.RecordsOut,
		rm.RowsFailed,
	))

	sb.WriteString("\nStages\n------\n")
	for _, stage := range rm.order {
		sm := rm.stages[stage]
		if sm.Skipped {
			sb.WriteString(fmt.Sprintf("- %s: skipped\n", stage))
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %d items, %s\n", stage, sm.Items, formatDuration(sm.Duration())))
	}

	if errors != nil {
		if total := errors.Total(); total > 0 {
			summary := errors.GetErrorSummary()
			sb.WriteString("\nDiagnostics\n-----------\n")
			for _, category := range errors.Categories() {
				count := summary[category]
				sb.WriteString(fmt.Sprintf("- %s: %d (%.1f%%)\n",
					category, count, getPercentage(float64(count), float64(total))))
			}
		}
	}

	return sb.String()
}
