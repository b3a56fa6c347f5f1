package pipeline

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// ErrorHandler collects the diagnostics produced during a run
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[model.Category]int
	sampleErrors map[model.Category][]model.Diagnostic
	sourceErrors map[string]int
	stageErrors  map[model.Stage]int
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[model.Category]int),
		sampleErrors: make(map[model.Category][]model.Diagnostic),
		sourceErrors: make(map[string]int),
		stageErrors:  make(map[model.Stage]int),
		maxSamples:   5, // Store up to 5 sample diagnostics per category
	}
}

// WithMaxSamples sets how many diagnostics are kept per category
func (eh *ErrorHandler) WithMaxSamples(n int) *ErrorHandler {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.maxSamples = n
	return eh
}

// levelFor picks the log level for a category
func levelFor(category model.Category) zapcore.Level {
	switch category {
	case model.CategorySchemaFallback, model.CategoryMissingFilterColumn, model.CategoryDuplicateKey:
		return zap.WarnLevel
	case model.CategorySourceUnavailable, model.CategoryMissingJoinKey, model.CategoryVerification:
		return zap.WarnLevel
	case model.CategoryOutputWrite, model.CategoryPublish:
		return zap.ErrorLevel
	default:
		// Row failures can be numerous
		return zap.InfoLevel
	}
}

// Record saves one diagnostic occurrence
func (eh *ErrorHandler) Record(d model.Diagnostic) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[d.Category]++
	eh.stageErrors[d.Stage]++

	samples := eh.sampleErrors[d.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[d.Category] = append(samples, d)
	}

	if d.Source != "" {
		eh.sourceErrors[d.Source]++
	}

	eh.logger.Log(levelFor(d.Category), "Pipeline diagnostic",
		zap.String("stage", string(d.Stage)),
		zap.String("category", d.Category.String()),
		zap.String("source", d.Source),
		zap.String("ipeds_id", d.InstitutionID),
		zap.String("column", d.Column),
		zap.String("detail", d.Message))
}

// RecordAll saves a batch of diagnostics
func (eh *ErrorHandler) RecordAll(diags []model.Diagnostic) {
	for _, d := range diags {
		eh.Record(d)
	}
}

// Count returns the number of diagnostics in one category
func (eh *ErrorHandler) Count(category model.Category) int {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	return eh.errorCounts[category]
}

// Total returns the number of diagnostics recorded
func (eh *ErrorHandler) Total() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	total := 0
	for _, count := range eh.errorCounts {
		total += count
	}
	return total
}

// WarningCount returns how many recorded diagnostics describe a degraded
// but valid path
func (eh *ErrorHandler) WarningCount() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	total := 0
	for category, count := range eh.errorCounts {
		if category.IsWarning() {
			total += count
		}
	}
	return total
}

// GetErrorSummary returns diagnostic counts by category
func (eh *ErrorHandler) GetErrorSummary() map[model.Category]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[model.Category]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns the first diagnostics seen in each category
func (eh *ErrorHandler) GetErrorSamples() map[model.Category][]model.Diagnostic {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[model.Category][]model.Diagnostic, len(eh.sampleErrors))
	for category, diags := range eh.sampleErrors {
		categorySamples := make([]model.Diagnostic, len(diags))
		copy(categorySamples, diags)
		samples[category] = categorySamples
	}
	return samples
}

// GetSourceErrorCounts returns diagnostic counts by source
func (eh *ErrorHandler) GetSourceErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.sourceErrors))
	for source, count := range eh.sourceErrors {
		counts[source] = count
	}
	return counts
}

// GetStageErrorCounts returns diagnostic counts by stage
func (eh *ErrorHandler) GetStageErrorCounts() map[model.Stage]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[model.Stage]int, len(eh.stageErrors))
	for stage, count := range eh.stageErrors {
		counts[stage] = count
	}
	return counts
}

// Categories returns the recorded categories in ascending order
func (eh *ErrorHandler) Categories() []model.Category {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	categories := make([]model.Category, 0, len(eh.errorCounts))
	for category := range eh.errorCounts {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}
