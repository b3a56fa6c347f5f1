// Package mapper projects merged IPEDS rows into normalized college records.
package mapper

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/merger"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/schema"
)

// errMissingKey marks a merged row without an institution key
var errMissingKey = errors.New("row has no institution key")

// Config controls record metadata and column preferences
type Config struct {
	// Value of staticSource on every record
	StaticSource string
	// Preferred Pell recipient column; overrides the registry when set
	PellColumn string
	// Run timestamp written to lastStaticUpdate; zero means now
	Timestamp time.Time
}

// DefaultConfig returns the default mapping configuration
func DefaultConfig() Config {
	return Config{StaticSource: "IPEDS_2022_revised"}
}

// Mapper turns merged rows into College records
type Mapper struct {
	reg    schema.Registry
	conv   *converter.Converter
	cfg    Config
	logger *zap.Logger
}

// New creates a mapper for the given field registry
func New(reg schema.Registry, conv *converter.Converter, cfg Config, logger *zap.Logger) *Mapper {
	if conv == nil {
		conv = converter.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaticSource == "" {
		cfg.StaticSource = DefaultConfig().StaticSource
	}
	return &Mapper{
		reg:    reg,
		conv:   conv,
		cfg:    cfg,
		logger: logger.Named("mapper"),
	}
}

// Map produces, for every merged row, either one College or one RowMapping
// diagnostic. Records keep merged row order.
func (m *Mapper) Map(merged *merger.Merged) ([]model.College, []model.Diagnostic) {
	p, diags := buildPlan(m.reg, m.cfg.PellColumn, merged)
	for _, d := range diags {
		m.logger.Warn("Schema fallback", zap.String("source", d.Source), zap.String("detail", d.Message))
	}

	stamp := m.cfg.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	updated := stamp.UTC().Format(time.RFC3339)

	records := make([]model.College, 0, merged.Len())
	failed := 0
	for i, row := range merged.Table.Rows {
		college, err := m.mapRow(p, merged.Key(i), row, updated)
		if err != nil {
			failed++
			name := ""
			if p.name != "" {
				name = row[p.name]
			}
			diags = append(diags, model.NewDiagnostic(model.StageMap, model.CategoryRowMapping, err.Error()).
				WithInstitution(merged.Key(i), name))
			continue
		}
		records = append(records, college)
	}

	m.logger.Info("Mapped records",
		zap.Int("rows", merged.Len()),
		zap.Int("records", len(records)),
		zap.Int("failed", failed))

	return records, diags
}

// mapRow maps a single row, converting a panic into an error
func (m *Mapper) mapRow(p *plan, key string, row model.Row, updated string) (college model.College, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while mapping row: %v", r)
		}
	}()

	if m.conv.IsMissing(key) {
		return model.College{}, errMissingKey
	}

	college = model.College{
		IPEDSID:          key,
		Name:             m.text(row, p.name),
		Alias:            m.text(row, p.alias),
		Website:          m.conv.Website(cell(row, p.website)),
		Location:         m.location(p, row),
		Control:          m.integer(row, p.control),
		Sector:           m.integer(row, p.sector),
		Admissions:       m.admissions(p, row),
		Override:         map[string]interface{}{},
		StaticSource:     m.cfg.StaticSource,
		LastStaticUpdate: updated,
	}

	undergrad := m.integer(row, p.undergrad)
	college.Enrollment = model.Enrollment{Undergrad: undergrad}
	college.Diversity = m.diversity(p, row, undergrad)
	college.Financials = m.financials(p, row)
	college.Outcomes = model.Outcomes{
		GradRate4yr: m.gradRate(row, p.grad4),
		GradRate6yr: m.gradRate(row, p.grad6),
	}

	return college, nil
}
