// Package pipeline runs the IPEDS merge end to end: load, merge, map,
// write, verify and optionally publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
	"github.com/David-Botos/ipeds-ingress/pkg/connector"
	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/loader"
	"github.com/David-Botos/ipeds-ingress/pkg/mapper"
	"github.com/David-Botos/ipeds-ingress/pkg/merger"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
	"github.com/David-Botos/ipeds-ingress/pkg/publisher"
	"github.com/David-Botos/ipeds-ingress/pkg/schema"
	"github.com/David-Botos/ipeds-ingress/pkg/writer"
)

// CollegePublisher stores the records of a run
type CollegePublisher interface {
	ReplaceColleges(ctx context.Context, runID string, records []model.College) (*publisher.SyncStatus, []model.Diagnostic, error)
}

// Pipeline orchestrates one merge run
type Pipeline struct {
	cfg       *config.Config
	reg       schema.Registry
	conv      *converter.Converter
	factory   *connector.ConnectorFactory
	warehouse loader.TableQuerier
	files     loader.Fetcher
	web       loader.Fetcher
	publisher CollegePublisher
	errors    *ErrorHandler
	metrics   *RunMetrics
	out       io.Writer
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a pipeline from the run configuration. The field registry is
// the built-in one for the configured vintage, overlaid with the schema file
// when one is set.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reg, err := schema.Lookup(cfg.Vintage)
	if err != nil {
		return nil, err
	}
	if cfg.SchemaFile != "" {
		reg, err = schema.LoadFile(cfg.SchemaFile, reg)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded field registry overrides", zap.String("file", cfg.SchemaFile))
	}

	convConfig := converter.DefaultConfig()
	if len(cfg.SentinelTokens) > 0 {
		convConfig.SentinelTokens = cfg.SentinelTokens
	}

	return &Pipeline{
		cfg:     cfg,
		reg:     reg,
		conv:    converter.NewWithConfig(convConfig),
		factory: connector.NewConnectorFactory(cfg, logger),
		errors:  NewErrorHandler(logger.Named("diagnostics")),
		metrics: NewRunMetrics(logger.Named("metrics")),
		now:     time.Now,
		logger:  logger.Named("pipeline"),
	}, nil
}

// WithWarehouse serves snowflake:// sources from q instead of a new
// Snowflake connection
func (p *Pipeline) WithWarehouse(q loader.TableQuerier) *Pipeline {
	p.warehouse = q
	return p
}

// WithFetchers replaces the fetchers used for local and HTTP sources
func (p *Pipeline) WithFetchers(files, web loader.Fetcher) *Pipeline {
	p.files = files
	p.web = web
	return p
}

// WithPublisher stores records through pub instead of a new Postgres
// connection
func (p *Pipeline) WithPublisher(pub CollegePublisher) *Pipeline {
	p.publisher = pub
	return p
}

// WithReportWriter sets where the completeness and metrics reports are
// printed; nil disables them
func (p *Pipeline) WithReportWriter(w io.Writer) *Pipeline {
	p.out = w
	return p
}

// WithClock sets the source of the run timestamp
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Errors returns the diagnostics collected so far
func (p *Pipeline) Errors() *ErrorHandler {
	return p.errors
}

// Metrics returns the run metrics
func (p *Pipeline) Metrics() *RunMetrics {
	return p.metrics
}

// Registry returns the field registry in use
func (p *Pipeline) Registry() schema.Registry {
	return p.reg
}

// Run executes every stage once. Per-source and per-row problems are
// collected as diagnostics; an unusable base table, an empty mapping result,
// a failed output write and, when requested, a failed publish end the run
// with an error. The result is returned in every case.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.NewString()
	result := NewRunResult(runID, p.cfg.OutputPath)
	defer result.Complete()
	defer p.metrics.Complete()

	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("Starting merge run",
		zap.String("vintage", p.reg.Vintage),
		zap.String("base", p.cfg.BaseSource),
		zap.Int("sources", len(p.cfg.Sources)),
		zap.String("output", p.cfg.OutputPath))

	// Load
	p.metrics.StartStage(model.StageLoad)
	tables, err := p.load(ctx, result)
	if err != nil {
		return result, err
	}
	p.metrics.EndStage(model.StageLoad, len(tables))

	// Merge
	p.metrics.StartStage(model.StageMerge)
	mrg := merger.New(p.reg.KeyColumn, p.conv, logger)
	merged, diags, err := mrg.Merge(p.cfg.BaseSource, tables, merger.DefaultStages(p.reg, p.conv))
	p.collect(result, diags)
	if err != nil {
		return result, fmt.Errorf("merge failed: %w", err)
	}
	result.MergedRows = merged.Len()
	p.metrics.RowsMerged = merged.Len()
	p.metrics.EndStage(model.StageMerge, merged.Len())

	// Map
	p.metrics.StartStage(model.StageMap)
	mp := mapper.New(p.reg, p.conv, mapper.Config{
		StaticSource: p.cfg.StaticSource,
		PellColumn:   p.cfg.PellColumn,
		Timestamp:    p.now(),
	}, logger)
	records, diags := mp.Map(merged)
	p.collect(result, diags)
	result.Records = records
	p.metrics.RecordsOut = len(records)
	p.metrics.RowsFailed = result.RowFailures()
	p.metrics.EndStage(model.StageMap, len(records))

	if len(records) == 0 && merged.Len() > 0 {
		logger.Warn("No merged row could be mapped; writing an empty dataset",
			zap.Int("merged_rows", merged.Len()),
			zap.Int("row_failures", result.RowFailures()))
	}

	// Write
	p.metrics.StartStage(model.StageWrite)
	if err := writer.WriteJSON(p.cfg.OutputPath, records); err != nil {
		p.collect(result, []model.Diagnostic{
			model.NewDiagnostic(model.StageWrite, model.CategoryOutputWrite, err.Error()),
		})
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	result.Written = true
	p.metrics.EndStage(model.StageWrite, len(records))

	// Verify
	p.metrics.StartStage(model.StageVerify)
	verifier := NewVerifier(p.conv.Places(), logger)
	report := verifier.Verify(merged.Len(), records, result.RowFailures())
	result.Verification = report
	p.collect(result, report.Diagnostics())
	p.metrics.EndStage(model.StageVerify, len(report.IntegrityIssues))

	// Publish
	if p.cfg.PublishEnabled {
		p.metrics.StartStage(model.StagePublish)
		if err := p.publish(ctx, result); err != nil {
			return result, err
		}
		inserted := 0
		if result.Sync != nil {
			inserted = result.Sync.Inserted
		}
		p.metrics.EndStage(model.StagePublish, inserted)
	} else {
		p.metrics.SkipStage(model.StagePublish, "publishing disabled")
	}

	result.Completeness = writer.Completeness(records)
	p.printReports(result)

	logger.Info("Merge run finished",
		zap.Int("records", len(records)),
		zap.Int("diagnostics", len(result.Diagnostics)),
		zap.Int("warnings", p.errors.WarningCount()))
	return result, nil
}

// load fetches every configured source, opening a Snowflake connection when
// a warehouse source needs one
func (p *Pipeline) load(ctx context.Context, result *RunResult) (map[string]*model.Table, error) {
	sources := make([]loader.Source, len(p.cfg.Sources))
	for i, src := range p.cfg.Sources {
		sources[i] = loader.Source{Name: src.Name, Location: src.Location}
	}

	warehouse := p.warehouse
	if warehouse == nil && loader.NeedsWarehouse(sources) && p.factory.HasSnowflake() {
		conn, err := p.factory.CreateSnowflakeConnector(ctx)
		if err != nil {
			// Warehouse sources are reported as unavailable by the loader
			p.logger.Warn("Snowflake unavailable", zap.Error(err))
		} else {
			defer conn.Close()
			warehouse = conn
		}
	}

	ld, err := loader.New(loader.Config{
		FallbackEncoding: p.cfg.FallbackEncoding,
		HTTPTimeout:      p.cfg.HTTPTimeout,
	}, warehouse, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}
	ld = ld.WithFetchers(p.files, p.web)

	tables, diags := ld.Load(ctx, sources)
	p.collect(result, diags)

	for _, src := range sources {
		if _, ok := tables[src.Name]; ok {
			result.Sources = append(result.Sources, src.Name)
		} else {
			result.Unavailable = append(result.Unavailable, src.Name)
		}
	}
	p.metrics.SourcesLoaded = len(result.Sources)
	p.metrics.SourcesFailed = len(result.Unavailable)
	return tables, nil
}

// publish replaces the stored college set with the run's records
func (p *Pipeline) publish(ctx context.Context, result *RunResult) error {
	pub := p.publisher
	if pub == nil {
		conn, err := p.factory.CreatePostgresConnector(ctx)
		if err != nil {
			p.collect(result, []model.Diagnostic{
				model.NewDiagnostic(model.StagePublish, model.CategoryPublish, err.Error()),
			})
			return fmt.Errorf("publish failed: %w", err)
		}
		defer conn.Close()
		pub = publisher.New(conn, p.logger)
	}

	status, diags, err := pub.ReplaceColleges(ctx, result.RunID, result.Records)
	p.collect(result, diags)
	result.Sync = status
	if err != nil {
		p.collect(result, []model.Diagnostic{
			model.NewDiagnostic(model.StagePublish, model.CategoryPublish, err.Error()),
		})
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// collect records diagnostics in the error handler and the result
func (p *Pipeline) collect(result *RunResult, diags []model.Diagnostic) {
	p.errors.RecordAll(diags)
	result.AddDiagnostics(diags...)
}

func (p *Pipeline) printReports(result *RunResult) {
	if p.out == nil {
		return
	}
	writer.PrintReport(p.out, result.Completeness)
	fmt.Fprint(p.out, p.metrics.GenerateMetricsReport(p.errors))
}
