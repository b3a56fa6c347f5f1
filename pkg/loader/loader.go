// Package loader fetches named IPEDS extracts into raw row tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// ErrNoWarehouse is returned for warehouse sources when no connection is
// configured
var ErrNoWarehouse = errors.New("warehouse source requested but Snowflake is not configured")

// Source is one named extract and its location: an http(s) URL, a
// snowflake://[SCHEMA.]TABLE reference or a local path
type Source struct {
	Name     string
	Location string
}

// Config controls how extracts are fetched and decoded
type Config struct {
	FallbackEncoding string
	HTTPTimeout      time.Duration
}

// Loader fetches extracts. A source that cannot be loaded is reported and
// left out; loading never fails as a whole.
type Loader struct {
	files     Fetcher
	web       Fetcher
	warehouse TableQuerier
	decoder   *Decoder
	logger    *zap.Logger
}

// New creates a loader. warehouse may be nil, in which case snowflake://
// sources are unavailable.
func New(cfg Config, warehouse TableQuerier, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder, err := NewDecoder(cfg.FallbackEncoding)
	if err != nil {
		return nil, err
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Loader{
		files:     FileFetcher{},
		web:       NewHTTPFetcher(timeout),
		warehouse: warehouse,
		decoder:   decoder,
		logger:    logger.Named("loader"),
	}, nil
}

// WithFetchers returns a copy of the loader using different fetchers for
// local and HTTP locations. Nil arguments keep the current fetcher.
func (l *Loader) WithFetchers(files, web Fetcher) *Loader {
	clone := *l
	if files != nil {
		clone.files = files
	}
	if web != nil {
		clone.web = web
	}
	return &clone
}

// Load fetches every source in order. The returned map holds the tables
// that loaded; each failure yields one SourceUnavailable diagnostic.
func (l *Loader) Load(ctx context.Context, sources []Source) (map[string]*model.Table, []model.Diagnostic) {
	tables := make(map[string]*model.Table, len(sources))
	var diags []model.Diagnostic

	for i, src := range sources {
		kind := classify(src.Location)
		l.logger.Info("Loading source",
			zap.Int("index", i+1),
			zap.Int("total", len(sources)),
			zap.String("source", src.Name),
			zap.String("kind", kind.String()))

		start := time.Now()
		table, err := l.loadOne(ctx, src, kind)
		if err != nil {
			l.logger.Warn("Source unavailable",
				zap.String("source", src.Name),
				zap.String("location", src.Location),
				zap.Error(err))
			diags = append(diags, model.NewDiagnostic(model.StageLoad, model.CategorySourceUnavailable, err.Error()).
				WithSource(src.Name))
			continue
		}

		table.Name = src.Name
		tables[src.Name] = table
		l.logger.Info("Loaded source",
			zap.String("source", src.Name),
			zap.Int("rows", table.Len()),
			zap.Int("columns", len(table.Columns)),
			zap.Duration("duration", time.Since(start)))
	}

	return tables, diags
}

func (l *Loader) loadOne(ctx context.Context, src Source, kind locationKind) (*model.Table, error) {
	switch kind {
	case kindWarehouse:
		if l.warehouse == nil {
			return nil, ErrNoWarehouse
		}
		ref := strings.TrimSpace(src.Location)[len(warehouseScheme):]
		return l.warehouse.FetchTable(ctx, ref)
	case kindHTTP:
		return l.parse(ctx, src, l.web)
	default:
		return l.parse(ctx, src, l.files)
	}
}

func (l *Loader) parse(ctx context.Context, src Source, fetcher Fetcher) (*model.Table, error) {
	raw, err := fetcher.Fetch(ctx, src.Location)
	if err != nil {
		return nil, err
	}

	data, usedFallback, err := l.decoder.Decode(raw)
	if err != nil {
		return nil, err
	}
	if usedFallback {
		l.logger.Debug("Decoded with fallback encoding",
			zap.String("source", src.Name),
			zap.String("encoding", l.decoder.Name()))
	}

	table, err := ParseCSV(src.Name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.Location, err)
	}
	return table, nil
}
