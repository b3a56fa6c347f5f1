// Package publisher loads college records into a Postgres JSONB collection.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/connector"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// Sync statuses recorded in the sync table
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

var documentColumns = []string{"id", "ipeds_id", "run_id", "document", "created_at", "updated_at"}

// SyncStatus is one row of the sync table
type SyncStatus struct {
	RunID        string    `db:"run_id"`
	LastSync     time.Time `db:"last_sync"`
	TotalRecords int       `db:"total_records"`
	Inserted     int       `db:"inserted"`
	Failed       int       `db:"failed"`
	Status       string    `db:"status"`
	Error        string    `db:"error"`
}

// Config names the target tables
type Config struct {
	CollectionTable string
	SyncTable       string
	BatchSize       int
}

// Publisher replaces the stored college set with a new run's records
type Publisher struct {
	db     *sqlx.DB
	begin  func(ctx context.Context) (*sqlx.Tx, error)
	cfg    Config
	logger *zap.Logger
}

// New creates a publisher writing through conn
func New(conn *connector.PostgresConnector, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	pg := conn.Config()
	return &Publisher{
		db:    conn.DB(),
		begin: conn.BeginTx,
		cfg: Config{
			CollectionTable: pg.CollectionTable,
			SyncTable:       pg.SyncTable,
			BatchSize:       pg.BatchSize,
		},
		logger: logger.Named("publisher"),
	}
}

// ReplaceColleges deletes the previous college set and inserts records in a
// single transaction, then records the sync status. Records that cannot be
// encoded are counted as failed, skipped and returned as diagnostics.
func (p *Publisher) ReplaceColleges(ctx context.Context, runID string, records []model.College) (*SyncStatus, []model.Diagnostic, error) {
	start := time.Now()
	now := start.UTC()
	rows, failed := BuildDocuments(runID, records, now)
	for _, f := range failed {
		p.logger.Warn("Skipping record that cannot be encoded",
			zap.String("ipeds_id", f.InstitutionID), zap.String("error", f.Message))
	}

	status := &SyncStatus{
		RunID:        runID,
		LastSync:     now,
		TotalRecords: len(records),
		Failed:       len(failed),
		Status:       StatusFailed,
	}

	done, err := p.replace(ctx, rows, *status)
	if err != nil {
		// nothing from the transaction survived
		status.Error = err.Error()
		if recErr := p.recordStatus(ctx, p.db, status); recErr != nil {
			p.logger.Warn("Failed to record failed sync", zap.Error(recErr))
		}
		return status, failed, err
	}

	p.logger.Info("Published colleges",
		zap.String("run_id", runID),
		zap.Int("inserted", done.Inserted),
		zap.Int("failed", done.Failed),
		zap.String("status", done.Status),
		zap.Duration("duration", time.Since(start)))
	return done, failed, nil
}

// replace swaps the collection and records the final status in one
// transaction. The returned status is only valid once committed.
func (p *Publisher) replace(ctx context.Context, rows [][]interface{}, status SyncStatus) (*SyncStatus, error) {
	tx, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := p.ensureTables(ctx, tx); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+connector.QuoteTable(p.cfg.CollectionTable)); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", p.cfg.CollectionTable, err)
	}

	inserted, err := connector.BatchInsert(ctx, tx, p.cfg.CollectionTable, documentColumns, rows, p.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	status.Inserted = int(inserted)
	status.Status = FinalStatus(status.TotalRecords, status.Failed)
	if err := p.recordStatus(ctx, tx, &status); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish: %w", err)
	}
	return &status, nil
}

func (p *Publisher) ensureTables(ctx context.Context, tx *sqlx.Tx) error {
	if err := connector.CreateTableIfNotExists(ctx, tx, p.cfg.CollectionTable, []string{
		"id UUID PRIMARY KEY",
		"ipeds_id TEXT NOT NULL UNIQUE",
		"run_id UUID NOT NULL",
		"document JSONB NOT NULL",
		"created_at TIMESTAMPTZ NOT NULL",
		"updated_at TIMESTAMPTZ NOT NULL",
	}); err != nil {
		return err
	}

	return connector.CreateTableIfNotExists(ctx, tx, p.cfg.SyncTable, []string{
		"run_id UUID PRIMARY KEY",
		"last_sync TIMESTAMPTZ NOT NULL",
		"total_records INTEGER NOT NULL",
		"inserted INTEGER NOT NULL",
		"failed INTEGER NOT NULL",
		"status TEXT NOT NULL",
		"error TEXT NOT NULL DEFAULT ''",
	})
}

func (p *Publisher) recordStatus(ctx context.Context, exec sqlx.ExtContext, status *SyncStatus) error {
	query := fmt.Sprintf(`INSERT INTO %s (run_id, last_sync, total_records, inserted, failed, status, error)
		VALUES (:run_id, :last_sync, :total_records, :inserted, :failed, :status, :error)
		ON CONFLICT (run_id) DO UPDATE SET
			last_sync = EXCLUDED.last_sync,
			inserted = EXCLUDED.inserted,
			failed = EXCLUDED.failed,
			status = EXCLUDED.status,
			error = EXCLUDED.error`, connector.QuoteTable(p.cfg.SyncTable))

	if _, err := sqlx.NamedExecContext(ctx, exec, query, status); err != nil {
		return fmt.Errorf("failed to record sync status: %w", err)
	}
	return nil
}

// FinalStatus classifies a sync from its record counts
func FinalStatus(total, failed int) string {
	switch {
	case failed == 0:
		return StatusCompleted
	case failed < total:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// BuildDocuments encodes each record as one collection row. Records that
// cannot be encoded, or repeat an earlier ipedsId, are returned as Publish
// diagnostics.
func BuildDocuments(runID string, records []model.College, now time.Time) ([][]interface{}, []model.Diagnostic) {
	rows := make([][]interface{}, 0, len(records))
	seen := make(map[string]bool, len(records))
	var failed []model.Diagnostic

	for i := range records {
		rec := &records[i]
		if seen[rec.IPEDSID] {
			failed = append(failed, model.NewDiagnostic(model.StagePublish, model.CategoryPublish,
				"duplicate ipedsId; only the first record is stored").
				WithInstitution(rec.IPEDSID, rec.DisplayName()))
			continue
		}
		seen[rec.IPEDSID] = true

		doc, err := json.Marshal(rec)
		if err != nil {
			failed = append(failed, model.NewDiagnostic(model.StagePublish, model.CategoryPublish,
				fmt.Sprintf("failed to encode record: %v", err)).
				WithInstitution(rec.IPEDSID, rec.DisplayName()))
			continue
		}
		rows = append(rows, []interface{}{
			uuid.NewString(),
			rec.IPEDSID,
			runID,
			string(doc),
			now,
			now,
		})
	}
	return rows, failed
}
