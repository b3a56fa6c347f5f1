// pkg/connector/postgres.go
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
)

// PostgresConnector is the document store connection used by the publisher
type PostgresConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig, logger *zap.Logger) (*PostgresConnector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgreSQL configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	ApplyConnectionSettings(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	LogConnectionStats(logger, cfg.Database, db)
	return &PostgresConnector{db: db, logger: logger, cfg: cfg}, nil
}

// DB returns the underlying database handle
func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// Config returns the connection configuration
func (c *PostgresConnector) Config() *config.PostgresConfig {
	return c.cfg
}

// Validate verifies the PostgreSQL connection
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))
	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// BeginTx starts a transaction with the configured statement timeout applied
// to it
func (c *PostgresConnector) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if c.cfg.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", c.cfg.StatementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			c.logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}
	return tx, nil
}

// QuoteTable quotes a possibly schema-qualified table name
func QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// CreateTableIfNotExists creates a table with the given column definitions
func CreateTableIfNotExists(ctx context.Context, exec sqlx.ExecerContext, table string, columnDefs []string) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		QuoteTable(table), strings.Join(columnDefs, ",\n\t"))
	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// BuildInsert renders a multi-row INSERT with positional placeholders for
// len(rows) rows of len(columns) values each
func BuildInsert(table string, columns []string, rows int) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	placeholders := make([]string, rows)
	for j := 0; j < rows; j++ {
		rowPlaceholders := make([]string, len(columns))
		for k := range columns {
			rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
		}
		placeholders[j] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		QuoteTable(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// BatchInsert performs a bulk insert in batches of batchSize rows and
// returns the number of rows inserted
func BatchInsert(
	ctx context.Context,
	exec sqlx.ExecerContext,
	table string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (int64, error) {
	if len(valueRows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var inserted int64
	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}
		batch := valueRows[i:end]

		args := make([]interface{}, 0, len(batch)*len(columns))
		for _, row := range batch {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("row has %d values, expected %d", len(row), len(columns))
			}
			args = append(args, row...)
		}

		result, err := exec.ExecContext(ctx, BuildInsert(table, columns, len(batch)), args...)
		if err != nil {
			return inserted, fmt.Errorf("batch insert at row %d failed: %w", i, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			inserted += int64(len(batch))
			continue
		}
		inserted += affected
	}

	return inserted, nil
}
