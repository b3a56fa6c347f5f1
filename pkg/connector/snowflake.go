// pkg/connector/snowflake.go
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
	"github.com/David-Botos/ipeds-ingress/pkg/converter"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

// SnowflakeConnector reads IPEDS extracts staged as warehouse tables
type SnowflakeConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakeConnector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("snowflake configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("snowflake-connector")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	if cfg.QueryTimeout > 0 {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", int(cfg.QueryTimeout.Seconds())))
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	LogConnectionStats(logger, cfg.Database, db)
	return &SnowflakeConnector{db: db, logger: logger, cfg: cfg}, nil
}

// DB returns the underlying database handle
func (c *SnowflakeConnector) DB() *sqlx.DB {
	return c.db
}

// Validate verifies the Snowflake connection and that the session is on the
// configured database
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var session struct {
		Role      string `db:"ROLE"`
		Database  string `db:"DATABASE"`
		Warehouse string `db:"WAREHOUSE"`
	}
	err := c.db.GetContext(ctx, &session,
		`SELECT CURRENT_ROLE() AS "ROLE", CURRENT_DATABASE() AS "DATABASE", CURRENT_WAREHOUSE() AS "WAREHOUSE"`)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", session.Role),
		zap.String("database", session.Database),
		zap.String("warehouse", session.Warehouse))

	if !strings.EqualFold(session.Database, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)", session.Database, c.cfg.Database)
	}
	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// FetchTable reads a staged table ("TABLE" or "SCHEMA.TABLE") into a raw
// row table. Every cell is rendered to its text form; NULL becomes absent.
func (c *SnowflakeConnector) FetchTable(ctx context.Context, ref string) (*model.Table, error) {
	table, err := ParseTableRef(ref, c.cfg.Schema)
	if err != nil {
		return nil, err
	}

	queryCtx := ctx
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := c.db.QueryxContext(queryCtx, "SELECT * FROM "+table.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}

	result := model.NewTable(table.Table, columns)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}
		result.Rows = append(result.Rows, rowFromValues(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", table, err)
	}

	c.logger.Info("Fetched warehouse table",
		zap.String("table", table.String()),
		zap.Int("rows", result.Len()),
		zap.Int("columns", len(columns)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

func rowFromValues(columns []string, values []interface{}) model.Row {
	row := make(model.Row, len(columns))
	for i, col := range columns {
		if i >= len(values) || values[i] == nil {
			continue
		}
		row[col] = converter.ToString(values[i])
	}
	return row
}
