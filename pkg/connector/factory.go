// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
)

// ConnectorFactory creates database connectors from the run configuration
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// HasSnowflake reports whether warehouse sources can be served
func (f *ConnectorFactory) HasSnowflake() bool {
	return f.cfg.Snowflake != nil
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, fmt.Errorf("snowflake is not configured")
	}
	f.logger.Info("Creating Snowflake connector")

	conn, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}
	return conn, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	if f.cfg.Postgres == nil {
		return nil, fmt.Errorf("postgreSQL is not configured")
	}
	f.logger.Info("Creating PostgreSQL connector")

	conn, err := NewPostgresConnector(ctx, f.cfg.Postgres, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	if err := conn.Validate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
