package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const defaultPingTimeout = 5 * time.Second

// PersistenceConfig adapts core.DatabaseConfig to the go-persistence-bun
// client configuration.
type PersistenceConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func NewPersistenceConfig(cfg core.DatabaseConfig) PersistenceConfig {
	return PersistenceConfig{
		Driver:         DriverName(cfg.Driver),
		DSN:            strings.TrimSpace(cfg.DSN),
		Debug:          cfg.Debug,
		PingTimeout:    defaultPingTimeout,
		OtelIdentifier: "go-connectors",
	}
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string { return c.Driver }

func (c PersistenceConfig) GetServer() string { return c.DSN }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string { return c.OtelIdentifier }

// DriverName maps configured driver aliases to the registered database/sql
// driver: lib/pq for postgres, mattn/go-sqlite3 for sqlite. The caller must
// import the driver package.
func DriverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql", "pq", "":
		return "postgres"
	default:
		return strings.TrimSpace(driver)
	}
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "sqlite3":
		return sqlitedialect.New(), nil
	}
	return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
}

// OpenClient opens the configured database and wraps it in a persistence
// client. SQLite is limited to one connection.
func OpenClient(cfg core.DatabaseConfig) (*persistence.Client, error) {
	pcfg := NewPersistenceConfig(cfg)
	if pcfg.DSN == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}
	dialect, err := dialectFor(pcfg.Driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(pcfg.Driver, pcfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", pcfg.Driver, err)
	}
	if pcfg.Driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(pcfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return client, nil
}
