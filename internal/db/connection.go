package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Connection wraps the database handle and the dialect it speaks
type Connection struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open creates a new database connection
func Open(ctx context.Context, config Config, log *zap.Logger) (*Connection, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := dialect.DSN(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build database dsn: %w", err)
	}

	handle, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect.Name == DialectSQLite {
		// SQLite allows a single writer; serialising on one connection keeps
		// transactions from failing with SQLITE_BUSY.
		handle.SetMaxOpenConns(1)
	} else {
		if config.MaxOpenConns > 0 {
			handle.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			handle.SetMaxIdleConns(config.MaxIdleConns)
		}
	}
	if config.ConnMaxLifetime > 0 {
		handle.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// Test the connection
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database",
		zap.String("driver", dialect.Name),
		zap.String("host", config.Host),
		zap.String("database", databaseName(dialect, config)),
	)

	return &Connection{DB: handle, Dialect: dialect}, nil
}

// Close closes the database handle
func (c *Connection) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DialectPostgres,
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "admin",
		DBName:          "revstore",
		SSLMode:         "disable",
		Path:            "revstore.db",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func databaseName(d Dialect, config Config) string {
	if d.Name == DialectSQLite {
		return config.Path
	}
	return config.DBName
}
