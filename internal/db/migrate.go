package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations for the configured dialect.
// The migrator uses its own connection and closes it when done.
func RunMigrations(ctx context.Context, config Config, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dialect.Name)
	if err != nil {
		return fmt.Errorf("failed to read migrations for %s: %w", dialect.Name, err)
	}

	databaseURL, err := migrationURL(dialect, config)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialise migrator: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{log: log.Sugar()}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	log.Info("migrations applied",
		zap.String("driver", dialect.Name),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

func migrationURL(d Dialect, config Config) (string, error) {
	dsn, err := d.DSN(config)
	if err != nil {
		return "", fmt.Errorf("failed to build database dsn: %w", err)
	}

	switch d.Name {
	case DialectPostgres:
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://"), nil
	case DialectMySQL:
		return "mysql://" + dsn, nil
	case DialectSQLite:
		return "sqlite://" + config.Path, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, d.Name)
}

type migrateLogger struct {
	log *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return false
}
