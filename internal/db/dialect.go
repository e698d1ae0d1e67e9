package db

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// ErrUnknownDialect is returned for a driver name no dialect is registered for.
var ErrUnknownDialect = errors.New("db: unknown dialect")

// Dialect describes how to reach and talk to one kind of store.
type Dialect struct {
	Name        string
	DriverName  string
	Placeholder sq.PlaceholderFormat
	DSN         func(Config) (string, error)
}

// Builder returns a statement builder using the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

// DialectFor resolves a configured driver name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DialectPostgres, "postgresql", "pgx":
		return Postgres(), nil
	case DialectMySQL:
		return MySQL(), nil
	case DialectSQLite, "sqlite3":
		return SQLite(), nil
	}
	return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
}

// Postgres talks to PostgreSQL through pgx's database/sql adapter.
func Postgres() Dialect {
	return Dialect{
		Name:        DialectPostgres,
		DriverName:  "pgx",
		Placeholder: sq.Dollar,
		DSN: func(c Config) (string, error) {
			u := url.URL{
				Scheme: "postgres",
				User:   url.UserPassword(c.User, c.Password),
				Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
				Path:   "/" + c.DBName,
			}
			q := u.Query()
			if c.SSLMode != "" {
				q.Set("sslmode", c.SSLMode)
			}
			u.RawQuery = q.Encode()
			return u.String(), nil
		},
	}
}

// MySQL reports matched rather than changed rows so that an update of an
// unchanged row is not mistaken for a missing one.
func MySQL() Dialect {
	return Dialect{
		Name:        DialectMySQL,
		DriverName:  "mysql",
		Placeholder: sq.Question,
		DSN: func(c Config) (string, error) {
			cfg := mysql.NewConfig()
			cfg.User = c.User
			cfg.Passwd = c.Password
			cfg.Net = "tcp"
			cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
			cfg.DBName = c.DBName
			cfg.ClientFoundRows = true
			cfg.MultiStatements = true
			cfg.ParseTime = true
			return cfg.FormatDSN(), nil
		},
	}
}

// SQLite uses the pure-Go modernc driver.
func SQLite() Dialect {
	return Dialect{
		Name:        DialectSQLite,
		DriverName:  "sqlite",
		Placeholder: sq.Question,
		DSN: func(c Config) (string, error) {
			if c.Path == "" {
				return "", errors.New("sqlite path is required")
			}
			// Migrations run on their own connection and would never reach
			// a private in-memory database.
			if c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory") {
				return "", fmt.Errorf("sqlite path %q must name a file", c.Path)
			}
			return "file:" + c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
		},
	}
}
