// Package uow owns the session lifecycle that repositories run inside.
// Repositories ask a Provider for the current session and never begin,
// commit or roll back themselves.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrUnitClosed is returned when a stopped or aborted unit is used again.
var ErrUnitClosed = errors.New("uow: unit already closed")

// Session is the statement surface shared by *sql.DB and *sql.Tx.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Provider hands out the session valid for the duration of one call.
type Provider interface {
	CurrentSession(ctx context.Context) Session
}

type unitKey struct{}

// Manager opens units of work over a database handle.
type Manager struct {
	db   *sql.DB
	opts *sql.TxOptions
	log  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTxOptions sets the isolation level and read-only flag of new units.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(m *Manager) { m.opts = opts }
}

// WithLogger sets the manager logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a unit-of-work manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentSession returns the transaction of the unit carried by ctx, or the
// plain handle when no unit is active.
func (m *Manager) CurrentSession(ctx context.Context) Session {
	if u := FromContext(ctx); u != nil {
		if tx := u.current(); tx != nil {
			return tx
		}
	}
	return m.db
}

// Begin starts a unit and returns a context carrying it.
func (m *Manager) Begin(ctx context.Context) (*Unit, context.Context, error) {
	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}
	u := &Unit{manager: m, tx: tx}
	return u, context.WithValue(ctx, unitKey{}, u), nil
}

// WithinUnit executes fn within a unit. The unit is committed when fn
// returns nil and rolled back otherwise. A unit already carried by ctx is
// joined instead of nesting a new one.
func (m *Manager) WithinUnit(ctx context.Context, fn func(ctx context.Context) error) error {
	if u := FromContext(ctx); u != nil && u.current() != nil {
		return fn(ctx)
	}

	u, uctx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if err := u.Abort(); err != nil {
				m.log.Error("failed to rollback transaction", zap.Error(err))
			}
			panic(p)
		}
	}()

	if err := fn(uctx); err != nil {
		if rbErr := u.Abort(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %w", err, rbErr)
		}
		return err
	}

	return u.Stop()
}

// FromContext returns the unit carried by ctx, if any.
func FromContext(ctx context.Context) *Unit {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(unitKey{}).(*Unit)
	return u
}

// Unit is one open transaction. Restart swaps the transaction in place, so
// contexts derived from Begin stay valid across restarts.
type Unit struct {
	manager *Manager
	mu      sync.Mutex
	tx      *sql.Tx
}

func (u *Unit) current() *sql.Tx {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx
}

// Stop commits the unit and closes it.
func (u *Unit) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return ErrUnitClosed
	}
	err := u.tx.Commit()
	u.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Abort rolls the unit back and closes it.
func (u *Unit) Abort() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return ErrUnitClosed
	}
	err := u.tx.Rollback()
	u.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Restart commits the work done so far and begins a fresh transaction.
func (u *Unit) Restart(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == nil {
		return ErrUnitClosed
	}
	if err := u.tx.Commit(); err != nil {
		u.tx = nil
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx, err := u.manager.db.BeginTx(ctx, u.manager.opts)
	if err != nil {
		u.tx = nil
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	u.tx = tx
	u.manager.log.Debug("unit of work restarted")
	return nil
}
