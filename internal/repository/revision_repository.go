package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/revstore/internal/db"
	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/revision"
	"github.com/rpattn/revstore/internal/uow"
)

// Option configures a revision repository.
type Option func(*options)

type options struct {
	log        *zap.Logger
	observer   Observer
	optimistic bool
}

// WithLogger sets the repository logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithObserver reports every operation to observer.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithOptimisticRevisionCheck makes Update match on the markers the caller
// last read, failing with domain.ErrRevisionConflict when they moved.
func WithOptimisticRevisionCheck() Option {
	return func(o *options) { o.optimistic = true }
}

// revisionRepository implements RevisionRepository for one entity type
type revisionRepository[E domain.Entity] struct {
	sessions uow.Provider
	builder  sq.StatementBuilderType
	desc     Descriptor[E]
	policy   SoftDeletePolicy
	opts     options
}

// NewRevisionRepository creates a repository for the entity type described by desc
func NewRevisionRepository[E domain.Entity](sessions uow.Provider, dialect db.Dialect, desc Descriptor[E], opts ...Option) (RevisionRepository[E], error) {
	desc = desc.withDefaults()
	if err := desc.validate(); err != nil {
		return nil, err
	}

	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	builder := dialect.Builder()
	return &revisionRepository[E]{
		sessions: sessions,
		builder:  builder,
		desc:     desc,
		policy:   newSoftDeletePolicy(desc, builder),
		opts:     o,
	}, nil
}

func (r *revisionRepository[E]) Table() string {
	return r.desc.Table
}

// Insert persists a new row, assigning an identity to new entities
func (r *revisionRepository[E]) Insert(ctx context.Context, entity E) (err error) {
	defer r.observe("insert", time.Now(), &err)

	if domain.IsNew(entity) {
		entity.SetID(uuid.New())
		defer func() {
			if err != nil {
				entity.SetID(uuid.Nil)
			}
		}()
	}

	values, err := r.rowValues(entity)
	if err != nil {
		return err
	}
	values[r.desc.IDColumn] = entity.GetID()

	query, args, err := r.builder.Insert(r.desc.Table).SetMap(values).ToSql()
	if err != nil {
		return &domain.PersistenceError{Op: "build insert " + r.desc.Table, Err: err}
	}

	if _, err := r.sessions.CurrentSession(ctx).ExecContext(ctx, query, args...); err != nil {
		return &domain.PersistenceError{Op: "insert " + r.desc.Table, Err: err}
	}

	r.opts.log.Debug("inserted revision row",
		zap.String("table", r.desc.Table),
		zap.Stringer("id", entity.GetID()),
		zap.Stringer("owner", entity.GetOwner()),
		zap.Int64("first_revision", entity.Revision().FirstRevision),
	)
	return nil
}

// Update persists in-place changes to an existing row
func (r *revisionRepository[E]) Update(ctx context.Context, entity E, currentFirstRevision, currentRemovalRevision int64) (err error) {
	defer r.observe("update", time.Now(), &err)

	if domain.IsNew(entity) {
		return &domain.EntityNotFoundError{Table: r.desc.Table, ID: entity.GetID()}
	}

	values, err := r.rowValues(entity)
	if err != nil {
		return err
	}

	upd := r.builder.Update(r.desc.Table).
		SetMap(values).
		Where(sq.Eq{r.desc.IDColumn: entity.GetID()})
	if r.opts.optimistic {
		upd = upd.Where(sq.Eq{
			r.desc.Revision.First:   currentFirstRevision,
			r.desc.Revision.Removal: currentRemovalRevision,
		})
	}

	query, args, err := upd.ToSql()
	if err != nil {
		return &domain.PersistenceError{Op: "build update " + r.desc.Table, Err: err}
	}

	session := r.sessions.CurrentSession(ctx)
	res, err := session.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.PersistenceError{Op: "update " + r.desc.Table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "update " + r.desc.Table, Err: err}
	}
	if n > 0 {
		return nil
	}

	if r.opts.optimistic {
		exists, err := r.exists(ctx, session, entity.GetID())
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s %s expected revisions [%d, %d)",
				domain.ErrRevisionConflict, r.desc.Table, entity.GetID(), currentFirstRevision, currentRemovalRevision)
		}
	}
	return &domain.EntityNotFoundError{Table: r.desc.Table, ID: entity.GetID()}
}

// Delete removes or flags the row according to the soft-delete policy
func (r *revisionRepository[E]) Delete(ctx context.Context, entity E) (outcome DeleteOutcome, err error) {
	defer r.observe("delete", time.Now(), &err)

	outcome, err = r.policy.Apply(ctx, r.sessions.CurrentSession(ctx), entity)
	if err != nil {
		return outcome, err
	}

	r.opts.log.Debug("deleted revision row",
		zap.String("table", r.desc.Table),
		zap.Stringer("id", entity.GetID()),
		zap.Stringer("outcome", outcome),
	)
	return outcome, nil
}

// DeleteAllForOwner deletes every revision of owner one row at a time, so
// that each row gets its own soft or hard treatment
func (r *revisionRepository[E]) DeleteAllForOwner(ctx context.Context, owner uuid.UUID) (deleted int, err error) {
	defer r.observe("delete_all", time.Now(), &err)

	rows, err := r.ListAll(ctx, owner)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if _, err := r.Delete(ctx, row); err != nil {
			return deleted, err
		}
		deleted++
	}

	r.opts.log.Debug("deleted owner revisions",
		zap.String("table", r.desc.Table),
		zap.Stringer("owner", owner),
		zap.Int("rows", deleted),
	)
	return deleted, nil
}

// ListForRevision returns the owner's rows answering the indicator
func (r *revisionRepository[E]) ListForRevision(ctx context.Context, owner uuid.UUID, indicator domain.Indicator) (result []E, err error) {
	defer r.observe("list", time.Now(), &err)

	selector, err := revision.SelectorFor(indicator)
	if err != nil {
		return nil, err
	}

	scope := revision.OwnerScope{Column: r.desc.OwnerColumn, Owner: owner}
	return r.query(ctx, scope, selector.Predicate(r.desc.Revision))
}

// ListLatest returns the owner's current published row
func (r *revisionRepository[E]) ListLatest(ctx context.Context, owner uuid.UUID) ([]E, error) {
	return r.ListForRevision(ctx, owner, domain.Latest())
}

// ListAtRevision returns the owner's row valid at the given revision
func (r *revisionRepository[E]) ListAtRevision(ctx context.Context, owner uuid.UUID, rev int64) ([]E, error) {
	return r.ListForRevision(ctx, owner, domain.AtRevision(rev))
}

// ListDraft returns the owner's draft, falling back to the live row
func (r *revisionRepository[E]) ListDraft(ctx context.Context, owner uuid.UUID) ([]E, error) {
	return r.ListForRevision(ctx, owner, domain.Draft())
}

// ListAll returns every stored revision of the owner
func (r *revisionRepository[E]) ListAll(ctx context.Context, owner uuid.UUID) (result []E, err error) {
	defer r.observe("list_all", time.Now(), &err)

	scope := revision.OwnerScope{Column: r.desc.OwnerColumn, Owner: owner}
	return r.query(ctx, scope, nil)
}

// ListForOwners answers one indicator for several owners in a single query
func (r *revisionRepository[E]) ListForOwners(ctx context.Context, owners []uuid.UUID, indicator domain.Indicator) (result []E, err error) {
	defer r.observe("list_owners", time.Now(), &err)

	selector, err := revision.SelectorFor(indicator)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return []E{}, nil
	}

	scope := revision.OwnersScope{Column: r.desc.OwnerColumn, Owners: owners}
	return r.query(ctx, scope, selector.Predicate(r.desc.Revision))
}

func (r *revisionRepository[E]) query(ctx context.Context, scope, predicate sq.Sqlizer) ([]E, error) {
	q := revision.NewRowQuery(r.desc.Table, r.columns()...).Where(scope, predicate)
	if r.policy.Capable() {
		q.Where(revision.NotDeleted{Column: r.desc.DeletedColumn})
	}

	query, args, err := q.Select(r.builder).ToSql()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "build query " + r.desc.Table, Err: err}
	}

	rows, err := r.sessions.CurrentSession(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query " + r.desc.Table, Err: err}
	}
	defer rows.Close()

	result := make([]E, 0)
	for rows.Next() {
		entity, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "iterate " + r.desc.Table, Err: err}
	}

	return result, nil
}

func (r *revisionRepository[E]) columns() []string {
	cols := []string{
		r.desc.IDColumn,
		r.desc.OwnerColumn,
		r.desc.Revision.First,
		r.desc.Revision.Removal,
	}
	if r.policy.Capable() {
		cols = append(cols, r.desc.DeletedColumn)
	}
	return append(cols, r.desc.Fields...)
}

func (r *revisionRepository[E]) scan(rows *sql.Rows) (E, error) {
	entity := r.desc.New()

	var (
		id, owner uuid.UUID
		marker    domain.Marker
		deleted   bool
	)
	dest := []any{&id, &owner, &marker.FirstRevision, &marker.RemovalRevision}
	if r.policy.Capable() {
		dest = append(dest, &deleted)
	}
	targets, finish := r.desc.Bind(entity)
	dest = append(dest, targets...)

	if err := rows.Scan(dest...); err != nil {
		var zero E
		return zero, &domain.PersistenceError{Op: "scan " + r.desc.Table, Err: err}
	}

	entity.SetID(id)
	entity.SetOwner(owner)
	*entity.Revision() = marker
	if soft, ok := any(entity).(domain.SoftDeletable); ok && r.policy.Capable() {
		soft.SetDeleted(deleted)
	}

	if finish != nil {
		if err := finish(); err != nil {
			var zero E
			return zero, err
		}
	}
	return entity, nil
}

func (r *revisionRepository[E]) rowValues(entity E) (map[string]any, error) {
	values, err := r.desc.Values(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s row: %w", r.desc.Table, err)
	}
	if values == nil {
		values = make(map[string]any)
	}

	marker := entity.Revision()
	values[r.desc.OwnerColumn] = entity.GetOwner()
	values[r.desc.Revision.First] = marker.FirstRevision
	values[r.desc.Revision.Removal] = marker.RemovalRevision
	if soft, ok := any(entity).(domain.SoftDeletable); ok && r.policy.Capable() {
		values[r.desc.DeletedColumn] = soft.IsDeleted()
	}
	return values, nil
}

func (r *revisionRepository[E]) exists(ctx context.Context, session uow.Session, id uuid.UUID) (bool, error) {
	query, args, err := r.builder.Select("1").
		From(r.desc.Table).
		Where(sq.Eq{r.desc.IDColumn: id}).
		ToSql()
	if err != nil {
		return false, &domain.PersistenceError{Op: "build exists " + r.desc.Table, Err: err}
	}

	var one int
	err = session.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &domain.PersistenceError{Op: "query " + r.desc.Table, Err: err}
	}
	return true, nil
}

func (r *revisionRepository[E]) observe(op string, start time.Time, err *error) {
	if r.opts.observer == nil {
		return
	}
	r.opts.observer.ObserveOperation(r.desc.Table, op, time.Since(start), *err)
}
