package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/uow"
)

// DeleteOutcome reports which branch a delete took.
type DeleteOutcome int

const (
	PhysicallyRemoved DeleteOutcome = iota
	MarkedDeleted
)

func (o DeleteOutcome) String() string {
	if o == MarkedDeleted {
		return "marked_deleted"
	}
	return "physically_removed"
}

// SoftDeletePolicy decides between flagging and removing a row. Whether the
// entity type can be soft-deleted at all is resolved once, when the policy
// is built; each instance then decides through MarkedDeletable.
type SoftDeletePolicy struct {
	table         string
	idColumn      string
	deletedColumn string
	builder       sq.StatementBuilderType
	capable       bool
}

func newSoftDeletePolicy[E domain.Entity](desc Descriptor[E], builder sq.StatementBuilderType) SoftDeletePolicy {
	_, capable := any(desc.New()).(domain.SoftDeletable)
	return SoftDeletePolicy{
		table:         desc.Table,
		idColumn:      desc.IDColumn,
		deletedColumn: desc.DeletedColumn,
		builder:       builder,
		capable:       capable,
	}
}

// Capable reports whether the entity type carries a deleted flag.
func (p SoftDeletePolicy) Capable() bool {
	return p.capable
}

func (p SoftDeletePolicy) target(e domain.Entity) (domain.SoftDeletable, bool) {
	if !p.capable {
		return nil, false
	}
	soft, ok := e.(domain.SoftDeletable)
	if !ok || !soft.MarkedDeletable() {
		return nil, false
	}
	return soft, true
}

// Apply deletes e through session. Deleting an already flagged entity is a
// no-op.
func (p SoftDeletePolicy) Apply(ctx context.Context, session uow.Session, e domain.Entity) (DeleteOutcome, error) {
	if domain.IsNew(e) {
		return PhysicallyRemoved, &domain.EntityNotFoundError{Table: p.table, ID: e.GetID()}
	}

	soft, ok := p.target(e)
	if !ok {
		return PhysicallyRemoved, p.remove(ctx, session, e)
	}

	if soft.IsDeleted() {
		return MarkedDeleted, nil
	}

	soft.SetDeleted(true)
	if err := p.mark(ctx, session, e); err != nil {
		soft.SetDeleted(false)
		return MarkedDeleted, err
	}
	return MarkedDeleted, nil
}

func (p SoftDeletePolicy) mark(ctx context.Context, session uow.Session, e domain.Entity) error {
	query, args, err := p.builder.Update(p.table).
		Set(p.deletedColumn, true).
		Where(sq.Eq{p.idColumn: e.GetID()}).
		ToSql()
	if err != nil {
		return &domain.PersistenceError{Op: "build soft delete " + p.table, Err: err}
	}
	return p.exec(ctx, session, "soft delete "+p.table, e, query, args)
}

func (p SoftDeletePolicy) remove(ctx context.Context, session uow.Session, e domain.Entity) error {
	query, args, err := p.builder.Delete(p.table).
		Where(sq.Eq{p.idColumn: e.GetID()}).
		ToSql()
	if err != nil {
		return &domain.PersistenceError{Op: "build delete " + p.table, Err: err}
	}
	return p.exec(ctx, session, "delete "+p.table, e, query, args)
}

func (p SoftDeletePolicy) exec(ctx context.Context, session uow.Session, op string, e domain.Entity, query string, args []any) error {
	res, err := session.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}
	if n == 0 {
		return &domain.EntityNotFoundError{Table: p.table, ID: e.GetID()}
	}
	return nil
}
