package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/revstore/internal/domain"
)

// RevisionRepository defines the persistence operations of a revisioned entity type
type RevisionRepository[E domain.Entity] interface {
	Insert(ctx context.Context, entity E) error
	Update(ctx context.Context, entity E, currentFirstRevision, currentRemovalRevision int64) error
	Delete(ctx context.Context, entity E) (DeleteOutcome, error)
	DeleteAllForOwner(ctx context.Context, owner uuid.UUID) (int, error)

	// Revision queries
	ListForRevision(ctx context.Context, owner uuid.UUID, indicator domain.Indicator) ([]E, error)
	ListLatest(ctx context.Context, owner uuid.UUID) ([]E, error)
	ListAtRevision(ctx context.Context, owner uuid.UUID, revision int64) ([]E, error)
	ListDraft(ctx context.Context, owner uuid.UUID) ([]E, error)
	ListAll(ctx context.Context, owner uuid.UUID) ([]E, error)
	ListForOwners(ctx context.Context, owners []uuid.UUID, indicator domain.Indicator) ([]E, error)

	// Table returns the table the repository manages
	Table() string
}

// Observer is notified of every finished repository operation.
type Observer interface {
	ObserveOperation(table, op string, elapsed time.Duration, err error)
}
