// Package service drives the revision lifecycle of an owner: opening a
// draft, publishing it as a numbered revision and retiring the live row.
// It uses the revision repository as a primitive and runs every step inside
// one unit of work.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/revstore/internal/db"
	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
	"github.com/rpattn/revstore/internal/revision"
)

var (
	// ErrDraftExists indicates the owner already has a draft.
	ErrDraftExists = errors.New("service: owner already has a draft")
	// ErrNoDraft indicates the owner has no draft to publish or discard.
	ErrNoDraft = errors.New("service: owner has no draft")
	// ErrNoLiveRevision indicates the owner has no live published row.
	ErrNoLiveRevision = errors.New("service: owner has no live revision")
	// ErrPublishConflict indicates another writer changed the owner's revisions concurrently.
	ErrPublishConflict = errors.New("service: concurrent revision change")
)

// UnitRunner runs fn inside a unit of work.
type UnitRunner interface {
	WithinUnit(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher manages the draft and publish cycle of one entity type.
type Publisher[E domain.Entity] struct {
	repo  repository.RevisionRepository[E]
	units UnitRunner
	log   *zap.Logger
}

// NewPublisher creates a publisher over repo.
func NewPublisher[E domain.Entity](repo repository.RevisionRepository[E], units UnitRunner, log *zap.Logger) *Publisher[E] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher[E]{repo: repo, units: units, log: log}
}

type ownerState[E domain.Entity] struct {
	draft    E
	hasDraft bool
	live     E
	hasLive  bool
	highest  int64
}

func (p *Publisher[E]) state(ctx context.Context, owner uuid.UUID) (ownerState[E], error) {
	var st ownerState[E]

	rows, err := p.repo.ListAll(ctx, owner)
	if err != nil {
		return st, err
	}

	latest, err := revision.SelectorFor(domain.Latest())
	if err != nil {
		return st, err
	}

	for _, row := range rows {
		m := *row.Revision()
		switch {
		case m.IsDraft():
			st.draft, st.hasDraft = row, true
		case latest.Matches(m):
			st.live, st.hasLive = row, true
		}
		if m.FirstRevision > st.highest {
			st.highest = m.FirstRevision
		}
		if m.RemovalRevision > st.highest {
			st.highest = m.RemovalRevision
		}
	}
	return st, nil
}

// NextRevision returns the revision number the owner's next publish would get.
func (p *Publisher[E]) NextRevision(ctx context.Context, owner uuid.UUID) (int64, error) {
	st, err := p.state(ctx, owner)
	if err != nil {
		return 0, err
	}
	return st.highest + 1, nil
}

// StartDraft inserts draft as the owner's draft row.
func (p *Publisher[E]) StartDraft(ctx context.Context, draft E) error {
	owner := draft.GetOwner()
	err := p.units.WithinUnit(ctx, func(ctx context.Context) error {
		st, err := p.state(ctx, owner)
		if err != nil {
			return err
		}
		if st.hasDraft {
			return fmt.Errorf("%w: %s", ErrDraftExists, owner)
		}

		*draft.Revision() = domain.NewDraftMarker()
		if err := p.repo.Insert(ctx, draft); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %w", ErrDraftExists, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.log.Debug("draft started",
		zap.String("table", p.repo.Table()),
		zap.Stringer("owner", owner),
		zap.Stringer("id", draft.GetID()),
	)
	return nil
}

// Publish turns the owner's draft into revision rev and retires the row that
// was live until then. rev must exceed every revision the owner has used.
func (p *Publisher[E]) Publish(ctx context.Context, owner uuid.UUID, rev int64) (E, error) {
	var published E
	err := p.units.WithinUnit(ctx, func(ctx context.Context) error {
		st, err := p.state(ctx, owner)
		if err != nil {
			return err
		}
		if !st.hasDraft {
			return fmt.Errorf("%w: %s", ErrNoDraft, owner)
		}
		if rev <= st.highest {
			return &domain.InvalidRevisionError{
				Value:  strconv.FormatInt(rev, 10),
				Reason: "must exceed revision " + strconv.FormatInt(st.highest, 10),
			}
		}

		if st.hasLive {
			if err := p.retire(ctx, st.live, rev); err != nil {
				return err
			}
		}

		marker := st.draft.Revision()
		prev := *marker
		if err := marker.Publish(rev); err != nil {
			return err
		}
		if err := p.repo.Update(ctx, st.draft, prev.FirstRevision, prev.RemovalRevision); err != nil {
			*marker = prev
			return conflict(err)
		}

		published = st.draft
		return nil
	})
	if err != nil {
		var zero E
		return zero, err
	}

	p.log.Debug("revision published",
		zap.String("table", p.repo.Table()),
		zap.Stringer("owner", owner),
		zap.Int64("revision", rev),
	)
	return published, nil
}

// Retire ends the owner's live row at rev without a successor, leaving a gap
// in the revision history.
func (p *Publisher[E]) Retire(ctx context.Context, owner uuid.UUID, rev int64) error {
	return p.units.WithinUnit(ctx, func(ctx context.Context) error {
		st, err := p.state(ctx, owner)
		if err != nil {
			return err
		}
		if !st.hasLive {
			return fmt.Errorf("%w: %s", ErrNoLiveRevision, owner)
		}
		if rev <= st.highest {
			return &domain.InvalidRevisionError{
				Value:  strconv.FormatInt(rev, 10),
				Reason: "must exceed revision " + strconv.FormatInt(st.highest, 10),
			}
		}
		return p.retire(ctx, st.live, rev)
	})
}

// DiscardDraft deletes the owner's draft.
func (p *Publisher[E]) DiscardDraft(ctx context.Context, owner uuid.UUID) (repository.DeleteOutcome, error) {
	var outcome repository.DeleteOutcome
	err := p.units.WithinUnit(ctx, func(ctx context.Context) error {
		st, err := p.state(ctx, owner)
		if err != nil {
			return err
		}
		if !st.hasDraft {
			return fmt.Errorf("%w: %s", ErrNoDraft, owner)
		}
		outcome, err = p.repo.Delete(ctx, st.draft)
		return err
	})
	return outcome, err
}

func (p *Publisher[E]) retire(ctx context.Context, live E, rev int64) error {
	marker := live.Revision()
	prev := *marker
	if err := marker.Retire(rev); err != nil {
		return err
	}
	if err := p.repo.Update(ctx, live, prev.FirstRevision, prev.RemovalRevision); err != nil {
		*marker = prev
		return conflict(err)
	}
	return nil
}

func conflict(err error) error {
	if errors.Is(err, domain.ErrRevisionConflict) || db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrPublishConflict, err)
	}
	return err
}
