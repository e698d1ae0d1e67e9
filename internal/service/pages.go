package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
)

// PagePublisher publishes the content and layout drafts of a page under one
// shared revision number.
type PagePublisher struct {
	Contents *Publisher[*domain.PageContent]
	Layouts  *Publisher[*domain.PageLayout]
	units    UnitRunner
	log      *zap.Logger
}

// NewPagePublisher creates publishers for both page repositories
func NewPagePublisher(repos *repository.PageRepositories, units UnitRunner, log *zap.Logger) *PagePublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &PagePublisher{
		Contents: NewPublisher(repos.Contents, units, log),
		Layouts:  NewPublisher(repos.Layouts, units, log),
		units:    units,
		log:      log,
	}
}

// NextRevision returns the next revision free for both contents and layouts.
func (p *PagePublisher) NextRevision(ctx context.Context, page uuid.UUID) (int64, error) {
	contents, err := p.Contents.NextRevision(ctx, page)
	if err != nil {
		return 0, err
	}
	layouts, err := p.Layouts.NextRevision(ctx, page)
	if err != nil {
		return 0, err
	}
	return max(contents, layouts), nil
}

// Publish publishes whichever drafts the page has as rev, or as the next free
// revision when rev is zero. It fails with ErrNoDraft when neither exists.
func (p *PagePublisher) Publish(ctx context.Context, page uuid.UUID, rev int64) (int64, error) {
	err := p.units.WithinUnit(ctx, func(ctx context.Context) error {
		if rev == 0 {
			next, err := p.NextRevision(ctx, page)
			if err != nil {
				return err
			}
			rev = next
		}

		published := 0
		if _, err := p.Contents.Publish(ctx, page, rev); err == nil {
			published++
		} else if !errors.Is(err, ErrNoDraft) {
			return fmt.Errorf("publish page content: %w", err)
		}

		if _, err := p.Layouts.Publish(ctx, page, rev); err == nil {
			published++
		} else if !errors.Is(err, ErrNoDraft) {
			return fmt.Errorf("publish page layout: %w", err)
		}

		if published == 0 {
			return fmt.Errorf("%w: %s", ErrNoDraft, page)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.log.Info("page published", zap.Stringer("page", page), zap.Int64("revision", rev))
	return rev, nil
}
