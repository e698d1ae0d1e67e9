package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
)

// Option configures a revision loader.
type Option func(*options)

type options struct {
	wait     time.Duration
	capacity int
}

// WithWait sets how long the loader collects keys before running a batch.
func WithWait(d time.Duration) Option {
	return func(o *options) { o.wait = d }
}

// WithBatchCapacity caps the number of owners per batch query.
func WithBatchCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// RevisionLoader batches per-owner lookups for one revision indicator into a
// single ListForOwners query.
type RevisionLoader[E domain.Entity] struct {
	Loader    *dataloader.Loader
	table     string
	indicator domain.Indicator
}

// NewRevisionLoader creates a loader answering indicator for every owner it is asked about
func NewRevisionLoader[E domain.Entity](repo repository.RevisionRepository[E], indicator domain.Indicator, opts ...Option) (*RevisionLoader[E], error) {
	if err := indicator.Validate(); err != nil {
		return nil, err
	}

	o := options{wait: 5 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		owners := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			owner, err := uuid.Parse(k.String())
			if err != nil {
				for j := range results {
					results[j] = &dataloader.Result{Error: fmt.Errorf("invalid owner key %q: %w", k.String(), err)}
				}
				return results
			}
			owners[i] = owner
		}

		rows, err := repo.ListForOwners(ctx, owners, indicator)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byOwner := make(map[uuid.UUID][]E, len(owners))
		for _, row := range rows {
			byOwner[row.GetOwner()] = append(byOwner[row.GetOwner()], row)
		}

		// Results follow key order; owners without rows get an empty slice
		for i, owner := range owners {
			found := byOwner[owner]
			if found == nil {
				found = []E{}
			}
			results[i] = &dataloader.Result{Data: found}
		}
		return results
	}

	loaderOpts := []dataloader.Option{dataloader.WithWait(o.wait)}
	if o.capacity > 0 {
		loaderOpts = append(loaderOpts, dataloader.WithBatchCapacity(o.capacity))
	}

	return &RevisionLoader[E]{
		Loader:    dataloader.NewBatchedLoader(batchFn, loaderOpts...),
		table:     repo.Table(),
		indicator: indicator,
	}, nil
}

// Table returns the table the loader reads.
func (l *RevisionLoader[E]) Table() string {
	return l.table
}

// Indicator returns the revision indicator the loader answers.
func (l *RevisionLoader[E]) Indicator() domain.Indicator {
	return l.indicator
}

// Load returns the owner's rows, batched with concurrent calls.
func (l *RevisionLoader[E]) Load(ctx context.Context, owner uuid.UUID) ([]E, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(owner.String()))()
	if err != nil {
		return nil, err
	}
	rows, ok := data.([]E)
	if !ok {
		return nil, fmt.Errorf("unexpected loader result %T", data)
	}
	return rows, nil
}

// LoadMany returns rows for each owner in the order given.
func (l *RevisionLoader[E]) LoadMany(ctx context.Context, owners []uuid.UUID) ([][]E, error) {
	keys := make(dataloader.Keys, len(owners))
	for i, owner := range owners {
		keys[i] = dataloader.StringKey(owner.String())
	}

	data, errs := l.Loader.LoadMany(ctx, keys)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([][]E, len(data))
	for i, d := range data {
		rows, ok := d.([]E)
		if !ok {
			return nil, fmt.Errorf("unexpected loader result %T", d)
		}
		out[i] = rows
	}
	return out, nil
}

// Clear drops the cached rows of owner.
func (l *RevisionLoader[E]) Clear(ctx context.Context, owner uuid.UUID) {
	l.Loader.Clear(ctx, dataloader.StringKey(owner.String()))
}
