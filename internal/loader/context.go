package loader

import (
	"context"

	"github.com/rpattn/revstore/internal/domain"
)

type ctxKey struct {
	table     string
	indicator string
}

// Attach stores the loader on ctx so that every lookup made while serving one
// call shares its batches and cache.
func Attach[E domain.Entity](ctx context.Context, l *RevisionLoader[E]) context.Context {
	return context.WithValue(ctx, ctxKey{table: l.table, indicator: l.indicator.String()}, l)
}

// FromContext retrieves the loader attached for table and indicator
func FromContext[E domain.Entity](ctx context.Context, table string, indicator domain.Indicator) (*RevisionLoader[E], bool) {
	l, ok := ctx.Value(ctxKey{table: table, indicator: indicator.String()}).(*RevisionLoader[E])
	return l, ok
}
