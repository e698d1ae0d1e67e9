// Package revision turns revision indicators and owner scopes into
// predicates. Every predicate is usable both as a matcher over in-memory
// markers and as a closed SQL fragment.
package revision

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/rpattn/revstore/internal/domain"
)

// Columns names the marker columns of a table.
type Columns struct {
	First   string
	Removal string
}

// DefaultColumns are the marker column names used by the shipped migrations.
func DefaultColumns() Columns {
	return Columns{First: "first_revision", Removal: "removal_revision"}
}

// Selector matches the rows that answer one revision indicator.
type Selector struct {
	indicator domain.Indicator
}

// SelectorFor builds the selector for an indicator. Negative revision numbers
// fail with domain.ErrInvalidRevision.
func SelectorFor(indicator domain.Indicator) (Selector, error) {
	if err := indicator.Validate(); err != nil {
		return Selector{}, err
	}
	return Selector{indicator: indicator}, nil
}

// Indicator returns the indicator the selector was built from.
func (s Selector) Indicator() domain.Indicator {
	return s.indicator
}

// Matches reports whether a row with marker m answers the indicator.
func (s Selector) Matches(m domain.Marker) bool {
	switch s.indicator.Kind() {
	case domain.IndicatorDraft:
		// The draft selector also yields the live row so that editing can
		// start from it when no draft exists yet.
		return m.FirstRevision == domain.DraftRevision || m.RemovalRevision == domain.NotRemoved
	case domain.IndicatorNumbered:
		n, _ := s.indicator.Number()
		return m.FirstRevision >= 0 && m.FirstRevision <= n &&
			(m.RemovalRevision == domain.NotRemoved || m.RemovalRevision > n)
	default:
		return m.FirstRevision >= 0 && m.RemovalRevision == domain.NotRemoved
	}
}

// Predicate renders the selector over the given columns.
func (s Selector) Predicate(cols Columns) sq.Sqlizer {
	switch s.indicator.Kind() {
	case domain.IndicatorDraft:
		return sq.Or{
			sq.Eq{cols.First: domain.DraftRevision},
			sq.Eq{cols.Removal: domain.NotRemoved},
		}
	case domain.IndicatorNumbered:
		n, _ := s.indicator.Number()
		return sq.And{
			sq.GtOrEq{cols.First: 0},
			sq.LtOrEq{cols.First: n},
			sq.Or{
				sq.Eq{cols.Removal: domain.NotRemoved},
				sq.Gt{cols.Removal: n},
			},
		}
	default:
		return sq.And{
			sq.GtOrEq{cols.First: 0},
			sq.Eq{cols.Removal: domain.NotRemoved},
		}
	}
}
