package repository

import (
	"errors"
	"fmt"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/revision"
)

// Descriptor tells the repository how one entity type maps onto its table.
// Identity, owner, marker and deleted columns are handled by the repository;
// Fields, Bind and Values cover the payload columns only.
type Descriptor[E domain.Entity] struct {
	Table         string
	IDColumn      string
	OwnerColumn   string
	Revision      revision.Columns
	DeletedColumn string

	// Fields lists the payload columns in scan order.
	Fields []string
	// New returns an empty entity ready to be scanned into.
	New func() E
	// Bind returns scan targets for Fields and an optional hook run after the scan.
	Bind func(E) (targets []any, finish func() error)
	// Values returns the payload column values keyed by column name.
	Values func(E) (map[string]any, error)
}

func (d Descriptor[E]) withDefaults() Descriptor[E] {
	if d.IDColumn == "" {
		d.IDColumn = "id"
	}
	if d.OwnerColumn == "" {
		d.OwnerColumn = "owner_id"
	}
	defaults := revision.DefaultColumns()
	if d.Revision.First == "" {
		d.Revision.First = defaults.First
	}
	if d.Revision.Removal == "" {
		d.Revision.Removal = defaults.Removal
	}
	if d.DeletedColumn == "" {
		d.DeletedColumn = "deleted"
	}
	return d
}

func (d Descriptor[E]) validate() error {
	var errs []error
	if d.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if d.New == nil {
		errs = append(errs, errors.New("New is required"))
	}
	if d.Bind == nil {
		errs = append(errs, errors.New("Bind is required"))
	}
	if d.Values == nil {
		errs = append(errs, errors.New("Values is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid descriptor %q: %w", d.Table, errors.Join(errs...))
	}
	return nil
}
