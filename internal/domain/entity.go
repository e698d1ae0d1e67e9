package domain

import (
	"github.com/google/uuid"
)

// Entity is a stored revision of one owner's logical entity.
type Entity interface {
	GetID() uuid.UUID
	SetID(id uuid.UUID)
	GetOwner() uuid.UUID
	SetOwner(owner uuid.UUID)
	Revision() *Marker
}

// SoftDeletable is implemented by entities whose rows are flagged rather
// than removed. MarkedDeletable lets an instance opt out and fall back to a
// physical delete.
type SoftDeletable interface {
	MarkedDeletable() bool
	IsDeleted() bool
	SetDeleted(deleted bool)
}

// IsNew reports whether the entity has never been inserted.
func IsNew(e Entity) bool {
	return e.GetID() == uuid.Nil
}

// Record is the embeddable identity, owner and marker part of an entity.
type Record struct {
	ID     uuid.UUID `json:"id" yaml:"id"`
	Owner  uuid.UUID `json:"owner" yaml:"owner"`
	Marker `yaml:",inline"`
}

// NewDraftRecord returns an unsaved draft record for owner.
func NewDraftRecord(owner uuid.UUID) Record {
	return Record{Owner: owner, Marker: NewDraftMarker()}
}

func (r *Record) GetID() uuid.UUID         { return r.ID }
func (r *Record) SetID(id uuid.UUID)       { r.ID = id }
func (r *Record) GetOwner() uuid.UUID      { return r.Owner }
func (r *Record) SetOwner(owner uuid.UUID) { r.Owner = owner }
func (r *Record) Revision() *Marker        { return &r.Marker }

// SoftDelete is the embeddable deleted flag.
type SoftDelete struct {
	Deleted bool `json:"deleted" yaml:"deleted"`
}

func (s *SoftDelete) MarkedDeletable() bool   { return true }
func (s *SoftDelete) IsDeleted() bool         { return s.Deleted }
func (s *SoftDelete) SetDeleted(deleted bool) { s.Deleted = deleted }
