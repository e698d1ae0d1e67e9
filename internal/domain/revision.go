package domain

import (
	"strconv"
	"strings"
)

const (
	// DraftRevision marks the FirstRevision of the row currently under edit.
	DraftRevision int64 = -1
	// NotRemoved is the RemovalRevision of a row that has not been retired.
	NotRemoved int64 = 0
)

// Marker is the validity window of a stored row. A published row is valid for
// revisions FirstRevision <= n < RemovalRevision, or open-ended while
// RemovalRevision is NotRemoved.
type Marker struct {
	FirstRevision   int64 `json:"first_revision" yaml:"first_revision"`
	RemovalRevision int64 `json:"removal_revision" yaml:"removal_revision"`
}

// NewDraftMarker returns the marker of a freshly created draft row.
func NewDraftMarker() Marker {
	return Marker{FirstRevision: DraftRevision, RemovalRevision: NotRemoved}
}

// IsDraft reports whether the row is the in-progress draft.
func (m Marker) IsDraft() bool {
	return m.FirstRevision == DraftRevision
}

// IsPublished reports whether the row carries a concrete first revision.
func (m Marker) IsPublished() bool {
	return m.FirstRevision >= 0
}

// IsRemoved reports whether the row was retired at some revision.
func (m Marker) IsRemoved() bool {
	return m.RemovalRevision != NotRemoved
}

// IsLive reports whether the row is published and not retired.
func (m Marker) IsLive() bool {
	return m.IsPublished() && !m.IsRemoved()
}

// ValidAt reports whether the row was the valid one at revision n.
func (m Marker) ValidAt(n int64) bool {
	if n < 0 || !m.IsPublished() || m.FirstRevision > n {
		return false
	}
	return !m.IsRemoved() || m.RemovalRevision > n
}

// Publish assigns the first revision of a draft row.
func (m *Marker) Publish(revision int64) error {
	if revision < 0 {
		return &InvalidRevisionError{Value: strconv.FormatInt(revision, 10)}
	}
	if !m.IsDraft() {
		return &InvalidRevisionError{Value: strconv.FormatInt(revision, 10), Reason: "row is not a draft"}
	}
	m.FirstRevision = revision
	return nil
}

// Retire closes the validity window at revision at. The removal revision of a
// published row must be strictly greater than its first revision.
func (m *Marker) Retire(at int64) error {
	if at <= 0 {
		return &InvalidRevisionError{Value: strconv.FormatInt(at, 10)}
	}
	if m.IsPublished() && at <= m.FirstRevision {
		return &InvalidRevisionError{
			Value:  strconv.FormatInt(at, 10),
			Reason: "removal must follow first revision " + strconv.FormatInt(m.FirstRevision, 10),
		}
	}
	m.RemovalRevision = at
	return nil
}

// IndicatorKind enumerates the shapes a revision request can take.
type IndicatorKind int

const (
	IndicatorLatest IndicatorKind = iota
	IndicatorDraft
	IndicatorNumbered
)

// Indicator names which revision of an owner's rows a query wants.
type Indicator struct {
	kind   IndicatorKind
	number int64
}

// Latest selects the current published revision.
func Latest() Indicator {
	return Indicator{kind: IndicatorLatest}
}

// Draft selects the in-progress draft.
func Draft() Indicator {
	return Indicator{kind: IndicatorDraft}
}

// AtRevision selects the row valid at revision n. Negative values are
// rejected when the indicator is turned into a selector.
func AtRevision(n int64) Indicator {
	return Indicator{kind: IndicatorNumbered, number: n}
}

// ParseIndicator accepts "latest", "draft" or a non-negative decimal revision.
func ParseIndicator(raw string) (Indicator, error) {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "latest", "":
		return Latest(), nil
	case "draft":
		return Draft(), nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Indicator{}, &InvalidRevisionError{Value: raw, Reason: "not a revision number"}
	}
	if n < 0 {
		return Indicator{}, &InvalidRevisionError{Value: raw}
	}
	return AtRevision(n), nil
}

// Kind returns the indicator shape.
func (i Indicator) Kind() IndicatorKind {
	return i.kind
}

// Number returns the requested revision for numbered indicators.
func (i Indicator) Number() (int64, bool) {
	return i.number, i.kind == IndicatorNumbered
}

// Validate rejects negative revision numbers.
func (i Indicator) Validate() error {
	if i.kind == IndicatorNumbered && i.number < 0 {
		return &InvalidRevisionError{Value: strconv.FormatInt(i.number, 10)}
	}
	return nil
}

func (i Indicator) String() string {
	switch i.kind {
	case IndicatorDraft:
		return "draft"
	case IndicatorNumbered:
		return strconv.FormatInt(i.number, 10)
	default:
		return "latest"
	}
}
