package revision

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// OwnerScope restricts a query to the rows of one owner.
type OwnerScope struct {
	Column string
	Owner  uuid.UUID
}

func (o OwnerScope) ToSql() (string, []interface{}, error) {
	return sq.Eq{o.Column: o.Owner}.ToSql()
}

// Matches reports whether the row belongs to the scoped owner.
func (o OwnerScope) Matches(owner uuid.UUID) bool {
	return owner == o.Owner
}

// OwnersScope restricts a query to the rows of any of several owners.
type OwnersScope struct {
	Column string
	Owners []uuid.UUID
}

func (o OwnersScope) ToSql() (string, []interface{}, error) {
	if len(o.Owners) == 0 {
		return "1=0", nil, nil
	}
	return sq.Eq{o.Column: o.Owners}.ToSql()
}

// NotDeleted excludes soft-deleted rows.
type NotDeleted struct {
	Column string
}

func (n NotDeleted) ToSql() (string, []interface{}, error) {
	return sq.Eq{n.Column: false}.ToSql()
}

// RowQuery is a distinct row query built by conjunction of predicates.
type RowQuery struct {
	table      string
	columns    []string
	predicates sq.And
}

// NewRowQuery starts a query over table returning columns.
func NewRowQuery(table string, columns ...string) *RowQuery {
	return &RowQuery{table: table, columns: columns}
}

// Where conjoins predicates onto the query. Nil predicates are skipped.
func (q *RowQuery) Where(predicates ...sq.Sqlizer) *RowQuery {
	for _, p := range predicates {
		if p != nil {
			q.predicates = append(q.predicates, p)
		}
	}
	return q
}

// Select renders the query with the builder's placeholder format.
func (q *RowQuery) Select(builder sq.StatementBuilderType) sq.SelectBuilder {
	sel := builder.Select(q.columns...).Distinct().From(q.table)
	if len(q.predicates) > 0 {
		sel = sel.Where(q.predicates)
	}
	return sel
}
