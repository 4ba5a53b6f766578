// Package database builds parameterized list queries for the data layer's
// filtered listing endpoints. Identifiers are sanitized with pgx.Identifier;
// values always travel as query parameters.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the comparison operator for a filter condition.
type ConditionType string

const (
	Equal    ConditionType = "="
	NotEqual ConditionType = "!="
	Less     ConditionType = "<"
	Greater  ConditionType = ">"
	In       ConditionType = "IN"
	Raw      ConditionType = "RAW"
)

// Condition is one WHERE-clause filter. Conditions combine with AND.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
	raw   string
}

// WhereCond builds a standard field/operator/value condition.
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond builds a raw SQL fragment condition. Placeholders in the
// fragment are numbered $1..$n against params and renumbered when the query
// is assembled. The fragment itself is not sanitized; never interpolate
// caller input into it.
func WhereRawCond(fragment string, params ...any) Condition {
	var value any
	switch len(params) {
	case 0:
		value = nil
	case 1:
		value = params[0]
	default:
		value = params
	}
	return Condition{Type: Raw, raw: fragment, Value: value}
}

const unsetPage = -1

// ListQueryOptions describes a filtered, ordered, paginated SELECT.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	Limit      int
	Offset     int
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions builds options for a list query against table.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  unsetPage,
		Offset: unsetPage,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select. An empty list selects *.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition appends one filter condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy sets the ordering column and direction (ASC or DESC).
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets the LIMIT. Zero is a valid explicit limit.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the OFFSET. Zero is a valid explicit offset.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// BuildListQuery assembles the SQL text and ordered parameter list.
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString("SELECT ")
	query.WriteString(selectColumns(options.Columns))
	query.WriteString(" FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	where, args, next := whereClause(options.Conditions)
	if where != "" {
		query.WriteString(" ")
		query.WriteString(where)
	}

	if options.OrderBy != "" {
		query.WriteString(" ORDER BY ")
		query.WriteString(sanitizeIdentifier(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			query.WriteString(" ")
			query.WriteString(dir)
		}
	}
	if options.Limit != unsetPage {
		fmt.Fprintf(&query, " LIMIT $%d", next)
		args = append(args, options.Limit)
		next++
	}
	if options.Offset != unsetPage {
		fmt.Fprintf(&query, " OFFSET $%d", next)
		args = append(args, options.Offset)
	}

	return query.String(), args
}

func selectColumns(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	sanitized := make([]string, len(cols))
	for i, col := range cols {
		sanitized[i] = sanitizeIdentifier(col)
	}
	return strings.Join(sanitized, ", ")
}

func whereClause(conditions []Condition) (string, []any, int) {
	clauses := make([]string, 0, len(conditions))
	args := make([]any, 0, len(conditions))
	next := 1

	for _, cond := range conditions {
		var clause string
		var condArgs []any
		switch cond.Type {
		case Raw:
			clause, condArgs, next = rawCondition(cond, next)
		case In:
			clause, condArgs, next = inCondition(cond, next)
		case Equal, NotEqual, Less, Greater:
			if cond.Field == "" {
				continue
			}
			clause = fmt.Sprintf("%s %s $%d", sanitizeIdentifier(cond.Field), cond.Type, next)
			condArgs = []any{cond.Value}
			next++
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		args = append(args, condArgs...)
	}

	if len(clauses) == 0 {
		return "", args, next
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, next
}

func inCondition(cond Condition, next int) (string, []any, int) {
	if cond.Field == "" {
		return "", nil, next
	}
	rv := reflect.ValueOf(cond.Value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, next
	}

	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", next)
		args[i] = rv.Index(i).Interface()
		next++
	}
	clause := fmt.Sprintf("%s IN (%s)", sanitizeIdentifier(cond.Field), strings.Join(placeholders, ", "))
	return clause, args, next
}

func rawCondition(cond Condition, next int) (string, []any, int) {
	if cond.raw == "" {
		return "", nil, next
	}
	if cond.Value == nil {
		return cond.raw, nil, next
	}

	params, ok := cond.Value.([]any)
	if !ok {
		params = []any{cond.Value}
	}

	// Renumber $1..$n in the fragment to follow the placeholders already
	// emitted. Highest index first so a renumbered placeholder is never
	// matched again by a lower one.
	clause := cond.raw
	for i := len(params) - 1; i >= 0; i-- {
		old := fmt.Sprintf("$%d", i+1)
		clause = strings.Replace(clause, old, fmt.Sprintf("$%d", next+i), 1)
	}
	return clause, params, next + len(params)
}

func sanitizeIdentifier(ident string) string {
	parts := strings.Split(ident, ".")
	return pgx.Identifier(parts).Sanitize()
}
