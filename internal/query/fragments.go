// Package query composes analytical SQL against a realm's pre-aggregated
// fact tables and reduces the returned rows into aggregate and timeseries
// result sets.
package query

import (
	"strings"
)

// Table is one FROM entry.
type Table struct {
	Schema string
	Name   string
	Alias  string
}

// QualifiedName returns schema.name, or name when no schema is set.
func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns a column reference qualified by the table alias.
func (t Table) Column(col string) string {
	if t.Alias == "" {
		return t.QualifiedName() + "." + col
	}
	return t.Alias + "." + col
}

func (t Table) String() string {
	if t.Alias == "" {
		return t.QualifiedName()
	}
	return t.QualifiedName() + " " + t.Alias
}

func (t Table) key() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.QualifiedName()
}

// LeftJoin is a LEFT JOIN with its own ON condition.
type LeftJoin struct {
	Table Table
	On    WhereCondition
}

func (j LeftJoin) String() string {
	return "LEFT JOIN " + j.Table.String() + " ON " + j.On.String()
}

// Field is one SELECT entry.
type Field struct {
	Expr  string
	Alias string
}

func (f Field) String() string {
	if f.Alias == "" || f.Alias == f.Expr {
		return f.Expr
	}
	return f.Expr + " AS " + f.Alias
}

func (f Field) key() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Expr
}

// WhereCondition is one predicate. A condition with an empty Operator is a
// complete expression held in Left.
type WhereCondition struct {
	Left     string
	Operator string
	Right    string
}

// Expression wraps a complete boolean SQL expression as a condition.
func Expression(expr string) WhereCondition {
	return WhereCondition{Left: expr}
}

func (w WhereCondition) String() string {
	if w.Operator == "" {
		return w.Left
	}
	if w.Right == "" {
		return w.Left + " " + w.Operator
	}
	return w.Left + " " + w.Operator + " " + w.Right
}

// conditionKey is the canonical identity of a condition. Operators are
// compared case-insensitively and operands with surrounding space trimmed.
type conditionKey struct {
	left  string
	op    string
	right string
}

func (w WhereCondition) key() conditionKey {
	return conditionKey{
		left:  strings.TrimSpace(w.Left),
		op:    strings.ToUpper(strings.TrimSpace(w.Operator)),
		right: strings.TrimSpace(w.Right),
	}
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is one ORDER BY entry.
type Order struct {
	Field     string
	Direction Direction
}

func (o Order) String() string {
	if o.Direction == "" {
		return o.Field
	}
	return o.Field + " " + string(o.Direction)
}

// Parameter is a caller- or role-supplied filter on one column.
type Parameter struct {
	Dimension string // owning dimension; "" when not dimension-scoped
	Column    string
	Operator  string // "=", "IN", "<", ">=", ...
	Values    []any
}

// EqualParameter builds a Column = value parameter.
func EqualParameter(dimension, column string, value any) Parameter {
	return Parameter{Dimension: dimension, Column: column, Operator: "=", Values: []any{value}}
}

// InParameter builds a Column IN (values...) parameter.
func InParameter(dimension, column string, values []any) Parameter {
	return Parameter{Dimension: dimension, Column: column, Operator: "IN", Values: values}
}

// StringValues returns the parameter values rendered as text.
func (p Parameter) StringValues() []string {
	out := make([]string, 0, len(p.Values))
	for _, v := range p.Values {
		out = append(out, toText(v))
	}
	return out
}
