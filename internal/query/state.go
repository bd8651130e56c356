package query

import (
	"fmt"
	"strings"

	"duck-warehouse/internal/domain"
)

// state is the accumulated clause set of a query. Every add is idempotent
// on the fragment's canonical key; ORDER BY keeps insertion order.
type state struct {
	tables    []Table
	tableKeys map[string]bool

	leftJoins []LeftJoin
	joinKeys  map[string]bool

	fields    []Field
	fieldKeys map[string]bool

	statFields []Field
	statKeys   map[string]bool

	where     []WhereCondition
	whereKeys map[conditionKey]bool

	groups    []string
	groupKeys map[string]bool

	orders []Order
}

func newState() state {
	return state{
		tableKeys: map[string]bool{},
		joinKeys:  map[string]bool{},
		fieldKeys: map[string]bool{},
		statKeys:  map[string]bool{},
		whereKeys: map[conditionKey]bool{},
		groupKeys: map[string]bool{},
	}
}

func (s *state) addTable(t Table) bool {
	k := t.key()
	if s.tableKeys[k] || s.joinKeys[k] {
		return false
	}
	s.tableKeys[k] = true
	s.tables = append(s.tables, t)
	return true
}

func (s *state) addLeftJoin(j LeftJoin) bool {
	k := j.Table.key()
	if s.tableKeys[k] || s.joinKeys[k] {
		return false
	}
	s.joinKeys[k] = true
	s.leftJoins = append(s.leftJoins, j)
	return true
}

func (s *state) addField(f Field) bool {
	k := f.key()
	if s.fieldKeys[k] {
		return false
	}
	s.fieldKeys[k] = true
	s.fields = append(s.fields, f)
	return true
}

func (s *state) addStatField(f Field) bool {
	k := f.key()
	if s.statKeys[k] {
		return false
	}
	s.statKeys[k] = true
	s.statFields = append(s.statFields, f)
	return true
}

func (s *state) addWhere(w WhereCondition) bool {
	k := w.key()
	if s.whereKeys[k] {
		return false
	}
	s.whereKeys[k] = true
	s.where = append(s.where, w)
	return true
}

func (s *state) removeWhere(w WhereCondition) {
	k := w.key()
	if !s.whereKeys[k] {
		return
	}
	delete(s.whereKeys, k)
	for i := range s.where {
		if s.where[i].key() == k {
			s.where = append(s.where[:i], s.where[i+1:]...)
			return
		}
	}
}

func (s *state) addGroup(expr string) bool {
	if s.groupKeys[expr] {
		return false
	}
	s.groupKeys[expr] = true
	s.groups = append(s.groups, expr)
	return true
}

func (s *state) orderIndex(field string) int {
	for i, o := range s.orders {
		if o.Field == field {
			return i
		}
	}
	return -1
}

func (s *state) addOrder(o Order) {
	if s.orderIndex(o.Field) >= 0 {
		return
	}
	s.orders = append(s.orders, o)
}

// prependOrder moves o to the front, replacing any existing order on the same field.
func (s *state) prependOrder(o Order) {
	if i := s.orderIndex(o.Field); i >= 0 {
		s.orders = append(s.orders[:i], s.orders[i+1:]...)
	}
	s.orders = append([]Order{o}, s.orders...)
}

func (s *state) clearOrders() {
	s.orders = nil
}

// renderOptions selects which derived statement render produces.
type renderOptions struct {
	Limit  int
	Offset int
	Having string

	// Distinct renders SELECT DISTINCT over Fields only (no stat fields,
	// no GROUP BY).
	Distinct bool
	// FieldsOnly drops the stat fields from the SELECT list.
	FieldsOnly bool
	// NoOrder drops ORDER BY.
	NoOrder bool

	// Select and Orders replace the accumulated SELECT list and ORDER BY
	// when non-empty.
	Select []Field
	Orders []Order
}

// render serializes s into SQL. It does not modify s.
func render(s *state, opts renderOptions) string {
	var b strings.Builder

	fields := s.fields
	if len(opts.Select) > 0 {
		fields = opts.Select
	}
	selects := make([]string, 0, len(fields)+len(s.statFields))
	for _, f := range fields {
		selects = append(selects, f.String())
	}
	if !opts.FieldsOnly && !opts.Distinct && len(opts.Select) == 0 {
		for _, f := range s.statFields {
			selects = append(selects, f.String())
		}
	}
	if len(selects) == 0 {
		selects = append(selects, "1")
	}

	b.WriteString("SELECT ")
	if opts.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(selects, ", "))

	if len(s.tables) > 0 {
		tables := make([]string, 0, len(s.tables))
		for _, t := range s.tables {
			tables = append(tables, t.String())
		}
		b.WriteString(" FROM ")
		b.WriteString(strings.Join(tables, ", "))
	}
	for _, j := range s.leftJoins {
		b.WriteString(" ")
		b.WriteString(j.String())
	}

	if len(s.where) > 0 {
		conds := make([]string, 0, len(s.where))
		for _, w := range s.where {
			conds = append(conds, w.String())
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if len(s.groups) > 0 && !opts.Distinct {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.groups, ", "))
		if opts.Having != "" {
			b.WriteString(" HAVING ")
			b.WriteString(opts.Having)
		}
	}

	ords := s.orders
	if len(opts.Orders) > 0 {
		ords = opts.Orders
	}
	if len(ords) > 0 && !opts.NoOrder {
		orders := make([]string, 0, len(ords))
		for _, o := range ords {
			orders = append(orders, o.String())
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
		}
	}
	return b.String()
}

func toText(v any) string {
	s, _ := domain.AsString(v)
	return s
}
