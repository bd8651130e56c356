package query

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"duck-warehouse/internal/domain"
)

// WideRestrictionThreshold is the number of permitted values above which a
// role restriction on a dimension is considered wide. Callers skip passing
// wide value lists to possible-value lookups and query through the fact
// table instead.
const WideRestrictionThreshold = 500

// Role is a named set of dimension restrictions within one realm. A role
// with no restrictions grants unrestricted access.
type Role struct {
	Name         string
	Restrictions []domain.RoleRestriction
}

// Restrictions maps a dimension name to the union of values the caller may
// see through any of its roles. An empty Restrictions means unrestricted.
type Restrictions map[string][]string

// Wide reports whether the restriction on dimension exceeds
// WideRestrictionThreshold values.
func (r Restrictions) Wide(dimension string) bool {
	return len(r[dimension]) > WideRestrictionThreshold
}

type roleState struct {
	applied      bool
	restrictions Restrictions
}

// SetMultipleRoleParameters restricts the query to what the union of roles
// may see. Restrictions of one role are AND-combined; roles are
// OR-combined. A role that contributes no restriction makes the whole
// union unconditional, so nothing is added and an empty Restrictions is
// returned.
func (q *Query) SetMultipleRoleParameters(roles []Role, user domain.User) (Restrictions, error) {
	type rolePredicate struct {
		conds []string
	}

	union := Restrictions{}
	predicates := make([]rolePredicate, 0, len(roles))

	for _, role := range roles {
		byDim := map[string][]string{}
		var dims []string
		for _, r := range role.Restrictions {
			if r.Realm != "" && r.Realm != q.realm.Name() {
				continue
			}
			if _, ok := byDim[r.Dimension]; !ok {
				dims = append(dims, r.Dimension)
			}
			byDim[r.Dimension] = append(byDim[r.Dimension], r.ResolveValue(user))
		}
		if len(dims) == 0 {
			q.roles = roleState{}
			return Restrictions{}, nil
		}

		var pred rolePredicate
		for _, name := range dims {
			dim, err := q.realm.Dimension(name)
			if err != nil {
				return nil, err
			}
			values := lo.Uniq(byDim[name])
			p := dim.ValueParameter(values)
			op := "IN"
			if len(p.Values) == 1 {
				op = "="
			}
			cond, ok := q.boundCondition(p.Column, op, p.Values)
			if !ok {
				continue
			}
			pred.conds = append(pred.conds, cond.String())
			union[name] = lo.Uniq(append(union[name], values...))
		}
		predicates = append(predicates, pred)
	}

	if len(predicates) == 0 {
		q.roles = roleState{}
		return Restrictions{}, nil
	}

	parts := make([]string, 0, len(predicates))
	for _, p := range predicates {
		parts = append(parts, "("+strings.Join(p.conds, " AND ")+")")
	}
	parts = lo.Uniq(parts)
	q.AddWhereCondition(Expression("(" + strings.Join(parts, " OR ") + ")"))

	for dim := range union {
		sort.Strings(union[dim])
	}
	q.roles = roleState{applied: true, restrictions: union}
	return union, nil
}

// RoleUnion returns the values roles permit per dimension of realmName
// without building a query. It is empty when any role is unrestricted in
// the realm.
func RoleUnion(realmName string, roles []Role, user domain.User) Restrictions {
	union := Restrictions{}
	for _, role := range roles {
		scoped := lo.Filter(role.Restrictions, func(r domain.RoleRestriction, _ int) bool {
			return r.Realm == "" || r.Realm == realmName
		})
		if len(scoped) == 0 {
			return Restrictions{}
		}
		for _, r := range scoped {
			union[r.Dimension] = append(union[r.Dimension], r.ResolveValue(user))
		}
	}
	for dim, values := range union {
		values = lo.Uniq(values)
		sort.Strings(values)
		union[dim] = values
	}
	return union
}

// RoleRestrictions returns the restrictions applied by
// SetMultipleRoleParameters, or nil when none apply.
func (q *Query) RoleRestrictions() Restrictions {
	if !q.roles.applied {
		return nil
	}
	return q.roles.restrictions
}

// IsLimitedByRoleRestrictions reports whether role restrictions narrow the
// result beyond the caller's own filters. It is false when no restriction
// applies, or when some explicitly filtered dimension already selects only
// values its role permits.
func (q *Query) IsLimitedByRoleRestrictions() bool {
	if !q.roles.applied {
		return false
	}
	for dim, chosen := range q.filters {
		permitted, ok := q.roles.restrictions[dim]
		if !ok || len(chosen) == 0 {
			continue
		}
		if lo.Every(permitted, chosen) {
			return false
		}
	}
	return true
}
