package domain

import (
	"context"
	"strings"
)

type userKey struct{}

// User is the caller a query is executed on behalf of.
type User struct {
	Username   string
	Roles      []string
	Attributes map[string]string // e.g. "organization_id" -> "3"
}

// Attribute returns the named attribute, or "" when unset.
func (u User) Attribute(name string) string {
	if u.Attributes == nil {
		return ""
	}
	return u.Attributes[name]
}

// RoleRestriction limits a role to one dimension value in a realm.
// Value may reference a user attribute as "${user.<attribute>}".
type RoleRestriction struct {
	Role      string
	Realm     string
	Dimension string
	Value     string
}

// ResolveValue expands a "${user.<attr>}" reference against u. Literal values
// are returned unchanged; an unset attribute resolves to "".
func (r RoleRestriction) ResolveValue(u User) string {
	v := strings.TrimSpace(r.Value)
	if strings.HasPrefix(v, "${user.") && strings.HasSuffix(v, "}") {
		return u.Attribute(strings.TrimSuffix(strings.TrimPrefix(v, "${user."), "}"))
	}
	return v
}

// WithUser stores a User in the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext extracts the User from the context.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}
