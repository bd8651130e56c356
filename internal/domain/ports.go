package domain

import "context"

// Row is one result row keyed by column alias.
type Row map[string]any

// Datastore executes SQL against the warehouse. Named parameters use the
// ":substN" placeholder convention; params may be nil.
// Implemented by engine.Store.
type Datastore interface {
	Query(ctx context.Context, query string, params map[string]any) ([]Row, error)
}

// RealmConfigSource loads realm definitions by name.
// Implemented by realm.FileSource and repository.RealmConfigRepo.
type RealmConfigSource interface {
	LoadRealm(ctx context.Context, name string) (*RealmConfig, error)
	ListRealms(ctx context.Context) ([]string, error)
}

// RoleRestrictionSource lists the dimension restrictions a role carries in a realm.
// Implemented by repository.RoleRepo.
type RoleRestrictionSource interface {
	ListRestrictions(ctx context.Context, role, realm string) ([]RoleRestriction, error)
}
