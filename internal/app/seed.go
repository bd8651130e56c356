package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"duck-warehouse/internal/demo"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/realm"
)

// SeedReport lists what SeedDemo created.
type SeedReport struct {
	WarehouseSeeded   bool `json:"warehouse_seeded"`
	RealmSaved        bool `json:"realm_saved"`
	RestrictionsAdded int  `json:"restrictions_added"`
}

// demoRestrictions give the "pi" role its own person and the "center" role
// the Frontier cluster.
var demoRestrictions = []domain.RoleRestriction{
	{Role: "pi", Realm: demo.RealmName, Dimension: "person", Value: "${user.person_id}"},
	{Role: "center", Realm: demo.RealmName, Dimension: "resource", Value: "1"},
}

// SeedDemo populates the warehouse with the demo Jobs data and the
// metastore with the Jobs realm and demo role restrictions. Idempotent:
// each part is skipped when already present.
func (a *App) SeedDemo(ctx context.Context) (*SeedReport, error) {
	report := &SeedReport{}

	// --- Warehouse ---
	if _, err := a.Warehouse.Query(ctx, "SELECT COUNT(*) AS n FROM job_records", nil); err != nil {
		if err := demo.Seed(ctx, a.Warehouse.DB()); err != nil {
			return nil, fmt.Errorf("seed warehouse: %w", err)
		}
		report.WarehouseSeeded = true
	}

	// --- Realm definition ---
	names, err := a.Services.Realms.ListRealms(ctx)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(names, demo.RealmName) {
		cfg, err := realm.NewFileSource(demo.Realms()).LoadRealm(ctx, demo.RealmName)
		if err != nil {
			return nil, err
		}
		if err := a.Services.Realms.Save(ctx, *cfg); err != nil {
			return nil, fmt.Errorf("save demo realm: %w", err)
		}
		a.RealmCache.Invalidate(demo.RealmName)
		report.RealmSaved = true
	}

	// --- Role restrictions ---
	for _, rr := range demoRestrictions {
		err := a.Services.Roles.Add(ctx, rr)
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			continue
		case err != nil:
			return nil, fmt.Errorf("add restriction for role %q: %w", rr.Role, err)
		}
		report.RestrictionsAdded++
	}

	a.logger.Info("demo data seeded",
		"warehouse", report.WarehouseSeeded,
		"realm", report.RealmSaved,
		"restrictions", report.RestrictionsAdded,
	)
	return report, nil
}
