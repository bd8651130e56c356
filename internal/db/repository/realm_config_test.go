package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "duck-warehouse/internal/db"
	"duck-warehouse/internal/demo"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/realm"
)

func setupRealmConfigRepo(t *testing.T) *RealmConfigRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewRealmConfigRepo(writeDB)
}

func demoRealmConfig(t *testing.T) domain.RealmConfig {
	t.Helper()
	cfg, err := realm.NewFileSource(demo.Realms()).LoadRealm(context.Background(), demo.RealmName)
	require.NoError(t, err)
	return *cfg
}

func TestRealmConfigRepo_SaveAndLoad(t *testing.T) {
	repo := setupRealmConfigRepo(t)
	ctx := context.Background()

	cfg := demoRealmConfig(t)
	require.NoError(t, repo.Save(ctx, cfg))

	got, err := repo.LoadRealm(ctx, demo.RealmName)
	require.NoError(t, err)

	assert.Equal(t, "jobfact_by_", got.AggregateTablePrefix)
	assert.Equal(t, "jf", got.AggregateAlias)
	require.NotNil(t, got.RawTable)
	assert.Equal(t, "end_time", got.RawTable.TimeColumn)
	assert.Len(t, got.RawTable.Columns, 6)

	require.Len(t, got.GroupBys, len(cfg.GroupBys))
	for i, g := range got.GroupBys {
		assert.Equal(t, cfg.GroupBys[i].Name, g.Name, "group_bys keep their position")
	}
	person := got.GroupBys[1]
	assert.Equal(t, "long_name", person.NameColumn)
	assert.True(t, person.IsVisible())
	assert.Equal(t, 10, person.Chart.Limit)
	assert.Equal(t, []string{"job_count", "total_cpu_hours", "avg_cpu_hours", "max_cpu_hours", "weight"},
		got.GroupBys[2].Statistics)

	require.Len(t, got.Statistics, len(cfg.Statistics))
	wait := got.Statistics[3]
	assert.Equal(t, "avg_wait_hours", wait.Name)
	require.NotNil(t, wait.Condition)
	assert.Equal(t, ">", wait.Condition.Operator)
	assert.Nil(t, got.Statistics[0].Condition)

	// A stored definition builds the same realm as the file it came from.
	fromFile, err := realm.New(cfg, nil)
	require.NoError(t, err)
	fromStore, err := realm.New(*got, nil)
	require.NoError(t, err)
	for _, s := range fromFile.Statistics() {
		stored, err := fromStore.Statistic(s.Name())
		require.NoError(t, err)
		assert.Equal(t, s.Formula(), stored.Formula())
	}
}

func TestRealmConfigRepo_SaveReplaces(t *testing.T) {
	repo := setupRealmConfigRepo(t)
	ctx := context.Background()

	cfg := demoRealmConfig(t)
	require.NoError(t, repo.Save(ctx, cfg))

	cfg.Statistics = cfg.Statistics[:2]
	cfg.GroupBys = cfg.GroupBys[:2]
	require.NoError(t, repo.Save(ctx, cfg))

	got, err := repo.LoadRealm(ctx, demo.RealmName)
	require.NoError(t, err)
	assert.Len(t, got.Statistics, 2)
	assert.Len(t, got.GroupBys, 2)

	names, err := repo.ListRealms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{demo.RealmName}, names)
}

func TestRealmConfigRepo_Errors(t *testing.T) {
	repo := setupRealmConfigRepo(t)
	ctx := context.Background()

	var validation *domain.ValidationError
	err := repo.Save(ctx, domain.RealmConfig{Name: "Broken"})
	assert.True(t, errors.As(err, &validation))

	var notFound *domain.NotFoundError
	_, err = repo.LoadRealm(ctx, "missing")
	assert.True(t, errors.As(err, &notFound))
	assert.True(t, errors.As(repo.Delete(ctx, "missing"), &notFound))
}

func TestRealmConfigRepo_Delete(t *testing.T) {
	repo := setupRealmConfigRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, demoRealmConfig(t)))
	require.NoError(t, repo.Delete(ctx, demo.RealmName))

	names, err := repo.ListRealms(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM realm_statistics`).Scan(&n))
	assert.Zero(t, n, "statistics are removed with their realm")
}
