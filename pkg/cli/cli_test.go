package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-warehouse/internal/demo"
)

// cliEnv points the CLI at a fresh SQLite warehouse and metastore.
type cliEnv struct {
	t   *testing.T
	dir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	for key, value := range map[string]string{
		"WAREHOUSE_DRIVER":     "sqlite3",
		"WAREHOUSE_DB_PATH":    filepath.Join(dir, "warehouse.db"),
		"META_DB_PATH":         filepath.Join(dir, "meta.sqlite"),
		"REALM_CONFIG_DIR":     "",
		"AGGREGATE_SCHEMA":     "",
		"DIMENSION_SCHEMA":     "",
		"DEFAULT_RESULT_LIMIT": "10",
		"LOG_LEVEL":            "error",
		"ENV":                  "",
	} {
		t.Setenv(key, value)
	}
	return &cliEnv{t: t, dir: dir}
}

// run executes the CLI with an absent .env file.
func (e *cliEnv) run(args ...string) (code int, stdout, stderr string) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--env-file", filepath.Join(e.dir, "missing.env")}, args...)
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	code, stdout, stderr := e.run(args...)
	require.Equal(e.t, 0, code, "stderr: %s\nstdout: %s", stderr, stdout)
	return stdout
}

func (e *cliEnv) seed() {
	e.t.Helper()
	e.mustRun("seed")
}

var demoRange = []string{"--realm", demo.RealmName, "--start", demo.StartDate, "--end", demo.EndDate}

func queryArgs(cmd string, extra ...string) []string {
	return append(append([]string{cmd}, demoRange...), extra...)
}

type aggregateOutput struct {
	Total      int64 `json:"total"`
	Restricted bool  `json:"restricted_by_role"`
	Data       struct {
		Names    []string  `json:"name"`
		JobCount []float64 `json:"job_count"`
	} `json:"data"`
}

// === Root command ===

func TestRun_Version(t *testing.T) {
	e := newCLIEnv(t)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("version")), &got))
	assert.Equal(t, "dev", got["version"])

	assert.Contains(t, e.mustRun("-o", "table", "version"), "warehouse version dev")
}

func TestRun_InvalidOutputFormat(t *testing.T) {
	e := newCLIEnv(t)

	code, _, stderr := e.run("-o", "yaml", "version")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported output format")
}

func TestRun_ErrorsAsJSON(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	code, stdout, _ := e.run("aggregate", "--realm", "Storage", "--start", demo.StartDate, "--end", demo.EndDate)
	assert.Equal(t, 1, code)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Contains(t, got["error"], "Storage")
}

func TestRun_ErrorsAsText(t *testing.T) {
	e := newCLIEnv(t)

	code, _, stderr := e.run("-o", "table", "aggregate", "--start", demo.StartDate, "--end", demo.EndDate)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `required flag(s) "realm" not set`)
}

func TestRun_InvalidConfig(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv("WAREHOUSE_DRIVER", "oracle")

	code, stdout, _ := e.run("realms", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "WAREHOUSE_DRIVER")
}

// === Queries ===

func TestRun_Aggregate(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var got aggregateOutput
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("aggregate", "--group-by", "person", "--statistic", "job_count")...)), &got))
	assert.Equal(t, int64(len(demo.People)), got.Total)
	assert.False(t, got.Restricted)
	assert.Len(t, got.Data.Names, len(demo.People))

	var sum float64
	for _, v := range got.Data.JobCount {
		sum += v
	}
	assert.InDelta(t, float64(len(demo.Jobs())), sum, 1e-9)
}

func TestRun_AggregatePaged(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	args := []string{"--group-by", "person", "--statistic", "job_count", "--limit", "2"}
	var first, second aggregateOutput
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("aggregate", args...)...)), &first))
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("aggregate", append(args, "--offset", "2")...)...)), &second))

	require.Len(t, second.Data.Names, 2)
	assert.NotContains(t, second.Data.Names, "Other")
	assert.Empty(t, lo.Intersect(first.Data.Names[:2], second.Data.Names))
}

func TestRun_AggregateAsRestrictedUser(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var got aggregateOutput
	out := e.mustRun(queryArgs("aggregate", "--group-by", "person", "--statistic", "job_count",
		"--user", "ghopper", "--user-role", "pi", "--user-attr", "person_id=2")...)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Restricted)
	assert.Equal(t, []string{"Hopper, Grace"}, got.Data.Names)
}

func TestRun_AggregateTable(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out := e.mustRun(append([]string{"-o", "table"}, queryArgs("aggregate", "--group-by", "resource", "--statistic", "job_count",
		"--filter", "resource=1")...)...)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "job_count")
	assert.Contains(t, out, "Frontier Cluster")
	assert.NotContains(t, out, "Babbage")
}

func TestRun_Timeseries(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out := e.mustRun(append([]string{"-o", "table"}, queryArgs("timeseries", "--group-by", "person",
		"--statistic", "job_count", "--period", "year")...)...)
	assert.Contains(t, out, "PERIOD")
	assert.Contains(t, out, "2020-01-01")
	assert.Contains(t, out, "2021-01-01")

	code, _, stderr := e.run(append([]string{"-o", "table"}, queryArgs("timeseries", "--group-by", "person")...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "statistic")
}

func TestRun_Count(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var got map[string]int64
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("count", "--group-by", "resource")...)), &got))
	assert.Positive(t, got["count"])

	code, _, stderr := e.run(append([]string{"-o", "table"}, queryArgs("count", "--offset", "2")...)...)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown flag: --offset")
}

func TestRun_Explain(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out := e.mustRun(append([]string{"-o", "table"}, queryArgs("explain", "--group-by", "person", "--statistic", "job_count", "--period", "month")...)...)
	assert.Contains(t, out, "jobfact_by_month")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("explain", "--timeseries", "--statistic", "job_count", "--period", "year")...)), &got))
	assert.Equal(t, "timeseries", got["mode"])
	assert.NotContains(t, got, "count_query")
}

func TestRun_Raw(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var got struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("raw", "--limit", "5")...)), &got))
	assert.Len(t, got.Records, 5)

	out := e.mustRun(append([]string{"-o", "table"}, queryArgs("raw", "--limit", "2")...)...)
	assert.Contains(t, out, "job_id")
}

func TestRun_Values(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("values", "--realm", demo.RealmName, "--dimension", "person")), &got))
	assert.Len(t, got, len(demo.People))

	out := e.mustRun("-o", "table", "values", "--realm", demo.RealmName, "--dimension", "person", "--hint", "hopper")
	assert.Contains(t, out, "ghopper")
	assert.NotContains(t, out, "Lovelace")
}

// === Administration ===

func TestRun_SeedIsIdempotent(t *testing.T) {
	e := newCLIEnv(t)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("seed")), &first))
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("seed")), &second))
	assert.Equal(t, true, first["warehouse_seeded"])
	assert.Equal(t, false, second["warehouse_seeded"])
	assert.InDelta(t, 0, second["restrictions_added"], 0)
}

func TestRun_Migrate(t *testing.T) {
	e := newCLIEnv(t)

	var got map[string]int64
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("migrate")), &got))
	assert.Positive(t, got["schema_version"])
}

func TestRun_Realms(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var names []string
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("realms", "list")), &names))
	assert.Equal(t, []string{demo.RealmName}, names)

	desc := e.mustRun("-o", "table", "realms", "describe", demo.RealmName)
	assert.Contains(t, desc, "GROUP BY")
	assert.Contains(t, desc, "resource")

	exported := e.mustRun("realms", "export", demo.RealmName)
	assert.Contains(t, exported, "name: Jobs")
	path := filepath.Join(e.dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exported), 0o600))

	e.mustRun("realms", "delete", demo.RealmName)
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("realms", "list")), &names))
	assert.Empty(t, names)

	e.mustRun("realms", "import", path)
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("realms", "list")), &names))
	assert.Equal(t, []string{demo.RealmName}, names)

	code, _, _ := e.run("realms", "delete", "Storage")
	assert.Equal(t, 1, code)
}

func TestRun_RealmsImportRejectsInvalid(t *testing.T) {
	e := newCLIEnv(t)

	path := filepath.Join(e.dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Broken\n"), 0o600))

	code, _, _ := e.run("realms", "import", path)
	assert.Equal(t, 1, code)
}

func TestRun_Roles(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var list struct {
		Restrictions []map[string]string `json:"restrictions"`
		Total        int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(e.mustRun("roles", "list", "--realm", demo.RealmName)), &list))
	assert.Equal(t, int64(2), list.Total)

	code, stdout, _ := e.run("roles", "list", "--realm", demo.RealmName, "--page-token", "bogus!")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "malformed page token")

	e.mustRun("roles", "add", "--role", "billing", "--realm", demo.RealmName, "--dimension", "resource", "--value", "2")
	code, _, _ = e.run("roles", "add", "--role", "billing", "--realm", demo.RealmName, "--dimension", "resource", "--value", "2")
	assert.Equal(t, 1, code)

	require.NoError(t, json.Unmarshal([]byte(e.mustRun("roles", "list", "--realm", demo.RealmName)), &list))
	assert.Equal(t, int64(3), list.Total)

	var got aggregateOutput
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(queryArgs("aggregate", "--group-by", "resource",
		"--statistic", "job_count", "--user-role", "billing")...)), &got))
	assert.Len(t, got.Data.Names, 1)

	e.mustRun("roles", "remove", "--role", "billing", "--realm", demo.RealmName, "--dimension", "resource", "--value", "2")
	code, _, _ = e.run("roles", "remove", "--role", "billing", "--realm", demo.RealmName, "--dimension", "resource", "--value", "2")
	assert.Equal(t, 1, code)
}
