package db

import (
	"bytes"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	v, err = LatestVersion(fstest.MapFS{
		"000003_a.up.sql":   {Data: []byte("SELECT 1;")},
		"000003_a.down.sql": {Data: []byte("SELECT 1;")},
		"000010_b.up.sql":   {Data: []byte("SELECT 1;")},
		"notes.up.sql":      {Data: []byte("SELECT 1;")},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(10), v)

	_, err = LatestVersion(fstest.MapFS{})
	assert.Error(t, err)
}

func TestMigratorDownAndUp(t *testing.T) {
	mg, err := newTestDB(t).Migrator(MigrationsFS())
	require.NoError(t, err)

	st, err := mg.Status()
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{CurrentVersion: 2, LatestVersion: 2}, st)

	require.NoError(t, mg.Down())
	st, err = mg.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), st.CurrentVersion)
	assert.Equal(t, uint(1), st.Pending())

	var n int
	require.NoError(t, mg.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'episodes'`).Scan(&n))
	assert.Zero(t, n, "down drops the episode tables")

	require.NoError(t, mg.Up())
	require.NoError(t, mg.Up(), "nothing pending is not an error")
	v, dirty, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
}

func TestMigratorTo(t *testing.T) {
	mg, err := newTestDB(t).Migrator(MigrationsFS())
	require.NoError(t, err)

	require.NoError(t, mg.To(1))
	v, _, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestMigratorFreshDatabase(t *testing.T) {
	database, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer database.Close()
	mg, err := database.Migrator(MigrationsFS())
	require.NoError(t, err)

	st, err := mg.Status()
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{CurrentVersion: 0, LatestVersion: 2}, st)
	assert.Equal(t, uint(2), st.Pending())

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'settings'`).Scan(&n))
	assert.Zero(t, n, "status must not apply anything")
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand(&out, args, path))
		return out.String()
	}

	out := run("status")
	assert.Contains(t, out, "Current version:   0")
	assert.Contains(t, out, "2 migration(s) pending")

	assert.Contains(t, run("up"), "Database is up to date.")
	assert.Contains(t, run("down"), "Current version:   1")
	assert.Contains(t, run("version", "2"), "Current version:   2")
	assert.Contains(t, run("force", "2"), "Dirty:             false")
	assert.Contains(t, run("help"), "force <N>")
}

func TestRunMigrateCommandErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	assert.Error(t, RunMigrateCommand(&out, nil, path))
	assert.Contains(t, out.String(), "Usage: piano")

	out.Reset()
	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	assert.Contains(t, out.String(), "Unknown migrate action: sideways")

	assert.Error(t, RunMigrateCommand(&out, []string{"version"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"force", "x"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"version", "-1"}, path))
}
