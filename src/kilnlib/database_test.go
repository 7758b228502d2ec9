package kilnlib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDatabase(t *testing.T, config *KilnConfig) *Database {
	t.Helper()
	db, err := OpenDatabase(config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterAndQuery(t *testing.T) {
	config := testConfig(t)
	db := openTestDatabase(t, config)

	_, ok := db.InstalledVersion("zlib")
	assert.False(t, ok)

	require.NoError(t, db.Register("zlib", "1.3", []string{"/usr/lib/libz.so", "/usr/include/zlib.h", "/usr/lib/libz.so"}))

	version, ok := db.InstalledVersion("zlib")
	assert.True(t, ok)
	assert.Equal(t, "1.3", version)

	// Manifest is sorted and de-duplicated
	assert.Equal(t, []string{"/usr/include/zlib.h", "/usr/lib/libz.so"}, db.InstalledFiles("zlib"))

	// Timestamp file exists
	_, err := os.Stat(filepath.Join(config.DatabaseRoot, "installed", "zlib", "installed_at"))
	assert.NoError(t, err)

	// Registering again replaces the record
	require.NoError(t, db.Register("zlib", "1.4", []string{"/usr/lib/libz.so"}))
	version, _ = db.InstalledVersion("zlib")
	assert.Equal(t, "1.4", version)
	assert.Equal(t, []string{"/usr/lib/libz.so"}, db.InstalledFiles("zlib"))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	config := testConfig(t)
	db := openTestDatabase(t, config)

	require.NoError(t, db.Register("foo", "1", nil))
	require.NoError(t, db.Unregister("foo"))
	require.NoError(t, db.Unregister("foo"))
	assert.False(t, db.IsInstalled("foo"))
}

func TestAllInstalled(t *testing.T) {
	config := testConfig(t)
	db := openTestDatabase(t, config)

	require.NoError(t, db.Register("b", "1", nil))
	require.NoError(t, db.Register("a", "1", nil))

	installed, err := db.AllInstalled()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, installed)
}

func TestMarkManual(t *testing.T) {
	config := testConfig(t)
	db := openTestDatabase(t, config)

	require.NoError(t, db.MarkManual("zsh"))
	require.NoError(t, db.MarkManual("bash"))
	require.NoError(t, db.MarkManual("zsh"))

	manual, err := db.ManualPackages()
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "zsh"}, manual)
}

func TestReverseDepsAndOrphans(t *testing.T) {
	config := testConfig(t)
	db := openTestDatabase(t, config)

	writeRecipe(t, config, "a", "Name: a\nVersion: 1\nSource: x\n")
	writeRecipe(t, config, "b", "Name: b\nVersion: 1\nSource: x\nDepends: a\n")

	require.NoError(t, db.Register("a", "1", nil))
	require.NoError(t, db.Register("b", "1", nil))

	edges, err := db.ReverseDeps()
	require.NoError(t, err)
	assert.Equal(t, []ReverseDep{{Dep: "a", Dependent: "b"}}, edges)

	dependents, err := db.InstalledDependents("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, dependents)

	// a is needed by b, b is an orphan until marked manual
	orphans, err := db.Orphans()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, orphans)

	require.NoError(t, db.MarkManual("b"))
	orphans, err = db.Orphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)

	// Removing b leaves a orphaned
	require.NoError(t, db.Unregister("b"))
	orphans, err = db.Orphans()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, orphans)
}

func TestDatabaseLocked(t *testing.T) {
	config := testConfig(t)

	db, err := OpenDatabase(config)
	require.NoError(t, err)
	defer db.Close()

	_, err = OpenDatabase(config)
	assert.True(t, errors.As(err, &DatabaseLockedErr{}))
}

func TestDatabaseLockReleasedOnClose(t *testing.T) {
	config := testConfig(t)

	db, err := OpenDatabase(config)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := OpenDatabase(config)
	require.NoError(t, err)
	db2.Close()
}
