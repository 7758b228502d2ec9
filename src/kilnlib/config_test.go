package kilnlib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig builds a fully populated configuration rooted in a fresh
// temporary directory. Sources are fetched by copying local files and
// nothing is stripped.
func testConfig(t *testing.T) *KilnConfig {
	t.Helper()
	root := t.TempDir()

	colorOff := false
	config := &KilnConfig{
		RecipesDir:    filepath.Join(root, "recipes"),
		SrcCache:      filepath.Join(root, "cache"),
		BuildDir:      filepath.Join(root, "build"),
		StagingDir:    filepath.Join(root, "staging"),
		DatabaseRoot:  filepath.Join(root, "db"),
		LogDir:        filepath.Join(root, "log"),
		FetchCmd:      "cp {url} {output}",
		Makeflags:     "-j1",
		StripCmd:      "true",
		InstallPrefix: filepath.Join(root, "root"),
		Jobs:          1,
		Color:         &colorOff,
	}

	for _, dir := range []string{config.RecipesDir, config.SrcCache, config.BuildDir, config.StagingDir, config.LogDir, config.InstallPrefix} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	return config
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "kiln.conf")
	contents := `recipes_dir: /var/db/kiln/recipes
src_cache: /var/cache/kiln/sources
build_dir: /var/cache/kiln/build
staging_dir: /var/cache/kiln/staging
db_root: /var/db/kiln
log_dir: /var/log/kiln
fetch_cmd: curl -L -o {output} {url}
makeflags: -j4
strip_cmd: strip --strip-unneeded
install_prefix: /
jobs: 4
color: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0644))

	config, err := ReadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/db/kiln/recipes", config.RecipesDir)
	assert.Equal(t, "curl -L -o {output} {url}", config.FetchCmd)
	assert.Equal(t, 4, config.Jobs)
	assert.True(t, config.ColorEnabled())
}

func TestReadConfigMissingKeys(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "kiln.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("recipes_dir: /recipes\njobs: 2\n"), 0644))

	_, err := ReadConfig(configPath)
	assert.True(t, errors.As(err, &ConfigErr{}))
}

func TestReadConfigAbsentFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}
