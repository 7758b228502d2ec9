package kilnlib

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCacheHit(t *testing.T) {
	config := testConfig(t)
	// A fetch command that always fails proves the cache short-circuits
	config.FetchCmd = "false"

	cachePath := filepath.Join(config.SrcCache, "foo.tar.gz")
	require.NoError(t, os.WriteFile(cachePath, []byte("cached"), 0644))

	assert.NoError(t, Fetch(config, "https://example.com/foo.tar.gz", cachePath, io.Discard))
}

func TestFetchCommandTemplate(t *testing.T) {
	config := testConfig(t)

	source := filepath.Join(t.TempDir(), "foo.tar.gz")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	cachePath := filepath.Join(config.SrcCache, "foo.tar.gz")
	require.NoError(t, Fetch(config, source, cachePath, io.Discard))

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFetchFailureRemovesPartialFile(t *testing.T) {
	config := testConfig(t)
	config.FetchCmd = "false"

	cachePath := filepath.Join(config.SrcCache, "foo.tar.gz")
	err := Fetch(config, "https://example.com/foo.tar.gz", cachePath, io.Discard)
	assert.True(t, errors.As(err, &FetchFailedErr{}))

	_, statErr := os.Stat(cachePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestVerifyHash(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))

	sum := sha256.Sum256([]byte("hello"))
	good := hex.EncodeToString(sum[:])

	assert.NoError(t, VerifyHash(file, good))
	assert.NoError(t, VerifyHash(file, ""))

	err := VerifyHash(file, "deadbeef")
	assert.True(t, errors.As(err, &HashMismatchErr{}))
}

func TestExtractUnsupportedArchive(t *testing.T) {
	if _, err := exec.LookPath("bsdtar"); err == nil {
		t.Skip("bsdtar present, generic fallback would be used")
	}

	archive := filepath.Join(t.TempDir(), "foo.rar")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0644))

	err := Extract(archive, t.TempDir(), io.Discard)
	assert.True(t, errors.As(err, &UnsupportedArchiveErr{}))
}

func TestWorkDirSingleSubdirectory(t *testing.T) {
	config := testConfig(t)

	scratch := filepath.Join(config.BuildDir, "foo")
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "foo-1.0"), 0755))

	workDir, err := WorkDir(config, "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "foo-1.0"), workDir)
}

func TestWorkDirScatteredContents(t *testing.T) {
	config := testConfig(t)

	scratch := filepath.Join(config.BuildDir, "foo")
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "README"), []byte("x"), 0644))

	workDir, err := WorkDir(config, "foo")
	require.NoError(t, err)
	assert.Equal(t, scratch, workDir)
}

func TestWorkDirMissingBuild(t *testing.T) {
	config := testConfig(t)

	_, err := WorkDir(config, "neverbuilt")
	assert.Error(t, err)
}

func TestCacheFileName(t *testing.T) {
	assert.Equal(t, "foo-1.0.tar.gz", cacheFileName("https://example.com/dist/foo-1.0.tar.gz"))
	assert.Equal(t, "foo.tar.gz", cacheFileName("https://example.com/foo.tar.gz?mirror=1"))
	assert.Equal(t, "foo.tar.gz", cacheFileName("/local/path/foo.tar.gz"))
}
