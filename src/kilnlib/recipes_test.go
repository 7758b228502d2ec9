package kilnlib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecipe(t *testing.T) {
	contents := `# zlib compression library
Name: zlib
Version: 1.3.1
Description: compression library
Source: https://example.com/zlib-${VERSION}.tar.gz
Source: https://example.com/${NAME}-extra.tar.gz
Sha256: abc123
Depends: libfoo, libbar libfoo
Build: |
./configure --prefix=/usr
make
Build: end
Install: |
make DESTDIR="$DESTDIR" install
Install: end
`

	recipe, err := ParseRecipe("zlib", contents)
	require.NoError(t, err)

	assert.Equal(t, "zlib", recipe.Name)
	assert.Equal(t, "1.3.1", recipe.Version)
	assert.Equal(t, "compression library", recipe.Description)
	assert.Equal(t, []string{
		"https://example.com/zlib-1.3.1.tar.gz",
		"https://example.com/zlib-extra.tar.gz",
	}, recipe.Sources)
	assert.Equal(t, []string{"libfoo", "libbar"}, recipe.Depends)
	assert.Equal(t, "abc123", recipe.HashFor(0))
	assert.Equal(t, "", recipe.HashFor(1))
	assert.Equal(t, "./configure --prefix=/usr\nmake", recipe.BuildScript)
	assert.Equal(t, `make DESTDIR="$DESTDIR" install`, recipe.InstallScript)
}

func TestParseRecipeCaseInsensitiveKeys(t *testing.T) {
	recipe, err := ParseRecipe("foo", "name: foo\nVERSION: 2\nsource: https://example.com/foo.tar.gz\n")
	require.NoError(t, err)
	assert.Equal(t, "foo", recipe.Name)
	assert.Equal(t, "2", recipe.Version)
}

func TestParseRecipeErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"missing name", "Version: 1\nSource: https://example.com/x.tar.gz\n"},
		{"missing version", "Name: foo\nSource: https://example.com/x.tar.gz\n"},
		{"missing sources", "Name: foo\nVersion: 1\n"},
		{"unclosed block", "Name: foo\nVersion: 1\nSource: x\nBuild: |\nmake\n"},
		{"name mismatch", "Name: bar\nVersion: 1\nSource: x\n"},
		{"block without pipe", "Name: foo\nVersion: 1\nSource: x\nBuild: make\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseRecipe("foo", test.contents)
			assert.True(t, errors.As(err, &RecipeMalformedErr{}))
		})
	}
}

func TestReadRecipeNotFound(t *testing.T) {
	config := testConfig(t)

	_, err := ReadRecipe(config, "missing")
	assert.True(t, errors.As(err, &RecipeNotFoundErr{}))
}

func TestSearchRecipes(t *testing.T) {
	config := testConfig(t)
	writeRecipe(t, config, "zlib", "Name: zlib\nVersion: 1\nSource: x\n")
	writeRecipe(t, config, "zstd", "Name: zstd\nVersion: 1\nSource: x\n")
	writeRecipe(t, config, "make", "Name: make\nVersion: 1\nSource: x\n")

	results, err := SearchRecipes(config, "zl")
	require.NoError(t, err)
	assert.Equal(t, []string{"zlib"}, results)

	results, err = SearchRecipes(config, "z")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"zlib", "zstd"}, results)
}

func writeRecipe(t *testing.T, config *KilnConfig, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(config.RecipesDir, name+".pkg"), []byte(contents), 0644))
}
