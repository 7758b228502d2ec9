package kilnlib

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/drone/envsubst"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

type Recipe struct {
	Name          string
	Version       string
	Description   string
	Sources       []string
	Hashes        []string
	Depends       []string
	BuildScript   string
	InstallScript string
}

// HashFor returns the expected hash for the i-th source, or an empty
// string when no hash was declared for it.
func (recipe *Recipe) HashFor(i int) string {
	if i >= len(recipe.Hashes) {
		return ""
	}
	return recipe.Hashes[i]
}

// ReadRecipe reads and parses the recipe file for the given package name.
func ReadRecipe(config *KilnConfig, name string) (*Recipe, error) {
	data, err := os.ReadFile(filepath.Join(config.RecipesDir, name+".pkg"))
	if os.IsNotExist(err) {
		return nil, RecipeNotFoundErr{name: name}
	}
	if err != nil {
		return nil, err
	}

	return ParseRecipe(name, string(data))
}

// ParseRecipe parses the line-oriented recipe format. Scalar keys are
// matched case-insensitively and may repeat (Source, Sha256); Build and
// Install open literal blocks with "<Key>: |" terminated by "<Key>: end".
func ParseRecipe(name, contents string) (*Recipe, error) {
	recipe := &Recipe{
		Sources: make([]string, 0),
		Hashes:  make([]string, 0),
		Depends: make([]string, 0),
	}

	var blockKey string
	var blockLines []string

	for _, line := range strings.Split(contents, "\n") {
		// Collect block bodies verbatim up to the closing line
		if blockKey != "" {
			trimmed := strings.TrimSpace(line)
			if strings.EqualFold(trimmed, blockKey+": end") {
				body := strings.Join(blockLines, "\n")
				if strings.EqualFold(blockKey, "build") {
					recipe.BuildScript = body
				} else {
					recipe.InstallScript = body
				}
				blockKey = ""
				blockLines = nil
				continue
			}
			blockLines = append(blockLines, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			return nil, RecipeMalformedErr{name: name, reason: fmt.Sprintf("line (%s) is not a key-value pair", trimmed)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "name":
			recipe.Name = value
		case "version":
			recipe.Version = value
		case "description":
			recipe.Description = value
		case "source":
			recipe.Sources = append(recipe.Sources, value)
		case "sha256":
			recipe.Hashes = append(recipe.Hashes, value)
		case "depends":
			recipe.Depends = append(recipe.Depends, splitDependsList(value)...)
		case "build", "install":
			if value != "|" {
				return nil, RecipeMalformedErr{name: name, reason: fmt.Sprintf("key (%s) must open a block with '|'", key)}
			}
			blockKey = key
			blockLines = make([]string, 0)
		}
	}

	if blockKey != "" {
		return nil, RecipeMalformedErr{name: name, reason: fmt.Sprintf("block (%s) was opened but never closed", blockKey)}
	}
	if recipe.Name == "" {
		return nil, RecipeMalformedErr{name: name, reason: "missing Name field"}
	}
	if recipe.Name != name {
		return nil, RecipeMalformedErr{name: name, reason: fmt.Sprintf("Name field (%s) does not match the recipe filename", recipe.Name)}
	}
	if recipe.Version == "" {
		return nil, RecipeMalformedErr{name: name, reason: "missing Version field"}
	}
	if len(recipe.Sources) == 0 {
		return nil, RecipeMalformedErr{name: name, reason: "recipe declares no sources"}
	}

	recipe.Depends = removeDuplicates(recipe.Depends)

	// Expand recipe variables in source URLs
	for i, source := range recipe.Sources {
		expanded, err := envsubst.Eval(source, func(key string) string {
			switch key {
			case "NAME":
				return recipe.Name
			case "VERSION":
				return recipe.Version
			}
			return ""
		})
		if err != nil {
			return nil, RecipeMalformedErr{name: name, reason: fmt.Sprintf("source (%s) could not be expanded: %s", source, err)}
		}
		recipe.Sources[i] = expanded
	}

	return recipe, nil
}

func splitDependsList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	depends := make([]string, 0, len(fields))
	for _, field := range fields {
		if field != "" {
			depends = append(depends, field)
		}
	}
	return depends
}

// AllRecipeNames enumerates every recipe in the recipe tree.
func AllRecipeNames(config *KilnConfig) ([]string, error) {
	entries, err := os.ReadDir(config.RecipesDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ".pkg") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".pkg"))
	}
	slices.Sort(names)

	return names, nil
}

// SearchRecipes returns recipe names fuzzy-matching the given term,
// best matches first.
func SearchRecipes(config *KilnConfig, term string) ([]string, error) {
	names, err := AllRecipeNames(config)
	if err != nil {
		return nil, err
	}

	ranks := fuzzy.RankFindFold(term, names)
	slices.SortStableFunc(ranks, func(a, b fuzzy.Rank) int {
		return a.Distance - b.Distance
	})

	results := make([]string, len(ranks))
	for i, rank := range ranks {
		results[i] = rank.Target
	}

	return results, nil
}
