package kilnlib

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	statusPrintf = color.New(color.FgCyan).PrintfFunc()
	warnPrintf   = color.New(color.FgYellow).PrintfFunc()
)

// Info returns recipe metadata for a package alongside its installed
// version, if any.
func Info(config *KilnConfig, pkg string) (string, error) {
	db, err := OpenDatabase(config)
	if err != nil {
		return "", err
	}
	defer db.Close()

	recipe, err := ReadRecipe(config, pkg)
	if err != nil {
		return "", err
	}

	ret := make([]string, 0)
	ret = append(ret, "Name: "+recipe.Name)
	if recipe.Description != "" {
		ret = append(ret, "Description: "+recipe.Description)
	}
	ret = append(ret, "Version: "+recipe.Version)
	ret = append(ret, "Sources: "+strings.Join(recipe.Sources, ", "))
	if len(recipe.Depends) != 0 {
		ret = append(ret, "Dependencies: "+strings.Join(recipe.Depends, ", "))
	}
	if installedVersion, ok := db.InstalledVersion(pkg); ok {
		ret = append(ret, "Installed version: "+installedVersion)
		dependents, err := db.InstalledDependents(pkg)
		if err != nil {
			return "", err
		}
		if len(dependents) != 0 {
			ret = append(ret, "Dependent packages: "+strings.Join(dependents, ", "))
		}
	} else {
		ret = append(ret, "Installed version: not installed")
	}

	return strings.Join(ret, "\n"), nil
}

// Build resolves the package's dependency graph, builds and installs
// every dependency that is not yet installed (an installed dependency of
// any version is considered satisfied), then builds the target itself.
// The target is not installed.
func Build(config *KilnConfig, pkg string) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	return buildTarget(config, db, pkg)
}

// Install stages, commits and registers a previously built package. When
// the user named the package explicitly it is added to the manual set.
func Install(config *KilnConfig, pkg string, manual bool) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	recipe, err := ReadRecipe(config, pkg)
	if err != nil {
		return err
	}

	err = installBuilt(config, db, recipe)
	if err != nil {
		return err
	}
	if manual {
		return db.MarkManual(pkg)
	}
	return nil
}

// Remove deletes an installed package's files from the live root and
// unregisters it. It refuses when any installed package currently lists
// the target as a dependency. Paths shared with other packages are
// removed too; removal is destructive.
func Remove(config *KilnConfig, pkg string) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if !db.IsInstalled(pkg) {
		return fmt.Errorf("package (%s) is not installed", pkg)
	}

	dependents, err := db.InstalledDependents(pkg)
	if err != nil {
		return err
	}
	if len(dependents) != 0 {
		return HasReverseDependentsErr{pkg: pkg, dependents: dependents}
	}

	return removeInstalled(config, db, pkg)
}

// Rebuild removes the package if installed (failures are warnings, the
// package may briefly be absent from the live root), then builds and
// reinstalls it.
func Rebuild(config *KilnConfig, pkg string) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	return rebuildInstalled(config, db, pkg)
}

// RebuildSystem rebuilds every installed package in topological order.
func RebuildSystem(config *KilnConfig) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	installed, err := db.AllInstalled()
	if err != nil {
		return err
	}
	plan, err := InstalledBuildOrder(config, installed)
	if err != nil {
		return err
	}

	for _, recipe := range plan {
		err = rebuildInstalled(config, db, recipe.Name)
		if err != nil {
			return err
		}
	}

	return nil
}

// Upgrade rebuilds a package when its recipe version is greater than the
// installed one. Equal or lower versions are a no-op. A package that is
// not installed is built and installed as explicitly requested.
func Upgrade(config *KilnConfig, pkg string) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	recipe, err := ReadRecipe(config, pkg)
	if err != nil {
		return err
	}

	installedVersion, installed := db.InstalledVersion(pkg)
	if !installed {
		err = buildTarget(config, db, pkg)
		if err != nil {
			return err
		}
		err = installBuilt(config, db, recipe)
		if err != nil {
			return err
		}
		return db.MarkManual(pkg)
	}

	if CompareVersions(recipe.Version, installedVersion) <= 0 {
		statusPrintf("Package (%s) is up to date (installed %s, recipe %s)\n", pkg, installedVersion, recipe.Version)
		return nil
	}

	statusPrintf("Upgrading package (%s) from %s to %s\n", pkg, installedVersion, recipe.Version)
	return rebuildInstalled(config, db, pkg)
}

// Autoremove removes orphaned packages, leaves first, until no orphans
// remain.
func Autoremove(config *KilnConfig) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	for {
		orphans, err := db.Orphans()
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			return nil
		}

		removedAny := false
		for _, pkg := range orphans {
			dependents, err := db.InstalledDependents(pkg)
			if err != nil {
				return err
			}
			if len(dependents) != 0 {
				continue
			}
			err = removeInstalled(config, db, pkg)
			if err != nil {
				return err
			}
			removedAny = true
		}
		if !removedAny {
			return nil
		}
	}
}

// Orphans lists installed packages that are neither manually requested
// nor required by any installed package.
func Orphans(config *KilnConfig) ([]string, error) {
	db, err := OpenDatabase(config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return db.Orphans()
}

// ListInstalled returns "name version" lines for every installed
// package.
func ListInstalled(config *KilnConfig) ([]string, error) {
	db, err := OpenDatabase(config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	installed, err := db.AllInstalled()
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(installed))
	for _, pkg := range installed {
		version, _ := db.InstalledVersion(pkg)
		lines = append(lines, pkg+" "+version)
	}
	return lines, nil
}

// MarkManual adds a package to the manual set so orphan reaping never
// touches it.
func MarkManual(config *KilnConfig, pkg string) error {
	db, err := OpenDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.MarkManual(pkg)
}

// Sync updates the recipe tree from its upstream repository.
func Sync(config *KilnConfig) error {
	cmd := exec.Command("git", "-C", config.RecipesDir, "pull", "--ff-only")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("could not sync recipe tree (%s): %s", config.RecipesDir, err)
	}
	return nil
}

// buildTarget builds pkg after building and installing any missing
// dependencies in resolver order.
func buildTarget(config *KilnConfig, db *Database, pkg string) error {
	plan, err := ResolveBuildOrder(config, pkg)
	if err != nil {
		return err
	}

	for _, recipe := range plan[:len(plan)-1] {
		if db.IsInstalled(recipe.Name) {
			continue
		}
		statusPrintf("Building dependency (%s)...\n", recipe.Name)
		err = buildOne(config, recipe)
		if err != nil {
			return err
		}
		err = installBuilt(config, db, recipe)
		if err != nil {
			return err
		}
	}

	statusPrintf("Building package (%s)...\n", pkg)
	return buildOne(config, plan[len(plan)-1])
}

// buildOne prepares the scratch source tree and runs the build stage for
// a single package.
func buildOne(config *KilnConfig, recipe *Recipe) error {
	logFile, err := StageLog(config, "fetch")
	if err != nil {
		return err
	}
	workDir, err := Prepare(config, recipe, logFile)
	logFile.Close()
	if err != nil {
		return err
	}

	return BuildPackage(config, recipe, workDir)
}

// installBuilt runs the staging, strip, commit and register sequence for
// a package whose build directory already exists.
func installBuilt(config *KilnConfig, db *Database, recipe *Recipe) error {
	workDir, err := WorkDir(config, recipe.Name)
	if err != nil {
		return err
	}

	stagingDir, err := StagePackage(config, recipe, workDir)
	if err != nil {
		return err
	}

	for _, warning := range StripStaging(config, stagingDir) {
		warnPrintf("Warning: %s\n", warning)
	}

	err = CommitStaging(stagingDir, config.InstallPrefix)
	if err != nil {
		return err
	}

	manifest, err := StagingManifest(stagingDir, config.InstallPrefix)
	if err != nil {
		return err
	}

	err = db.Register(recipe.Name, recipe.Version, manifest)
	if err != nil {
		return err
	}

	statusPrintf("Package (%s) was installed successfully\n", recipe.Name)
	return nil
}

// rebuildInstalled removes, rebuilds and reinstalls a package. Removal
// failures are warnings so a rebuild can repair a half-removed package.
func rebuildInstalled(config *KilnConfig, db *Database, pkg string) error {
	if db.IsInstalled(pkg) {
		err := removeInstalled(config, db, pkg)
		if err != nil {
			warnPrintf("Warning: could not remove package (%s) before rebuild: %s\n", pkg, err)
		}
	}

	err := buildTarget(config, db, pkg)
	if err != nil {
		return err
	}

	recipe, err := ReadRecipe(config, pkg)
	if err != nil {
		return err
	}
	return installBuilt(config, db, recipe)
}

// removeInstalled deletes the package's manifest paths from the live
// root, prunes empty parent directories bottom-up and unregisters the
// record. Missing files are warnings.
func removeInstalled(config *KilnConfig, db *Database, pkg string) error {
	files := db.InstalledFiles(pkg)

	// Delete in reverse lexical order, so paths inside a directory come
	// before the directory itself
	sort.Slice(files, func(i, j int) bool {
		return files[i] > files[j]
	})

	parents := make([]string, 0)
	for _, file := range files {
		stat, err := os.Lstat(file)
		if os.IsNotExist(err) {
			warnPrintf("Warning: file (%s) from package (%s) no longer exists\n", file, pkg)
			continue
		}
		if err != nil {
			warnPrintf("Warning: could not stat file (%s): %s\n", file, err)
			continue
		}
		if stat.IsDir() {
			continue
		}
		err = os.Remove(file)
		if err != nil {
			warnPrintf("Warning: could not remove file (%s): %s\n", file, err)
			continue
		}
		parents = append(parents, filepath.Dir(file))
	}

	pruneEmptyDirs(removeDuplicates(parents), config.InstallPrefix)

	statusPrintf("Package (%s) was removed\n", pkg)
	return db.Unregister(pkg)
}

// pruneEmptyDirs removes now-empty directories bottom-up, never crossing
// above the install prefix.
func pruneEmptyDirs(dirs []string, installPrefix string) {
	prefix := filepath.Clean(installPrefix)

	// Longest paths first
	slices.SortFunc(dirs, func(a, b string) int {
		return len(b) - len(a)
	})

	for _, dir := range dirs {
		for dir != prefix && strings.HasPrefix(dir, prefix) {
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) != 0 {
				break
			}
			err = os.Remove(dir)
			if err != nil {
				warnPrintf("Warning: could not prune directory (%s): %s\n", dir, err)
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}
