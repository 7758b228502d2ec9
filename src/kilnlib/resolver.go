package kilnlib

import "slices"

// ResolveBuildOrder walks the recipe graph from the root package and
// returns a topological build plan: every dependency precedes its
// dependents and the root comes last. Ties between packages whose
// dependencies are all satisfied break lexicographically, so the plan is
// deterministic for a given recipe tree. Missing recipes and dependency
// cycles fail here, before anything is fetched.
func ResolveBuildOrder(config *KilnConfig, root string) ([]*Recipe, error) {
	recipes := make(map[string]*Recipe)

	// Collect all reachable recipes depth-first
	var collect func(pkg string) error
	collect = func(pkg string) error {
		if _, ok := recipes[pkg]; ok {
			return nil
		}
		recipe, err := ReadRecipe(config, pkg)
		if err != nil {
			return err
		}
		recipes[pkg] = recipe
		for _, dep := range recipe.Depends {
			err = collect(dep)
			if err != nil {
				return err
			}
		}
		return nil
	}
	err := collect(root)
	if err != nil {
		return nil, err
	}

	return orderRecipes(recipes)
}

// orderRecipes topologically sorts a closed set of recipes (every
// dependency of a member that is also a member counts as an edge).
func orderRecipes(recipes map[string]*Recipe) ([]*Recipe, error) {
	remaining := make(map[string]int, len(recipes))
	for pkg, recipe := range recipes {
		count := 0
		for _, dep := range recipe.Depends {
			if _, ok := recipes[dep]; ok {
				count++
			}
		}
		remaining[pkg] = count
	}

	ready := make([]string, 0)
	for pkg, count := range remaining {
		if count == 0 {
			ready = append(ready, pkg)
		}
	}
	slices.Sort(ready)

	plan := make([]*Recipe, 0, len(recipes))
	for len(ready) != 0 {
		pkg := ready[0]
		ready = ready[1:]
		plan = append(plan, recipes[pkg])

		for dependent, recipe := range recipes {
			if !slices.Contains(recipe.Depends, pkg) {
				continue
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
				slices.Sort(ready)
			}
		}
	}

	if len(plan) != len(recipes) {
		cyclic := make([]string, 0)
		for pkg, count := range remaining {
			if count > 0 {
				cyclic = append(cyclic, pkg)
			}
		}
		slices.Sort(cyclic)
		return nil, DependencyCycleErr{packages: cyclic}
	}

	return plan, nil
}

// InstalledBuildOrder orders the currently installed packages by the same
// topological rule as ResolveBuildOrder, restricted to the installed set.
// Installed packages whose recipe no longer exists are skipped.
func InstalledBuildOrder(config *KilnConfig, installed []string) ([]*Recipe, error) {
	recipes := make(map[string]*Recipe)
	for _, pkg := range installed {
		recipe, err := ReadRecipe(config, pkg)
		if err != nil {
			if _, missing := err.(RecipeNotFoundErr); missing {
				continue
			}
			return nil, err
		}
		recipes[pkg] = recipe
	}

	return orderRecipes(recipes)
}
