package kilnlib

import (
	"fmt"
	"strings"
)

type ConfigErr struct {
	missing []string
}

func (e ConfigErr) Error() string {
	return "the following required configuration keys are missing or empty: " + strings.Join(e.missing, ", ")
}

type RecipeNotFoundErr struct {
	name string
}

func (e RecipeNotFoundErr) Error() string {
	return fmt.Sprintf("no recipe was found for package (%s)", e.name)
}

type RecipeMalformedErr struct {
	name   string
	reason string
}

func (e RecipeMalformedErr) Error() string {
	return fmt.Sprintf("recipe for package (%s) is malformed: %s", e.name, e.reason)
}

type DependencyCycleErr struct {
	packages []string
}

func (e DependencyCycleErr) Error() string {
	return "a dependency cycle was detected between the following packages: " + strings.Join(e.packages, ", ")
}

type FetchFailedErr struct {
	url    string
	reason string
}

func (e FetchFailedErr) Error() string {
	return fmt.Sprintf("source (%s) could not be fetched: %s", e.url, e.reason)
}

type HashMismatchErr struct {
	file     string
	expected string
	actual   string
}

func (e HashMismatchErr) Error() string {
	return fmt.Sprintf("file (%s) does not match its expected hash (expected %s, got %s)", e.file, e.expected, e.actual)
}

type UnsupportedArchiveErr struct {
	archive string
}

func (e UnsupportedArchiveErr) Error() string {
	return fmt.Sprintf("archive (%s) has an unsupported format", e.archive)
}

type NoBuildStrategyErr struct {
	pkg string
}

func (e NoBuildStrategyErr) Error() string {
	return fmt.Sprintf("package (%s) has no build script and no recognized project descriptor was found", e.pkg)
}

type HasReverseDependentsErr struct {
	pkg        string
	dependents []string
}

func (e HasReverseDependentsErr) Error() string {
	return fmt.Sprintf("package (%s) is required by the following installed packages: %s", e.pkg, strings.Join(e.dependents, ", "))
}

type DatabaseLockedErr struct {
	path string
}

func (e DatabaseLockedErr) Error() string {
	return "another operation is already in progress (lock file: " + e.path + ")"
}
