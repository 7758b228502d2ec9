package kilnlib

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// StageLog opens the dated log file for a pipeline stage, creating the
// log directory as needed. Output is appended across runs of the same
// day.
func StageLog(config *KilnConfig, stage string) (*os.File, error) {
	err := os.MkdirAll(config.LogDir, 0755)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_%s.log", time.Now().Format("20060102"), stage)
	return os.OpenFile(filepath.Join(config.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// buildEnvironment assembles the environment exported to recipe scripts
// and heuristic build commands.
func buildEnvironment(config *KilnConfig, recipe *Recipe, extra ...string) []string {
	env := os.Environ()
	env = append(env, "MAKEFLAGS="+config.Makeflags)
	env = append(env, "JOBS="+strconv.Itoa(config.Jobs))
	env = append(env, "NAME="+recipe.Name)
	env = append(env, "VERSION="+recipe.Version)
	env = append(env, "PREFIX=/usr")
	env = append(env, extra...)
	return env
}

// runScript runs a script body with sh -e -c (strict mode) in the given
// working directory and environment, capturing all output to the stage
// log.
func runScript(script, workDir string, env []string, logFile *os.File) error {
	cmd := exec.Command("sh", "-e", "-c", script)
	cmd.Dir = workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = env
	return cmd.Run()
}

// buildStrategies maps project descriptor files to the heuristic build
// commands used when a recipe carries no Build block.
var buildStrategies = []struct {
	descriptor string
	script     string
}{
	{"configure", "./configure --prefix=/usr\nmake $MAKEFLAGS"},
	{"meson.build", "meson setup build --prefix=/usr\nmeson compile -C build"},
	{"CMakeLists.txt", "cmake -B build -DCMAKE_BUILD_TYPE=Release -DCMAKE_INSTALL_PREFIX=/usr\ncmake --build build -- $MAKEFLAGS"},
}

// BuildPackage runs the recipe's build script, or a heuristic selected by
// the project descriptors present in the working directory, inside the
// prepared source tree. The live root is never touched here.
func BuildPackage(config *KilnConfig, recipe *Recipe, workDir string) error {
	logFile, err := StageLog(config, "build")
	if err != nil {
		return err
	}
	defer logFile.Close()

	script := recipe.BuildScript
	if script == "" {
		for _, strategy := range buildStrategies {
			if _, err := os.Stat(filepath.Join(workDir, strategy.descriptor)); err == nil {
				script = strategy.script
				break
			}
		}
	}
	if script == "" {
		return NoBuildStrategyErr{pkg: recipe.Name}
	}

	fmt.Fprintf(logFile, "==> %s-%s: build\n", recipe.Name, recipe.Version)
	err = runScript(script, workDir, buildEnvironment(config, recipe), logFile)
	if err != nil {
		return fmt.Errorf("build of package (%s) failed: %s (see %s)", recipe.Name, err, logFile.Name())
	}

	return nil
}
