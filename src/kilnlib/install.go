package kilnlib

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

// installFallbacks are tried in order when a recipe has no Install block;
// the first one that exits successfully wins.
var installFallbacks = []string{
	"cmake --install build",
	"make -C build install",
	"make install",
}

// StagePackage runs the recipe's install script against a fresh staging
// directory with DESTDIR exported, and returns the staging path. The
// live root is not touched.
func StagePackage(config *KilnConfig, recipe *Recipe, workDir string) (string, error) {
	logFile, err := StageLog(config, "stage")
	if err != nil {
		return "", err
	}
	defer logFile.Close()

	stagingDir := filepath.Join(config.StagingDir, recipe.Name)
	err = os.RemoveAll(stagingDir)
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(stagingDir, 0755)
	if err != nil {
		return "", err
	}

	env := buildEnvironment(config, recipe, "DESTDIR="+stagingDir)

	fmt.Fprintf(logFile, "==> %s-%s: stage\n", recipe.Name, recipe.Version)
	if recipe.InstallScript != "" {
		err = runScript(recipe.InstallScript, workDir, env, logFile)
		if err != nil {
			return "", fmt.Errorf("install script of package (%s) failed: %s (see %s)", recipe.Name, err, logFile.Name())
		}
		return stagingDir, nil
	}

	for _, fallback := range installFallbacks {
		err = runScript(fallback, workDir, env, logFile)
		if err == nil {
			return stagingDir, nil
		}
	}

	return "", fmt.Errorf("no install command succeeded for package (%s) (see %s)", recipe.Name, logFile.Name())
}

// StripStaging strips ELF binaries found in the staging tree using the
// configured strip command. Candidates are regular files that are either
// executable or named like shared or static libraries; the file content
// decides. Strip failures are warnings.
func StripStaging(config *KilnConfig, stagingDir string) []string {
	stripArgv := strings.Fields(config.StripCmd)
	if len(stripArgv) == 0 {
		return nil
	}

	warnings := make([]string, 0)
	filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		base := filepath.Base(path)
		if info.Mode().Perm()&0111 == 0 && !strings.Contains(base, ".so") && !strings.HasSuffix(base, ".a") {
			return nil
		}
		if !isELF(path) {
			return nil
		}

		cmd := exec.Command(stripArgv[0], append(stripArgv[1:], path)...)
		stripErr := cmd.Run()
		if stripErr != nil {
			warnings = append(warnings, fmt.Sprintf("could not strip file (%s): %s", path, stripErr))
		}
		return nil
	})

	return warnings
}

func isELF(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	magic := make([]byte, 4)
	_, err = io.ReadFull(file, magic)
	if err != nil {
		return false
	}
	return bytes.Equal(magic, []byte{0x7f, 'E', 'L', 'F'})
}

// CommitStaging merges the staging tree into the live install root,
// preserving permissions, symlinks and hard links. Existing files are
// overwritten. The overlay is best effort; only the database record
// write is atomic.
func CommitStaging(stagingDir, installPrefix string) error {
	seenInodes := make(map[uint64]string)

	return filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(installPrefix, rel)

		info, err := os.Lstat(path)
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			err = os.MkdirAll(dest, info.Mode().Perm())
			if err != nil {
				return err
			}

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			err = os.Remove(dest)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			err = os.Symlink(target, dest)
			if err != nil {
				return err
			}

		default:
			// Recreate hard links between files staged by this package
			if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Nlink > 1 {
				if first, seen := seenInodes[stat.Ino]; seen {
					err = os.Remove(dest)
					if err != nil && !os.IsNotExist(err) {
						return err
					}
					return os.Link(first, dest)
				}
				seenInodes[stat.Ino] = dest
			}

			err = copyFile(path, dest, info.Mode().Perm())
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	err = os.Remove(dest)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	destination, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	if err != nil {
		return err
	}
	return destination.Chmod(perm)
}

// StagingManifest lists every file and symlink in the staging tree,
// rewritten to be rooted at the install prefix, sorted and de-duplicated.
func StagingManifest(stagingDir, installPrefix string) ([]string, error) {
	manifest := make([]string, 0)

	err := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		manifest = append(manifest, filepath.Join(installPrefix, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	manifest = removeDuplicates(manifest)
	slices.Sort(manifest)

	return manifest, nil
}
