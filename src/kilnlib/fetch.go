package kilnlib

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// FetchCmdInternal selects the built-in HTTP downloader instead of an
// external fetch command.
const FetchCmdInternal = "internal"

// Fetch ensures the source at the given URL exists in the cache. An
// existing regular file is a cache hit. Otherwise the configured fetch
// command template is tokenized, the {output} and {url} placeholders are
// substituted (or appended when absent) and the command is invoked
// directly, never through a shell. Partial output is removed on failure.
func Fetch(config *KilnConfig, url, cachePath string, logWriter io.Writer) error {
	if stat, err := os.Stat(cachePath); err == nil && stat.Mode().IsRegular() {
		return nil
	}

	err := os.MkdirAll(filepath.Dir(cachePath), 0755)
	if err != nil {
		return err
	}

	if config.FetchCmd == FetchCmdInternal {
		err = downloadFile("Downloading "+filepath.Base(cachePath), url, cachePath, !config.ColorEnabled())
	} else {
		err = runFetchCmd(config.FetchCmd, url, cachePath, logWriter)
	}
	if err != nil {
		os.Remove(cachePath)
		return FetchFailedErr{url: url, reason: err.Error()}
	}

	return nil
}

func runFetchCmd(template, url, output string, logWriter io.Writer) error {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return fmt.Errorf("fetch command template is empty")
	}

	hasOutput, hasURL := false, false
	for i, arg := range argv {
		switch arg {
		case "{output}":
			argv[i] = output
			hasOutput = true
		case "{url}":
			argv[i] = url
			hasURL = true
		}
	}
	if !hasOutput {
		argv = append(argv, output)
	}
	if !hasURL {
		argv = append(argv, url)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter
	return cmd.Run()
}

// downloadFile retrieves a URL over HTTP with a progress bar.
func downloadFile(barText, url, filepath string, hideBar bool) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %s", resp.Status)
	}

	// Create file
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	// Create progress bar
	bar := createProgressBar(resp.ContentLength, barText, hideBar)
	defer bar.Close()

	// Copy data
	_, err = io.Copy(io.MultiWriter(file, bar), resp.Body)
	return err
}

func createProgressBar(max int64, description string, hideBar bool) *progressbar.ProgressBar {
	var output io.Writer
	if hideBar {
		output = io.Discard
	} else {
		output = os.Stderr
	}

	return progressbar.NewOptions64(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(output),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowTotalBytes(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(output, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII))
}

// VerifyHash compares the SHA-256 digest of a file against the expected
// hash. An empty expected hash succeeds unconditionally.
func VerifyHash(file, expectedHash string) error {
	if expectedHash == "" {
		return nil
	}

	fileHandle, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fileHandle.Close()

	hash := sha256.New()
	_, err = io.Copy(hash, fileHandle)
	if err != nil {
		return err
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(actual, expectedHash) {
		return HashMismatchErr{file: file, expected: strings.ToLower(expectedHash), actual: actual}
	}

	return nil
}

// archiveHandlers maps archive suffixes to extraction command templates.
// Extractors are external commands; {archive} and {dest} are substituted
// before invocation.
var archiveHandlers = []struct {
	suffix string
	argv   []string
}{
	{".tar.gz", []string{"tar", "-xzf", "{archive}", "-C", "{dest}"}},
	{".tgz", []string{"tar", "-xzf", "{archive}", "-C", "{dest}"}},
	{".tar.xz", []string{"tar", "-xJf", "{archive}", "-C", "{dest}"}},
	{".tar.bz2", []string{"tar", "-xjf", "{archive}", "-C", "{dest}"}},
	{".tar.zst", []string{"tar", "--zstd", "-xf", "{archive}", "-C", "{dest}"}},
	{".tar", []string{"tar", "-xf", "{archive}", "-C", "{dest}"}},
	{".zip", []string{"unzip", "-o", "{archive}", "-d", "{dest}"}},
}

// Extract unpacks an archive into the destination directory, dispatching
// on the filename suffix. Unknown suffixes fall back to bsdtar when it is
// available on PATH.
func Extract(archive, destDir string, logWriter io.Writer) error {
	var argv []string
	for _, handler := range archiveHandlers {
		if strings.HasSuffix(archive, handler.suffix) {
			argv = make([]string, len(handler.argv))
			copy(argv, handler.argv)
			break
		}
	}
	if argv == nil {
		if _, err := exec.LookPath("bsdtar"); err != nil {
			return UnsupportedArchiveErr{archive: archive}
		}
		argv = []string{"bsdtar", "-xf", "{archive}", "-C", "{dest}"}
	}

	for i, arg := range argv {
		switch arg {
		case "{archive}":
			argv[i] = archive
		case "{dest}":
			argv[i] = destDir
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("could not extract archive (%s): %s", archive, err)
	}

	return nil
}

// Prepare clears the package's scratch build area, fetches and verifies
// each source, extracts every archive into it and returns the working
// directory: the single top-level subdirectory when extraction produced
// exactly one, otherwise the scratch root itself.
func Prepare(config *KilnConfig, recipe *Recipe, logWriter io.Writer) (string, error) {
	scratchDir := filepath.Join(config.BuildDir, recipe.Name)
	err := os.RemoveAll(scratchDir)
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(scratchDir, 0755)
	if err != nil {
		return "", err
	}

	for i, source := range recipe.Sources {
		cachePath := filepath.Join(config.SrcCache, cacheFileName(source))

		err = Fetch(config, source, cachePath, logWriter)
		if err != nil {
			return "", err
		}

		err = VerifyHash(cachePath, recipe.HashFor(i))
		if err != nil {
			// Drop the bad cache entry so a corrected recipe refetches
			os.Remove(cachePath)
			return "", err
		}

		err = Extract(cachePath, scratchDir, logWriter)
		if err != nil {
			return "", err
		}
	}

	return WorkDir(config, recipe.Name)
}

// WorkDir locates the working directory inside the package's scratch
// build area using the single-subdirectory rule.
func WorkDir(config *KilnConfig, pkg string) (string, error) {
	scratchDir := filepath.Join(config.BuildDir, pkg)
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return "", fmt.Errorf("package (%s) has no build directory, build it first: %s", pkg, err)
	}

	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(scratchDir, entries[0].Name()), nil
	}
	return scratchDir, nil
}
