package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"horse.fit/glance/internal/schema"
)

type validateResult struct {
	Scanned int
	Valid   int
	Invalid int
	Events  int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/replay", "Directory containing .json replay scripts")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	match := fs.String("match", "", "Only validate scripts whose path relative to --dir matches this glob (e.g. hover/*.json)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	root := strings.TrimSpace(*dir)
	files, err := collectJSONFiles(root, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}
	files, err = filterByGlob(root, files, *match)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --match: %v\n", err)
		return 2
	}

	result := validateScripts(files, os.Stderr)
	fmt.Printf(
		"validate scanned=%d valid=%d invalid=%d events=%d dir=%s recursive=%t match=%q\n",
		result.Scanned,
		result.Valid,
		result.Invalid,
		result.Events,
		root,
		*recursive,
		*match,
	)

	if result.Scanned == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no matching .json files found under %s\n", root)
		return 1
	}
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

// validateScripts checks every file and reports failures to errOut, one
// line per file.
func validateScripts(files []string, errOut io.Writer) validateResult {
	var result validateResult
	for _, path := range files {
		result.Scanned++

		raw, err := os.ReadFile(path)
		if err != nil {
			result.Invalid++
			fmt.Fprintf(errOut, "INVALID %s: read failed: %v\n", path, err)
			continue
		}

		script, err := schema.ValidateReplayScript(json.RawMessage(raw))
		if err != nil {
			result.Invalid++
			fmt.Fprintf(errOut, "INVALID %s: %v\n", path, err)
			continue
		}

		result.Valid++
		result.Events += len(script.Events)
	}
	return result
}

// collectJSONFiles lists .json files under root in lexical order. Hidden
// files and directories are skipped.
func collectJSONFiles(root string, recursive bool) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("directory path is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if path == root {
				return nil
			}
			if hidden || !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && strings.EqualFold(filepath.Ext(d.Name()), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// filterByGlob keeps files whose slash-separated path relative to root
// matches pattern. A blank pattern keeps everything. "*" does not cross
// directory boundaries; "**" does.
func filterByGlob(root string, files []string, pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return files, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	kept := make([]string, 0, len(files))
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, fmt.Errorf("relative path for %s: %w", path, err)
		}
		if g.Match(filepath.ToSlash(rel)) {
			kept = append(kept, path)
		}
	}
	return kept, nil
}
