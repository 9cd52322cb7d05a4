package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCollectJSONFilesSkipsHiddenAndHonoursRecursion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.json"), "{}")
	writeFile(t, filepath.Join(root, "a.JSON"), "{}")
	writeFile(t, filepath.Join(root, ".hidden.json"), "{}")
	writeFile(t, filepath.Join(root, "notes.txt"), "")
	writeFile(t, filepath.Join(root, "nested", "c.json"), "{}")
	writeFile(t, filepath.Join(root, ".git", "d.json"), "{}")

	flat, err := collectJSONFiles(root, false)
	if err != nil {
		t.Fatalf("collectJSONFiles returned error: %v", err)
	}
	if len(flat) != 2 || filepath.Base(flat[0]) != "a.JSON" || filepath.Base(flat[1]) != "b.json" {
		t.Fatalf("unexpected flat listing: %v", flat)
	}

	deep, err := collectJSONFiles(root, true)
	if err != nil {
		t.Fatalf("collectJSONFiles returned error: %v", err)
	}
	if len(deep) != 3 {
		t.Fatalf("unexpected recursive listing: %v", deep)
	}

	if _, err := collectJSONFiles(filepath.Join(root, "b.json"), true); err == nil {
		t.Fatalf("expected error for a file root")
	}
}

func TestValidateScriptsCountsEvents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good := filepath.Join(root, "good.json")
	writeFile(t, good, `{"version":1,"events":[{"type":"keydown","key":"Control","ctrl":true},{"type":"wait","ms":150}]}`)
	missingKey := filepath.Join(root, "missing_key.json")
	writeFile(t, missingKey, `{"version":1,"events":[{"type":"keydown"}]}`)
	broken := filepath.Join(root, "broken.json")
	writeFile(t, broken, `{"version":1,`)

	var errOut bytes.Buffer
	result := validateScripts([]string{good, missingKey, broken}, &errOut)
	if result.Scanned != 3 || result.Valid != 1 || result.Invalid != 2 || result.Events != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(errOut.String(), "INVALID "+missingKey) || !strings.Contains(errOut.String(), "INVALID "+broken) {
		t.Fatalf("expected both failures to be reported:\n%s", errOut.String())
	}
}

func TestFilterByGlob(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	files := []string{
		filepath.Join(root, "basic.json"),
		filepath.Join(root, "hover", "close.json"),
		filepath.Join(root, "hover", "deep", "selection.json"),
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{pattern: "", want: 3},
		{pattern: "*.json", want: 1},
		{pattern: "hover/*.json", want: 1},
		{pattern: "hover/**", want: 2},
		{pattern: "{basic,hover/close}.json", want: 2},
	}
	for _, tc := range tests {
		got, err := filterByGlob(root, files, tc.pattern)
		if err != nil {
			t.Fatalf("pattern %q: %v", tc.pattern, err)
		}
		if len(got) != tc.want {
			t.Fatalf("pattern %q kept %v, want %d files", tc.pattern, got, tc.want)
		}
	}

	if _, err := filterByGlob(root, files, "[unclosed"); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestCheckedInReplayScriptsAreValid(t *testing.T) {
	t.Parallel()

	files, err := collectJSONFiles(filepath.Join("..", "..", "testdata", "replay"), true)
	if err != nil {
		t.Fatalf("collectJSONFiles returned error: %v", err)
	}
	var errOut bytes.Buffer
	result := validateScripts(files, &errOut)
	if result.Scanned == 0 || result.Invalid != 0 {
		t.Fatalf("unexpected result %+v:\n%s", result, errOut.String())
	}
}
