package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileVar overrides the --env flag when set.
const EnvFileVar = "GLANCE_ENV_FILE"

// ErrNoEnvFile is returned when none of the candidate .env files exist.
var ErrNoEnvFile = errors.New("no env file found")

// EnvLoader loads .env files with a predictable override order:
// $GLANCE_ENV_FILE, then --env, then the basename of --env, then the default.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	value := fs.String("env", defaultPath, description)
	return &EnvLoader{
		value:       value,
		defaultPath: defaultPath,
	}
}

// Candidates lists the files Load will try, in order, without duplicates.
func (l *EnvLoader) Candidates() []string {
	if l == nil {
		return nil
	}

	requested := strings.TrimSpace(derefString(l.value))
	if requested == "" {
		requested = l.defaultPath
	}

	raw := []string{
		strings.TrimSpace(os.Getenv(EnvFileVar)),
		requested,
		filepath.Base(requested),
		l.defaultPath,
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, candidate := range raw {
		if candidate == "" || candidate == "." {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// Load overlays the first readable candidate onto the process environment and
// returns its path. Missing files are skipped; a file that exists but fails to
// parse is reported immediately.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	for _, candidate := range l.Candidates() {
		err := godotenv.Overload(candidate)
		if err == nil {
			return candidate, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return "", fmt.Errorf("load env file %s: %w", candidate, err)
	}

	return "", fmt.Errorf("%w (tried %s)", ErrNoEnvFile, strings.Join(l.Candidates(), ", "))
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
