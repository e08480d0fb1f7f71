package migrator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// now is swapped by tests
var now = time.Now

// MakeMigration writes an empty up / down pair named after the current time
// and returns the paths of both files
func MakeMigration(dir, name string) ([]string, error) {
	slug := formatSlug(name)
	if slug == "" {
		return nil, fmt.Errorf("invalid migration name %q", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	version := now().UTC().Format("20060102150405")
	base := filepath.Join(dir, version+"_"+slug)

	up := base + upSuffix
	down := base + downSuffix

	if err := writeStub(up, fmt.Sprintf("-- Up Migration %s %s\n%s\n\n%s\n", version, name, beginStatement, endStatement)); err != nil {
		return nil, err
	}

	if err := writeStub(down, fmt.Sprintf("-- Down Migration %s %s\n%s\n\n%s\n", version, name, beginStatement, endStatement)); err != nil {
		_ = os.Remove(up)
		return nil, err
	}

	return []string{up, down}, nil
}

func writeStub(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(content)
	return err
}

func formatSlug(str string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(str), "_"), "_")
}
