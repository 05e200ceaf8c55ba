package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	markUp         = "-- +goose Up"
	markDown       = "-- +goose Down"
	markStmtBegin  = "-- +goose StatementBegin"
	markStmtEnd    = "-- +goose StatementEnd"
	fileNameFormat = "YYYYMMDDHHMMSS_name.sql"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir and reports all problems at once
// so a CI run lists each broken migration, not just the first.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected %s)", name, fileNameFormat))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkAnnotations(name, string(body)))
	}
	return errs
}

func checkAnnotations(name, txt string) error {
	upAt := strings.Index(txt, markUp)
	downAt := strings.Index(txt, markDown)

	var errs error
	if upAt < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", name, markUp))
	}
	if downAt < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", name, markDown))
	}
	if upAt >= 0 && downAt >= 0 {
		if downAt < upAt {
			errs = multierr.Append(errs, fmt.Errorf("migration %q declares Down before Up", name))
		} else if strings.TrimSpace(txt[upAt+len(markUp):downAt]) == "" {
			errs = multierr.Append(errs, fmt.Errorf("migration %q has an empty Up section", name))
		}
	}
	if strings.Count(txt, markStmtBegin) != strings.Count(txt, markStmtEnd) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name))
	}
	return errs
}
