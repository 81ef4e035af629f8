package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// MigrationFilename builds the goose file name for name at version time now.
func MigrationFilename(name string, now time.Time) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(strings.ReplaceAll(safe, " ", "_"), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	filename := fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), safe)
	if !sqlFileRe.MatchString(filename) {
		return "", fmt.Errorf("generated filename %q is not a valid migration name", filename)
	}
	return filename, nil
}

// CreateSQLMigration writes an empty goose migration into dir. The new file
// is picked up by the binary on the next build through the embedded FS.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	filename, err := MigrationFilename(name, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := filename[:14]
	existing, err := filepath.Glob(filepath.Join(dir, version+"_*.sql"))
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("migration version %s already exists: %s", version, existing[0])
	}

	fullpath := filepath.Join(dir, filename)
	label := strings.TrimSuffix(filename[15:], ".sql")
	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, label)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}
