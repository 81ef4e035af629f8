package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrationFilename(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	name, err := MigrationFilename(" Add Plan-Trial Days ", now)
	require.NoError(t, err)
	require.Equal(t, "20260304050607_add_plan_trial_days.sql", name)

	_, err = MigrationFilename("---", now)
	require.Error(t, err)
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "add_invoice_notes", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260304050607_add_invoice_notes.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "-- +goose Up")
	require.Contains(t, string(body), "-- rollback add_invoice_notes")
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "other_name", now)
	require.ErrorContains(t, err, "already exists")
}

func TestValidateFSRejectsBadMigrations(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":     {"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"missing down": {"20260101000000_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down first":   {"20260101000000_init.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"empty":        {"README.md": {Data: []byte("notes")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateFS(fsys))
		})
	}

	require.NoError(t, ValidateFS(fstest.MapFS{
		"20260101000000_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
	}))
}
