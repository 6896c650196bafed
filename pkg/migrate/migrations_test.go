package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, Validate(Embedded()))
	require.NoError(t, Validate(Source("migrations")))
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":     {"create_gigs.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"missing down": {"20260301090000_a.sql": {Data: []byte("-- +goose Up\n")}},
		"down first":   {"20260301090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"duplicate": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"empty": {},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, Validate(fsys))
		})
	}
}

func TestGigMigrationEnforcesInvariants(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_gigs.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS gigs",
		"CHECK (lower(client) <> lower(freelancer))",
		"CHECK (amount_paid >= 0 AND amount_paid <= total_amount)",
		"CHECK (duration_ms > 0)",
		"DROP TABLE IF EXISTS gigs",
	} {
		require.Truef(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	path, err := CreateSQLMigration(dir, "Add Gig Memo!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260302100000_add_gig_memo.sql"), path)
	require.NoError(t, Validate(os.DirFS(dir)))

	_, err = CreateSQLMigration(dir, "add gig memo", now)
	require.Error(t, err, "same version must not overwrite")

	_, err = CreateSQLMigration(dir, "!!!", now)
	require.Error(t, err)
}

func TestApplySQLiteSchemaIsIdempotent(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_schema?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, ApplySQLiteSchema(conn))
	require.NoError(t, ApplySQLiteSchema(conn))

	for _, table := range []string{"gigs", "ledger_transfers", "outbox_events", "outbox_dlq"} {
		require.Truef(t, conn.Migrator().HasTable(table), "table %s missing", table)
	}
}
