package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migration files are written, relative to the repo
// root. Binaries read the copy embedded below.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the embedded set when dir is empty, otherwise the directory.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

// Migrator applies goose migrations against Postgres.
type Migrator struct {
	provider *goose.Provider
}

func New(db *sql.DB, fsys fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Embedded()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration and returns the versions it ran.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	return appliedVersions(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (int64, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose down: %w", err)
	}
	if result == nil || result.Source == nil {
		return 0, nil
	}
	return result.Source.Version, nil
}

// Status lists every known migration with whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, Status{
			Version: row.Source.Version,
			Path:    row.Source.Path,
			Applied: row.State == goose.StateApplied,
		})
	}
	return out, nil
}

// MigrateTo moves the schema up or down until target is the current version.
func (m *Migrator) MigrateTo(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		_, err = m.provider.UpTo(ctx, version)
	case current > version:
		_, err = m.provider.DownTo(ctx, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return nil
}

type Status struct {
	Version int64
	Path    string
	Applied bool
}

func appliedVersions(results []*goose.MigrationResult) []int64 {
	versions := make([]int64, 0, len(results))
	for _, r := range results {
		if r != nil && r.Source != nil {
			versions = append(versions, r.Source.Version)
		}
	}
	return versions
}
