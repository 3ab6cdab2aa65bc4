package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/docstore"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PAGES_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PAGES_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	conn, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := resetPublicSchema(ctx, conn); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return conn, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	conn, ctx := openTestDB(t)
	migrations := os.DirFS(filepath.Join("..", "..", "db", "migrations"))

	if err := ApplyMigrations(ctx, conn, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := applyDownMigrations(ctx, conn, migrations); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, conn, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestPostgresStoreDocumentLifecycle(t *testing.T) {
	conn, ctx := openTestDB(t)
	embedded, err := MigrationSource("")
	if err != nil {
		t.Fatalf("MigrationSource() error = %v", err)
	}
	if err := ApplyMigrations(ctx, conn, embedded); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(conn)

	if _, err := s.Put(ctx, "root", doc.Patch{}.WithTitle("Instructions").WithJob("job").WithPosition(0)); err != nil {
		t.Fatalf("put root: %v", err)
	}
	if _, err := s.Put(ctx, "a", doc.Patch{}.WithTitle("A").WithJob("job").WithPosition(100).WithParent(doc.Ref("root"))); err != nil {
		t.Fatalf("put a: %v", err)
	}
	updated, err := s.Put(ctx, "a", doc.Patch{}.WithHTML("<p>hi</p>"))
	if err != nil {
		t.Fatalf("put html: %v", err)
	}
	if updated["title"] != "A" || updated["folderId"] != "root" || updated["version"] != 2 {
		t.Fatalf("partial put lost fields: %v", updated)
	}

	moved, err := s.Put(ctx, "a", doc.Patch{}.WithParent(nil))
	if err != nil {
		t.Fatalf("put parent: %v", err)
	}
	if moved["folderId"] != nil {
		t.Fatalf("expected top level, got %v", moved["folderId"])
	}

	list, err := s.ListByScope(ctx, "job")
	if err != nil || len(list) != 2 || list[0]["id"] != "root" {
		t.Fatalf("unexpected list %v err=%v", list, err)
	}

	if _, err := s.Delete(ctx, "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func resetPublicSchema(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, conn *sql.DB, migrations fs.FS) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		name    string
	}
	downs := make([]migration, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		downs = append(downs, migration{version: match[1], name: entry.Name()})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := fs.ReadFile(migrations, down.name)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}
	return nil
}
