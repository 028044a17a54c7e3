package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ReturnsPostgresAndSQLite(t *testing.T) {
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	seen := map[string]bool{}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", source.Dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migrations", source.Dialect)
		}
		seen[source.Dialect] = true
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("expected both dialects, got %v", seen)
	}
}

func TestSources_RejectsTreeWithoutUpFiles(t *testing.T) {
	root := fstest.MapFS{
		"data/sql/migrations/00001_x.down.sql":        {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_x.down.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := Sources(root); err == nil {
		t.Fatalf("expected error for tree without up migrations")
	}
}

func TestRegister_HonoursTargets(t *testing.T) {
	var calls []string
	plan, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect+"/"+label)
		return nil
	}, WithTargets(" SQLite ", "sqlite"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != "sqlite/go-connectors" {
		t.Fatalf("unexpected registration calls %v", calls)
	}
	if len(plan.Targets) != 1 {
		t.Fatalf("expected deduplicated targets, got %v", plan.Targets)
	}
}

func TestRegister_RequiresFunction(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error without register function")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":  DialectSQLite,
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		"mysql":    "",
	}
	for driver, want := range cases {
		if got := DialectForDriver(driver); got != want {
			t.Fatalf("driver %q: expected %q, got %q", driver, want, got)
		}
	}
}

func TestSQLiteSchema_ApplyConstraintsAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:migrations-schema-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()

	sqliteFS := sqliteSource(t)
	if err := execSQLMigration(ctx, db, sqliteFS, "00001_connector_schema.up.sql"); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	insertCredential := `INSERT INTO connector_credentials
		(id, organization_id, provider, encrypted_payload, encryption_key_id)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertCredential, "c1", "org-1", "dropbox", []byte("x"), "app-key"); err != nil {
		t.Fatalf("insert credential: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertCredential, "c2", "org-1", "dropbox", []byte("y"), "app-key"); err == nil {
		t.Fatalf("expected unique violation for second (organization, provider) row")
	}
	if _, err := db.ExecContext(ctx, insertCredential, "c3", "org-1", "github", []byte("z"), "app-key"); err == nil {
		t.Fatalf("expected check violation for unsupported provider")
	}

	insertAudit := `INSERT INTO connector_audit_events (id, seq, action, occurred_at, hash) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertAudit, "a1", 1, "oauth_state_mismatch", "2026-01-01T00:00:00Z", "h1"); err != nil {
		t.Fatalf("insert audit event: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertAudit, "a2", 1, "oauth_state_mismatch", "2026-01-01T00:00:01Z", "h2"); err == nil {
		t.Fatalf("expected unique violation for duplicate seq")
	}
	if _, err := db.ExecContext(ctx, `UPDATE connector_audit_events SET hash = 'x' WHERE id = 'a1'`); err == nil {
		t.Fatalf("expected audit update to be rejected")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM connector_audit_events WHERE id = 'a1'`); err == nil {
		t.Fatalf("expected audit delete to be rejected")
	}

	if err := execSQLMigration(ctx, db, sqliteFS, "00001_connector_schema.down.sql"); err != nil {
		t.Fatalf("rollback schema: %v", err)
	}
	var remaining int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'connector_%'`,
	).Scan(&remaining); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected connector tables dropped, got %d", remaining)
	}
}

func TestSchemas_DeclareUniqueKeys(t *testing.T) {
	for _, source := range mustSources(t) {
		content, err := fs.ReadFile(source.FS, "00001_connector_schema.up.sql")
		if err != nil {
			t.Fatalf("read %s schema: %v", source.Dialect, err)
		}
		text := string(content)
		for _, fragment := range []string{"UNIQUE (organization_id, provider)", "UNIQUE (user_id, organization_id)"} {
			if !strings.Contains(text, fragment) {
				t.Fatalf("%s schema missing %q", source.Dialect, fragment)
			}
		}
	}
}

func mustSources(t *testing.T) []Source {
	t.Helper()
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	return sources
}

func sqliteSource(t *testing.T) fs.FS {
	t.Helper()
	for _, source := range mustSources(t) {
		if source.Dialect == DialectSQLite {
			return source.FS
		}
	}
	t.Fatalf("sqlite source not found")
	return nil
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
