// Package migrations exposes the connector schema per SQL dialect and
// registers it with a go-persistence-bun client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	connectors "github.com/goliatone/go-connectors"
	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath   = "data/sql/migrations"
	sqliteDir  = "sqlite"
	upPattern  = "*.up.sql"
	sourceName = "go-connectors"
)

type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Plan struct {
	Label   string
	Targets []string
	Sources []Source
}

type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Plan)

func WithLabel(label string) Option {
	return func(p *Plan) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			p.Label = trimmed
		}
	}
}

// WithTargets limits registration to the named dialects.
func WithTargets(dialects ...string) Option {
	return func(p *Plan) {
		if targets := normalizeDialects(dialects); len(targets) > 0 {
			p.Targets = targets
		}
	}
}

func WithSources(sources ...Source) Option {
	return func(p *Plan) {
		kept := make([]Source, 0, len(sources))
		for _, source := range sources {
			dialect := normalizeDialect(source.Dialect)
			if dialect == "" || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			kept = append(kept, source)
		}
		if len(kept) > 0 {
			p.Sources = kept
		}
	}
}

// Sources resolves the postgres and sqlite migration trees from root, or from
// the embedded schema when root is nil.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = connectors.GetMigrationsFS()
	}
	postgresFS, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, sqliteDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: postgresFS},
		{Dialect: DialectSQLite, Path: rootPath + "/" + sqliteDir, FS: sqliteFS},
	}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, upPattern)
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no %s files", source.Path, upPattern)
		}
	}
	return sources, nil
}

// Register calls registerFn once for every source whose dialect is targeted.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Plan, error) {
	plan := Plan{
		Label:   sourceName,
		Targets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}
	if registerFn == nil {
		return plan, fmt.Errorf("migrations: register function is required")
	}
	if len(plan.Sources) == 0 {
		sources, err := Sources(nil)
		if err != nil {
			return plan, err
		}
		plan.Sources = sources
	}
	for _, source := range plan.Sources {
		if !slices.Contains(plan.Targets, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, plan.Label, source.FS); err != nil {
			return plan, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
	}
	return plan, nil
}

// Apply registers the tree for dialect with client and runs pending
// migrations.
func Apply(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	dialect = normalizeDialect(dialect)
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	if _, err := Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, WithTargets(dialect)); err != nil {
		return err
	}
	return client.Migrate(ctx)
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pgx", "pq":
		return DialectPostgres
	}
	return ""
}

func normalizeDialect(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = normalizeDialect(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
