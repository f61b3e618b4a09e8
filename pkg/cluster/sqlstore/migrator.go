// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teradata-labs/agentctl/pkg/observability"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one schema step loaded from migrations/NNN_description.sql.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// migrator applies embedded migrations in order and records them in
// schema_migrations.
type migrator struct {
	db      *sql.DB
	dialect dialect
	tracer  observability.Tracer
}

func loadMigrations(d dialect) ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, desc, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected NNN_description.sql", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: invalid version: %w", name, err)
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(desc, "_", " "),
			Statements:  splitStatements(d.expand(string(body))),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// splitStatements splits a script on semicolons and drops comment-only
// fragments. Migration files must not contain semicolons inside literals.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// migrateUp applies all pending migrations.
func (m *migrator) migrateUp(ctx context.Context) (int, error) {
	ctx, span := m.tracer.StartSpan(ctx, "sqlstore.migrate_up")
	defer m.tracer.EndSpan(span)

	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR(255) NOT NULL,
		applied_at VARCHAR(64) NOT NULL
	)`); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttribute("current_version", current)

	migrations, err := loadMigrations(m.dialect)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			span.RecordError(err)
			return applied, fmt.Errorf("migration %d failed: %w", mig.Version, err)
		}
		applied++
	}
	span.SetAttribute("migrations_applied", applied)
	return applied, nil
}

func (m *migrator) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := m.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (m *migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range mig.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", mig.Description, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		m.dialect.rebind("INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)"),
		mig.Version, mig.Description, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}
