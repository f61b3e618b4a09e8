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
// Package sqlstore implements cluster.Store on a relational database. It lets
// agentctl manage agent code against a local SQLite file or a shared
// PostgreSQL/MySQL database instead of a live Kubernetes cluster.
//
// Owner references are enforced explicitly: deleting a resource deletes its
// dependents in the same transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/lib/pq"              // registers "postgres"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config configures a SQL store.
type Config struct {
	Driver string // sqlite3, postgres, mysql
	DSN    string // file path for sqlite3, connection string otherwise
	Logger *zap.Logger
	Tracer observability.Tracer
}

// Store is a cluster.Store backed by database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	tracer  observability.Tracer
	now     func() time.Time
}

type dialect struct {
	driver string
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expand fills dialect-specific type placeholders in migration scripts.
func (d dialect) expand(script string) string {
	large := "TEXT"
	if d.driver == DriverMySQL {
		large = "LONGTEXT"
	}
	return strings.ReplaceAll(script, "{{LARGE_TEXT}}", large)
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	switch config.Driver {
	case "", "sqlite":
		config.Driver = DriverSQLite
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported database driver %q (expected sqlite3, postgres, or mysql)", config.Driver)
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// A single connection keeps :memory: databases coherent and
		// serializes writers on the file lock.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}

	s := &Store{
		db:      db,
		dialect: dialect{driver: config.Driver},
		logger:  config.Logger,
		tracer:  config.Tracer,
		now:     time.Now,
	}

	m := &migrator{db: db, dialect: s.dialect, tracer: s.tracer}
	applied, err := m.migrateUp(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if applied > 0 {
		s.logger.Debug("Applied schema migrations", zap.Int("count", applied), zap.String("driver", config.Driver))
	}
	return s, nil
}

const selectColumns = "kind, namespace, name, uid, resource_version, labels, annotations, data, owners, status, created_at"

// Get implements cluster.Store.
func (s *Store) Get(ctx context.Context, kind, namespace, name string) (*cluster.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind("SELECT "+selectColumns+" FROM resources WHERE kind = ? AND namespace = ? AND name = ?"),
		kind, namespace, name)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cluster.NotFound(kind, namespace, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s/%s: %w", kind, namespace, name, err)
	}
	return r, nil
}

// List implements cluster.Store. Label matching happens after the query.
func (s *Store) List(ctx context.Context, kind, namespace string, selector cluster.Selector) ([]*cluster.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind("SELECT "+selectColumns+" FROM resources WHERE kind = ? AND namespace = ? ORDER BY name"),
		kind, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s: %w", kind, namespace, err)
	}
	defer rows.Close()

	var out []*cluster.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		if selector.Matches(r.Labels) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// Create implements cluster.Store.
func (s *Store) Create(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	obj := r.DeepCopy()
	if obj.UID == "" {
		obj.UID = uuid.New().String()
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now().UTC()
	}
	obj.ResourceVersion = "1"

	cols, err := encodeColumns(obj)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		s.dialect.rebind("SELECT COUNT(*) FROM resources WHERE kind = ? AND namespace = ? AND name = ?"),
		obj.Kind, obj.Namespace, obj.Name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing %s: %w", obj.Name, err)
	}
	if exists > 0 {
		return nil, cluster.AlreadyExists(obj.Kind, obj.Namespace, obj.Name)
	}

	_, err = tx.ExecContext(ctx,
		s.dialect.rebind("INSERT INTO resources ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		obj.Kind, obj.Namespace, obj.Name, obj.UID, int64(1),
		cols.labels, cols.annotations, cols.data, cols.owners, cols.status,
		obj.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s/%s: %w", obj.Kind, obj.Namespace, obj.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return obj, nil
}

// Update implements cluster.Store. The WHERE clause carries the expected
// resource version so concurrent writers from other processes are detected
// by the database itself.
func (s *Store) Update(ctx context.Context, r *cluster.Resource) (*cluster.Resource, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		s.dialect.rebind("SELECT "+selectColumns+" FROM resources WHERE kind = ? AND namespace = ? AND name = ?"),
		r.Kind, r.Namespace, r.Name)
	current, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cluster.NotFound(r.Kind, r.Namespace, r.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s/%s: %w", r.Kind, r.Namespace, r.Name, err)
	}

	expected := current.ResourceVersion
	if r.ResourceVersion != "" {
		expected = r.ResourceVersion
	}
	if expected != current.ResourceVersion {
		return nil, &cluster.ConflictError{
			Kind: r.Kind, Namespace: r.Namespace, Name: r.Name,
			ExpectedVersion: expected, ActualVersion: current.ResourceVersion,
		}
	}
	expectedNum, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid resource version %q: %w", expected, err)
	}

	next := r.DeepCopy()
	next.UID = current.UID
	next.CreatedAt = current.CreatedAt
	next.Status = current.Status
	next.ResourceVersion = strconv.FormatInt(expectedNum+1, 10)

	cols, err := encodeColumns(next)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		s.dialect.rebind(`UPDATE resources SET labels = ?, annotations = ?, data = ?, owners = ?, resource_version = ?
			WHERE kind = ? AND namespace = ? AND name = ? AND resource_version = ?`),
		cols.labels, cols.annotations, cols.data, cols.owners, expectedNum+1,
		r.Kind, r.Namespace, r.Name, expectedNum)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s %s/%s: %w", r.Kind, r.Namespace, r.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &cluster.ConflictError{Kind: r.Kind, Namespace: r.Namespace, Name: r.Name, ExpectedVersion: expected}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// SetStatus replaces a resource's status. It stands in for the controller
// when the SQL backend is used without one.
func (s *Store) SetStatus(ctx context.Context, kind, namespace, name string, status cluster.ResourceStatus) error {
	encoded, err := json.Marshal(status)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind("UPDATE resources SET status = ?, resource_version = resource_version + 1 WHERE kind = ? AND namespace = ? AND name = ?"),
		string(encoded), kind, namespace, name)
	if err != nil {
		return fmt.Errorf("failed to set status on %s %s/%s: %w", kind, namespace, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cluster.NotFound(kind, namespace, name)
	}
	return nil
}

// Delete implements cluster.Store.
func (s *Store) Delete(ctx context.Context, kind, namespace, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		s.dialect.rebind("SELECT "+selectColumns+" FROM resources WHERE kind = ? AND namespace = ? AND name = ?"),
		kind, namespace, name)
	obj, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cluster.NotFound(kind, namespace, name)
	}
	if err != nil {
		return err
	}

	if err := s.deleteCascade(ctx, tx, obj); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteCollection implements cluster.Store.
func (s *Store) DeleteCollection(ctx context.Context, kind, namespace string, selector cluster.Selector) (int, error) {
	victims, err := s.List(ctx, kind, namespace, selector)
	if err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, obj := range victims {
		if err := s.deleteCascade(ctx, tx, obj); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(victims), nil
}

// deleteCascade deletes obj and, breadth-first, everything it owns. Owner
// lookups use a LIKE prefilter on the JSON column and are confirmed after
// decoding.
func (s *Store) deleteCascade(ctx context.Context, tx *sql.Tx, obj *cluster.Resource) error {
	queue := []*cluster.Resource{obj}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if _, err := tx.ExecContext(ctx,
			s.dialect.rebind("DELETE FROM resources WHERE kind = ? AND namespace = ? AND name = ?"),
			cur.Kind, cur.Namespace, cur.Name); err != nil {
			return fmt.Errorf("failed to delete %s %s/%s: %w", cur.Kind, cur.Namespace, cur.Name, err)
		}

		rows, err := tx.QueryContext(ctx,
			s.dialect.rebind("SELECT "+selectColumns+" FROM resources WHERE namespace = ? AND owners LIKE ?"),
			cur.Namespace, "%"+cur.UID+"%")
		if err != nil {
			return fmt.Errorf("failed to find dependents of %s: %w", cur.Name, err)
		}
		for rows.Next() {
			dep, err := scanResource(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if dep.OwnedBy(cur.UID) {
				queue = append(queue, dep)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close implements cluster.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

type encodedColumns struct {
	labels, annotations, data, owners, status string
}

func encodeColumns(r *cluster.Resource) (encodedColumns, error) {
	var cols encodedColumns
	fields := []struct {
		dst *string
		v   interface{}
	}{
		{&cols.labels, nonNilMap(r.Labels)},
		{&cols.annotations, nonNilMap(r.Annotations)},
		{&cols.data, nonNilMap(r.Data)},
		{&cols.owners, nonNilOwners(r.Owners)},
		{&cols.status, r.Status},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return cols, fmt.Errorf("failed to encode %s: %w", r.Name, err)
		}
		*f.dst = string(b)
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (*cluster.Resource, error) {
	var (
		r                                          cluster.Resource
		rv                                         int64
		labels, annotations, data, owners, status string
		createdAt                                  string
	)
	if err := row.Scan(&r.Kind, &r.Namespace, &r.Name, &r.UID, &rv,
		&labels, &annotations, &data, &owners, &status, &createdAt); err != nil {
		return nil, err
	}
	r.ResourceVersion = strconv.FormatInt(rv, 10)

	targets := []struct {
		src string
		dst interface{}
	}{
		{labels, &r.Labels},
		{annotations, &r.Annotations},
		{data, &r.Data},
		{owners, &r.Owners},
		{status, &r.Status},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.src), t.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", r.Name, err)
		}
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for %s: %w", r.Name, err)
	}
	r.CreatedAt = created
	return &r, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilOwners(o []cluster.OwnerReference) []cluster.OwnerReference {
	if o == nil {
		return []cluster.OwnerReference{}
	}
	return o
}

var _ cluster.Store = (*Store)(nil)
