// Package auditlog keeps an append-only SQLite record of every entry
// modification primitive applied by the directory server, distinct from
// (and never used for) the entries themselves: spec.md's persistence
// Non-goal excludes the entry store, not an audit trail of what
// happened to it. Schema setup uses golang-migrate driving embedded
// migrations against modernc.org/sqlite.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/majewsky-labs/lloadd/pkg/config"
)

// Outcome describes whether a recorded modification succeeded or
// failed, kept as a plain string column so new outcomes never require a
// migration.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one audit log row: an applied (or attempted) modification to
// a single DN.
type Entry struct {
	ID         int64
	RecordedAt time.Time
	TraceID    string
	Operation  string
	DN         string
	Outcome    Outcome
	Detail     string
}

// Store is the SQLite-backed audit log.
type Store struct {
	db  *sql.DB
	cfg config.AuditLogConfig
}

// NewStore creates a Store bound to cfg. Initialize must be called
// before use.
func NewStore(cfg config.AuditLogConfig) *Store {
	return &Store{cfg: cfg}
}

// Initialize opens the database file, configures the connection pool,
// and runs embedded migrations.
func (s *Store) Initialize(ctx context.Context) error {
	dataDir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("auditlog: creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("auditlog: opening database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(s.cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("auditlog: connecting to database: %w", err)
	}
	s.db = db

	srcDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("auditlog: creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", srcDriver, fmt.Sprintf("sqlite://%s", s.cfg.Path))
	if err != nil {
		return fmt.Errorf("auditlog: initializing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("auditlog: running migrations: %w", err)
	}

	slog.Info("Audit log database initialized", "path", s.cfg.Path)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one audit entry. RecordedAt and ID are assigned by the
// database and ignored on the input value.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (trace_id, operation, dn, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		e.TraceID, e.Operation, e.DN, string(e.Outcome), e.Detail,
	)
	if err != nil {
		return fmt.Errorf("auditlog: recording entry: %w", err)
	}
	return nil
}

// Recent returns the most recent audit entries, newest first, up to
// limit rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, trace_id, operation, dn, outcome, detail
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: querying recent entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.TraceID, &e.Operation, &e.DN, &outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("auditlog: scanning entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: iterating entries: %w", err)
	}
	return entries, nil
}

// ForDN returns the audit entries recorded against a single DN, newest
// first, up to limit rows.
func (s *Store) ForDN(ctx context.Context, dn string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, trace_id, operation, dn, outcome, detail
		 FROM audit_log WHERE dn = ? ORDER BY id DESC LIMIT ?`, dn, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: querying entries for dn: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.TraceID, &e.Operation, &e.DN, &outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("auditlog: scanning entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: iterating entries: %w", err)
	}
	return entries, nil
}
