// Package postgres persists definitions in a PostgreSQL table through
// database/sql and lib/pq. Each definition is one row keyed by id.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/storage"
)

// DefaultTable is used when Options.Table is empty.
const DefaultTable = "calendar_events"

// Options configures a Store.
type Options struct {
	// Table overrides the table name. Tests use it to isolate runs.
	Table  string
	Logger *slog.Logger
}

// Store implements storage.Storage and storage.Incremental.
type Store struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Open connects to dsn, checks the connection and migrates the schema.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, unavailable("failed to open database connection", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("database connection failed", err)
	}

	s := New(db, opts)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. The schema is not touched.
func New(db *sql.DB, opts Options) *Store {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, table: pq.QuoteIdentifier(opts.Table), logger: opts.Logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the table and its indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("running database migrations", "table", s.table)

	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                 TEXT PRIMARY KEY,
			title              TEXT NOT NULL DEFAULT '',
			description        TEXT NOT NULL DEFAULT '',
			location           TEXT NOT NULL DEFAULT '',
			notes              TEXT NOT NULL DEFAULT '',
			start_date         DATE NOT NULL,
			end_date           DATE NOT NULL,
			start_time         TEXT,
			end_time           TEXT,
			is_all_day         BOOLEAN NOT NULL DEFAULT FALSE,
			recurrence_kind    TEXT NOT NULL DEFAULT 'none',
			recurrence_rule    TEXT NOT NULL DEFAULT '',
			recurrence_end     DATE,
			recurrence_count   INTEGER NOT NULL DEFAULT 0,
			is_cancelled       BOOLEAN NOT NULL DEFAULT FALSE,
			override_parent_id TEXT,
			override_date      DATE,
			category_id        TEXT NOT NULL DEFAULT '',
			color              TEXT NOT NULL DEFAULT '',
			event_kind         TEXT NOT NULL DEFAULT '',
			reminder_offsets   INTEGER[],
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (override_parent_id, override_date)`,
			pq.QuoteIdentifier(strings.Trim(s.table, `"`)+"_override_idx"), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("migration failed", "table", s.table, "error", err)
			return unavailable("failed to migrate schema", err)
		}
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]event.Definition, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at ASC, id ASC`, columnList, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("failed to query definitions", err)
	}
	defer rows.Close()

	var defs []event.Definition
	for rows.Next() {
		res := decodeRow(rows)
		if res.IsError() {
			// One unreadable row must not hide the rest of the calendar.
			s.logger.Warn("skipping unreadable definition row", "error", res.Error())
			continue
		}
		d := res.MustGet()
		if err := d.Recurrence.Err(); err != nil {
			s.logger.Warn("recurrence rule degraded to fallback",
				"id", d.ID,
				"rule", d.Recurrence.String(),
				"error", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read definitions", err)
	}
	return defs, nil
}

func (s *Store) SaveAll(ctx context.Context, defs []event.Definition) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
			return err
		}
		return s.upsertTx(ctx, tx, defs)
	})
}

func (s *Store) Upsert(ctx context.Context, defs ...event.Definition) error {
	for _, d := range defs {
		if d.ID == "" {
			return &storage.Error{Type: storage.ErrInvalidInput, Message: "definition has no id"}
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.upsertTx(ctx, tx, defs)
	})
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return unavailable("failed to delete definitions", err)
	}
	return nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, defs []event.Definition) error {
	if len(defs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range defs {
		args, err := encodeRow(d)
		if err != nil {
			return fmt.Errorf("definition %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("definition %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) upsertQuery() string {
	cols := strings.Split(columnList, ", ")
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "id" && c != "created_at" {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
		s.table, columnList, strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return unavailable("transaction failed", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit transaction", err)
	}
	return nil
}

func unavailable(msg string, err error) error {
	return &storage.Error{Type: storage.ErrUnavailable, Message: msg, Err: err}
}
