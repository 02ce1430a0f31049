// Package repository is the durable store for conversation history, pending
// confirmations, and production entities. It runs on SQLite or Postgres.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wrapshot/agent/internal/domain"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements the message, confirmation and entity stores on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open returns a store for the configured driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "sqlite3", "":
		return NewSQLiteStore(dsn)
	case "postgres", "pgx":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return newStore(db, dialectSQLite)
}

// NewPostgresStore creates a new Postgres store using the pgx driver.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required for postgres driver")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return newStore(db, dialectPostgres)
}

func newStore(db *sql.DB, d dialect) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: d}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// migrate runs database migrations.
func (s *SQLStore) migrate() error {
	types := strings.NewReplacer(
		"{{serial}}", s.pick("INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY"),
		"{{ts}}", s.pick("TIMESTAMP", "TIMESTAMPTZ"),
	)
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq {{serial}},
			message_id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			user_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at {{ts}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, seq)`,
		`CREATE TABLE IF NOT EXISTS confirmations (
			confirmation_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			actions TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at {{ts}} NOT NULL,
			expires_at {{ts}} NOT NULL,
			resolved_at {{ts}}
		)`,
		`CREATE INDEX IF NOT EXISTS idx_confirmations_status_expires ON confirmations(status, expires_at)`,
		`CREATE TABLE IF NOT EXISTS entities (
			project_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL,
			PRIMARY KEY (project_id, kind, entity_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(types.Replace(m)); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first schema version.
	if err := s.ensureColumn("confirmations", "resolved_by", "ALTER TABLE confirmations ADD COLUMN resolved_by TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLStore) ensureColumn(tableName, columnName, ddl string) error {
	exists, err := s.columnExists(tableName, columnName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.db.Exec(ddl)
	return err
}

func (s *SQLStore) columnExists(tableName, columnName string) (bool, error) {
	if s.dialect == dialectPostgres {
		var n int
		err := s.db.QueryRow(
			`SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`,
			tableName, columnName).Scan(&n)
		return n > 0, err
	}

	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLStore) pick(sqlite, postgres string) string {
	if s.dialect == dialectPostgres {
		return postgres
	}
	return sqlite
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// unavailable marks an infrastructure failure as retryable.
func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
