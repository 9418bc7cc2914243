// Package sqlite implements the repository interfaces on SQLite using the
// pure-Go modernc.org/sqlite driver (no cgo).
//
// The schema carries the integrity rules the services rely on: UNIQUE email
// and username on accounts, UNIQUE (account_id, jam_session_id) on
// participations, and ON DELETE CASCADE from jam sessions to their
// participations and messages. Violations come back as apperror.Conflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/jamspace/internal/apperror"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB owns the connection pool. The per-table stores returned by Accounts,
// Jams, Participations and Messages share it.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time, and every ":memory:" connection is a
	// separate database, so the pool is pinned to a single connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable; used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Accounts() *AccountDB             { return &AccountDB{conn: db.conn} }
func (db *DB) Jams() *JamDB                     { return &JamDB{conn: db.conn} }
func (db *DB) Participations() *ParticipationDB { return &ParticipationDB{conn: db.conn} }
func (db *DB) Messages() *MessageDB             { return &MessageDB{conn: db.conn} }

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			account_id       TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
			instruments      TEXT NOT NULL DEFAULT '',
			genres           TEXT NOT NULL DEFAULT '',
			skill_level      TEXT NOT NULL DEFAULT '',
			bio              TEXT NOT NULL DEFAULT '',
			location         TEXT NOT NULL DEFAULT '',
			avatar_key       TEXT NOT NULL DEFAULT '',
			avatar_url       TEXT NOT NULL DEFAULT '',
			instagram_handle TEXT NOT NULL DEFAULT '',
			tiktok_handle    TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS jam_sessions (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL,
			genre            TEXT NOT NULL,
			skill_level      TEXT NOT NULL,
			location         TEXT NOT NULL,
			date_time        DATETIME NOT NULL,
			max_participants INTEGER NOT NULL,
			created_by       TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_jam_sessions_date_time ON jam_sessions(date_time);
		CREATE INDEX IF NOT EXISTS idx_jam_sessions_created_by ON jam_sessions(created_by);
	`)
	if err != nil {
		return fmt.Errorf("creating jam_sessions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS participations (
			id             TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			jam_session_id TEXT NOT NULL REFERENCES jam_sessions(id) ON DELETE CASCADE,
			joined_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (account_id, jam_session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_participations_jam ON participations(jam_session_id);
	`)
	if err != nil {
		return fmt.Errorf("creating participations table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id             TEXT PRIMARY KEY,
			jam_session_id TEXT NOT NULL REFERENCES jam_sessions(id) ON DELETE CASCADE,
			sender_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			text           TEXT NOT NULL,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_messages_jam_created ON messages(jam_session_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE (or PRIMARY KEY) constraint
// failure, and returns the "table.column" list SQLite names in the message,
// e.g. "accounts.username".
func uniqueViolation(err error) (string, bool) {
	msg, ok := constraintMessage(err)
	if !ok {
		return "", false
	}
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	cols := msg[i+len(marker):]
	if j := strings.Index(cols, " ("); j >= 0 {
		cols = cols[:j]
	}
	return cols, true
}

// foreignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func foreignKeyViolation(err error) bool {
	msg, ok := constraintMessage(err)
	return ok && strings.Contains(msg, "FOREIGN KEY constraint failed")
}

// constraintMessage returns the driver message when err is any
// SQLITE_CONSTRAINT result, primary or extended.
func constraintMessage(err error) (string, bool) {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	return se.Error(), true
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// conflictFor maps a unique violation on known columns to apperror.Conflict.
func conflictFor(resource string, err error, columns map[string]string) error {
	cols, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	for needle, field := range columns {
		if strings.Contains(cols, needle) {
			return apperror.Conflict(resource, field)
		}
	}
	return nil
}
