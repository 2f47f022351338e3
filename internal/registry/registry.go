// Package registry provides the SQLite-backed device registry: which devices
// exist, when they last polled, and what they were last served. Registry
// writes are advisory; a registry failure never fails a render or a serve.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS devices (
	id            TEXT PRIMARY KEY,
	created_at    DATETIME NOT NULL,
	last_seen     DATETIME,
	last_rendered DATETIME,
	last_etag     TEXT NOT NULL DEFAULT ''
);
`

// DeviceRow represents a row in the devices table.
type DeviceRow struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	LastRendered *time.Time `json:"last_rendered,omitempty"`
	LastETag     string     `json:"last_etag,omitempty"`
}

// DeviceRegistry defines the registry operations. Consumers depend on this
// interface rather than the concrete *DB to facilitate testing.
type DeviceRegistry interface {
	Ensure(id string, now time.Time) error
	MarkSeen(id, etag string, now time.Time) error
	MarkRendered(id string, now time.Time) error
	Get(id string) (*DeviceRow, error)
	List() ([]DeviceRow, error)
	Close() error
}

// Verify *DB satisfies DeviceRegistry at compile time.
var _ DeviceRegistry = (*DB)(nil)

// DB wraps a sql.DB with registry operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ensure creates the device row if it does not exist yet. Devices are
// created implicitly on first write and never deleted here.
func (db *DB) Ensure(id string, now time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO devices (id, created_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, now.UTC())
	if err != nil {
		return fmt.Errorf("registry: ensure device: %w", err)
	}
	return nil
}

// MarkSeen records a frame poll: the device exists, was seen now, and was
// served the given fingerprint.
func (db *DB) MarkSeen(id, etag string, now time.Time) error {
	if err := db.Ensure(id, now); err != nil {
		return err
	}
	_, err := db.conn.Exec(`
		UPDATE devices SET last_seen = ?, last_etag = ? WHERE id = ?
	`, now.UTC(), etag, id)
	if err != nil {
		return fmt.Errorf("registry: mark seen: %w", err)
	}
	return nil
}

// MarkRendered records a successful render for the device.
func (db *DB) MarkRendered(id string, now time.Time) error {
	if err := db.Ensure(id, now); err != nil {
		return err
	}
	_, err := db.conn.Exec(`
		UPDATE devices SET last_rendered = ? WHERE id = ?
	`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("registry: mark rendered: %w", err)
	}
	return nil
}

// Get returns one device row, or nil when the device is unknown.
func (db *DB) Get(id string) (*DeviceRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, created_at, last_seen, last_rendered, last_etag
		FROM devices WHERE id = ?
	`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get device: %w", err)
	}
	return d, nil
}

// List returns all device rows ordered by id.
func (db *DB) List() ([]DeviceRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, created_at, last_seen, last_rendered, last_etag
		FROM devices ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: list devices: %w", err)
	}
	defer rows.Close()

	out := []DeviceRow{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: scan device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*DeviceRow, error) {
	var d DeviceRow
	var lastSeen, lastRendered sql.NullTime
	if err := s.Scan(&d.ID, &d.CreatedAt, &lastSeen, &lastRendered, &d.LastETag); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	if lastRendered.Valid {
		t := lastRendered.Time
		d.LastRendered = &t
	}
	return &d, nil
}
