// Package xplstore is a diagnostics-only sighting log: every message the
// Hub dispatches and every message the Bridge receives on its `in` side
// is recorded, together with the hub/bridge client tables, so that
// cmd/xplmcp can answer "what have we seen" without holding it in
// memory. It is never consulted by the protocol
// itself (spec.md §9 Design Notes).
package xplstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection recording xPL message sightings and
// the hub/bridge client tables.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path, applying its schema.
// An empty path defaults to "$XDG_CONFIG_HOME/gxpl/gxpl.db" when that
// variable is set, else "~/.config/gxpl/gxpl.db" (teacher's
// pkg/db.Open layout, generalized past one fixed application name).
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("xplstore: default path: %w", err)
		}
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("xplstore: expand home: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("xplstore: create directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("xplstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("xplstore: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS sightings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	seen_at_ms  INTEGER NOT NULL,
	msg_type    TEXT NOT NULL,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	class       TEXT NOT NULL,
	schema_type TEXT NOT NULL,
	broadcast   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS hub_clients (
	port         INTEGER PRIMARY KEY,
	ip           TEXT NOT NULL,
	ident        TEXT NOT NULL,
	interval_sec INTEGER NOT NULL,
	last_seen_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bridge_clients (
	addr               TEXT PRIMARY KEY,
	ident              TEXT NOT NULL,
	heartbeat_period_s INTEGER NOT NULL,
	last_seen_ms       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sightings_seen_at ON sightings(seen_at_ms);
CREATE INDEX IF NOT EXISTS idx_sightings_source ON sightings(source);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaV1)
	if err != nil {
		return fmt.Errorf("xplstore: migrate: %w", err)
	}
	return nil
}

// Sighting is one recorded inbound message (diagnostics only).
type Sighting struct {
	SeenAtMs   int64
	MsgType    string
	Source     string
	Target     string
	Class      string
	SchemaType string
	Broadcast  bool
}

// RecordSighting inserts one row. Failures are the caller's to log;
// xplstore never panics or blocks the protocol path on a write error.
func (s *Store) RecordSighting(ctx context.Context, sighting Sighting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sightings (seen_at_ms, msg_type, source, target, class, schema_type, broadcast)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sighting.SeenAtMs, sighting.MsgType, sighting.Source, sighting.Target,
		sighting.Class, sighting.SchemaType, sighting.Broadcast)
	return err
}

// RecentSightings returns up to limit most recent sightings, newest first.
func (s *Store) RecentSightings(ctx context.Context, limit int) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seen_at_ms, msg_type, source, target, class, schema_type, broadcast
		FROM sightings ORDER BY seen_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.SeenAtMs, &sg.MsgType, &sg.Source, &sg.Target, &sg.Class, &sg.SchemaType, &sg.Broadcast); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// UpsertHubClient records or updates a hub client row.
func (s *Store) UpsertHubClient(ctx context.Context, port int, ip, ident string, intervalSec int, lastSeenMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hub_clients (port, ip, ident, interval_sec, last_seen_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(port) DO UPDATE SET ip=excluded.ip, ident=excluded.ident,
			interval_sec=excluded.interval_sec, last_seen_ms=excluded.last_seen_ms`,
		port, ip, ident, intervalSec, lastSeenMs)
	return err
}

// DeleteHubClient removes a hub client row (e.g. on hbeat.end or sweep
// eviction).
func (s *Store) DeleteHubClient(ctx context.Context, port int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hub_clients WHERE port = ?`, port)
	return err
}

// HubClient is one row of the hub_clients table.
type HubClient struct {
	Port        int
	IP          string
	Ident       string
	IntervalSec int
	LastSeenMs  int64
}

// ListHubClients returns every currently recorded hub client row.
func (s *Store) ListHubClients(ctx context.Context) ([]HubClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT port, ip, ident, interval_sec, last_seen_ms FROM hub_clients ORDER BY port`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HubClient
	for rows.Next() {
		var c HubClient
		if err := rows.Scan(&c.Port, &c.IP, &c.Ident, &c.IntervalSec, &c.LastSeenMs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertBridgeClient records or updates a bridge client row.
func (s *Store) UpsertBridgeClient(ctx context.Context, addr, ident string, heartbeatPeriodSec int, lastSeenMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_clients (addr, ident, heartbeat_period_s, last_seen_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(addr) DO UPDATE SET ident=excluded.ident,
			heartbeat_period_s=excluded.heartbeat_period_s, last_seen_ms=excluded.last_seen_ms`,
		addr, ident, heartbeatPeriodSec, lastSeenMs)
	return err
}

// DeleteBridgeClient removes a bridge client row.
func (s *Store) DeleteBridgeClient(ctx context.Context, addr string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bridge_clients WHERE addr = ?`, addr)
	return err
}

// BridgeClient is one row of the bridge_clients table.
type BridgeClient struct {
	Addr               string
	Ident              string
	HeartbeatPeriodSec int
	LastSeenMs         int64
}

// ListBridgeClients returns every currently recorded bridge client row.
func (s *Store) ListBridgeClients(ctx context.Context) ([]BridgeClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr, ident, heartbeat_period_s, last_seen_ms FROM bridge_clients ORDER BY addr`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BridgeClient
	for rows.Next() {
		var c BridgeClient
		if err := rows.Scan(&c.Addr, &c.Ident, &c.HeartbeatPeriodSec, &c.LastSeenMs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gxpl", "gxpl.db"), nil
	}
	return filepath.Join(home, ".config", "gxpl", "gxpl.db"), nil
}
