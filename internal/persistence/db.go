// Package persistence provides SQLite storage for tick results and model
// snapshots.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/world"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		type TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		action_id TEXT NOT NULL DEFAULT '',
		peer_id TEXT NOT NULL DEFAULT '',
		message_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		location_json TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		code TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		action_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS objects (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		activated INTEGER NOT NULL,
		location_json TEXT NOT NULL DEFAULT '',
		saved_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_subject ON events(subject_id);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_tick ON diagnostics(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Reset deletes every stored event, diagnostic, snapshot and meta value.
func (db *DB) Reset() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"events", "diagnostics", "objects", "world_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	slog.Info("store reset")
	return tx.Commit()
}

// eventRow is the stored form of a model.LogEvent.
type eventRow struct {
	EventID      string `db:"event_id"`
	Tick         int    `db:"tick"`
	Type         string `db:"type"`
	SubjectID    string `db:"subject_id"`
	ActionID     string `db:"action_id"`
	PeerID       string `db:"peer_id"`
	MessageID    string `db:"message_id"`
	Detail       string `db:"detail"`
	LocationJSON string `db:"location_json"`
}

func (r eventRow) event() (model.LogEvent, error) {
	ev := model.LogEvent{
		ID:        r.EventID,
		Type:      model.EventType(r.Type),
		Tick:      r.Tick,
		SubjectID: r.SubjectID,
		ActionID:  r.ActionID,
		PeerID:    r.PeerID,
		MessageID: r.MessageID,
		Detail:    r.Detail,
	}
	if r.LocationJSON != "" {
		if err := json.Unmarshal([]byte(r.LocationJSON), &ev.Location); err != nil {
			return ev, fmt.Errorf("decode location of %s: %w", r.EventID, err)
		}
	}
	return ev, nil
}

// SaveUpdate appends a tick's events and diagnostics and records the tick as
// the last one saved, in one transaction.
func (db *DB) SaveUpdate(tick int, ur model.UpdateResult) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(ur.Events) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO events
			(event_id, tick, type, subject_id, action_id, peer_id, message_id, detail, location_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range ur.Events {
			locJSON := ""
			if len(ev.Location) > 0 {
				b, err := json.Marshal(ev.Location)
				if err != nil {
					return fmt.Errorf("encode location of %s: %w", ev.ID, err)
				}
				locJSON = string(b)
			}
			_, err := stmt.Exec(ev.ID, ev.Tick, string(ev.Type), ev.SubjectID, ev.ActionID,
				ev.PeerID, ev.MessageID, ev.Detail, locJSON)
			if err != nil {
				return fmt.Errorf("insert event %s: %w", ev.ID, err)
			}
		}
	}

	for _, d := range ur.Diagnostics {
		_, err := tx.Exec(
			"INSERT INTO diagnostics (tick, code, subject_id, action_id, detail) VALUES (?, ?, ?, ?, ?)",
			d.Tick, string(d.Code), d.SubjectID, d.ActionID, d.Detail,
		)
		if err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES ('last_tick', ?)",
		strconv.Itoa(tick),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Record implements engine.Sink.
func (db *DB) Record(tick int, ur model.UpdateResult) error {
	return db.SaveUpdate(tick, ur)
}

// ObjectRow is the stored snapshot of one node.
type ObjectRow struct {
	ID           string `db:"id" json:"id"`
	Kind         string `db:"kind" json:"kind"`
	Name         string `db:"name" json:"name"`
	OwnerID      string `db:"owner_id" json:"owner_id,omitempty"` // Container of an agent, parent of an organization
	Role         string `db:"role" json:"role,omitempty"`
	Activated    bool   `db:"activated" json:"activated"`
	LocationJSON string `db:"location_json" json:"-"`
	SavedTick    int    `db:"saved_tick" json:"saved_tick"`
}

// Location decodes the stored location, if any.
func (r ObjectRow) Location() ([]geo.Coord, error) {
	if r.LocationJSON == "" {
		return nil, nil
	}
	var coords []geo.Coord
	err := json.Unmarshal([]byte(r.LocationJSON), &coords)
	return coords, err
}

// SaveObjects replaces the object snapshot with the world's current contents:
// the AllObjects listing followed by any agent it does not include.
func (db *DB) SaveObjects(w *world.World) error {
	tick := w.LastTick()
	rows := objectRows(w, tick)
	slog.Info("saving object snapshot", "world", w.ID(), "objects", len(rows), "tick", tick)

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM objects"); err != nil {
		return err
	}
	for _, r := range rows {
		_, err := tx.NamedExec(`INSERT INTO objects
			(id, kind, name, owner_id, role, activated, location_json, saved_tick)
			VALUES (:id, :kind, :name, :owner_id, :role, :activated, :location_json, :saved_tick)`, r)
		if err != nil {
			return fmt.Errorf("insert object %s: %w", r.ID, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES ('world_id', ?)", w.ID(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func objectRows(w *world.World, tick int) []ObjectRow {
	parents := make(map[string]string)
	for _, o := range w.Organizations() {
		parents[o.ID()] = o.ParentID
	}

	var rows []ObjectRow
	seen := make(map[string]bool)
	add := func(n model.Node) {
		if seen[n.ID()] {
			return
		}
		seen[n.ID()] = true
		r := ObjectRow{
			ID:        n.ID(),
			Kind:      n.Kind().String(),
			Name:      n.Name(),
			Activated: n.Lifecycle().Activated,
			SavedTick: tick,
		}
		switch n.Kind() {
		case model.KindOrganization:
			r.OwnerID = parents[n.ID()]
		case model.KindAgent:
			if a, ok := w.Agent(n.ID()); ok {
				r.OwnerID = a.OwnerID
				r.Role = a.Role.String()
				if loc := a.CurrentLocation(); loc != nil {
					b, _ := json.Marshal(loc.Coords())
					r.LocationJSON = string(b)
				}
			}
		}
		rows = append(rows, r)
	}

	for _, n := range w.AllObjects() {
		add(n)
	}
	for _, a := range w.Agents() {
		add(a)
	}
	return rows
}

// Objects returns the stored snapshot ordered by kind and id.
func (db *DB) Objects() ([]ObjectRow, error) {
	var rows []ObjectRow
	err := db.conn.Select(&rows, "SELECT * FROM objects ORDER BY kind, id")
	return rows, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// LastTick returns the last saved tick, or 0 when nothing has been saved.
func (db *DB) LastTick() (int, error) {
	v, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

const eventColumns = "event_id, tick, type, subject_id, action_id, peer_id, message_id, detail, location_json"

func (db *DB) selectEvents(query string, args ...any) ([]model.LogEvent, error) {
	var rows []eventRow
	if err := db.conn.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	events := make([]model.LogEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]model.LogEvent, error) {
	return db.selectEvents("SELECT "+eventColumns+" FROM events ORDER BY id DESC LIMIT ?", limit)
}

// EventsForTick returns a tick's events in the order they were produced.
func (db *DB) EventsForTick(tick int) ([]model.LogEvent, error) {
	return db.selectEvents("SELECT "+eventColumns+" FROM events WHERE tick = ? ORDER BY id", tick)
}

// EventsForSubject returns the most recent N events of one node, newest first.
func (db *DB) EventsForSubject(subjectID string, limit int) ([]model.LogEvent, error) {
	return db.selectEvents("SELECT "+eventColumns+" FROM events WHERE subject_id = ? ORDER BY id DESC LIMIT ?", subjectID, limit)
}

// EventCount returns the number of stored events.
func (db *DB) EventCount() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM events")
	return n, err
}

// RecentDiagnostics returns the most recent N diagnostics, newest first.
func (db *DB) RecentDiagnostics(limit int) ([]model.Diagnostic, error) {
	var rows []struct {
		Tick      int    `db:"tick"`
		Code      string `db:"code"`
		SubjectID string `db:"subject_id"`
		ActionID  string `db:"action_id"`
		Detail    string `db:"detail"`
	}
	err := db.conn.Select(&rows,
		"SELECT tick, code, subject_id, action_id, detail FROM diagnostics ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]model.Diagnostic, len(rows))
	for i, r := range rows {
		out[i] = model.Diagnostic{
			Tick:      r.Tick,
			Code:      model.DiagnosticCode(r.Code),
			SubjectID: r.SubjectID,
			ActionID:  r.ActionID,
			Detail:    r.Detail,
		}
	}
	return out, nil
}
