package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLightBroken   EventType = "light_broken"
	EventLightRepaired EventType = "light_repaired"
	EventCommandSent   EventType = "command_sent"
	EventCommandFailed EventType = "command_failed"
	EventFetchFailed   EventType = "fetch_failed"
	EventPowerOutage   EventType = "power_outage"
)

// Event is one row of the light_events ledger. Room and light ids are empty for
// building-wide events such as a failed fetch.
type Event struct {
	ID         int64          `json:"id"`
	CycleID    string         `json:"cycleId"`
	Type       EventType      `json:"type"`
	RoomID     string         `json:"roomId,omitempty"`
	LightID    string         `json:"lightId,omitempty"`
	SimTime    time.Time      `json:"simTime"`
	RecordedAt time.Time      `json:"recordedAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS light_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	room_id TEXT,
	light_id TEXT,
	sim_time TEXT,
	recorded_at INTEGER NOT NULL,
	payload TEXT
);
CREATE INDEX IF NOT EXISTS idx_light_events_room ON light_events(room_id, id);
CREATE INDEX IF NOT EXISTS idx_light_events_recorded ON light_events(recorded_at);
`

// Open opens the ledger at path, creating the parent directory and schema when
// missing.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path += "?_journal_mode=WAL"
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if err := InitSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func InitSchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ResetLedger removes the database file and its WAL companions.
func ResetLedger(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	log.Warn().Str("path", path).Msg("Event ledger reset")
	return nil
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}
