package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const DefaultEventLimit = 50

const selectEvents = `SELECT id, cycle_id, event_type, room_id, light_id, sim_time, recorded_at, payload FROM light_events`

// RecentEvents returns the newest events first.
func RecentEvents(db *sql.DB, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	rows, err := db.Query(selectEvents+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RoomEvents returns the newest events for one room first.
func RoomEvents(db *sql.DB, roomID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	rows, err := db.Query(selectEvents+` WHERE room_id = ? ORDER BY id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for room %s: %w", roomID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountByType summarizes the ledger for the debug CLI.
func CountByType(db *sql.DB) (map[EventType]int, error) {
	rows, err := db.Query(`SELECT event_type, COUNT(*) FROM light_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[EventType(t)] = n
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := []Event{}
	for rows.Next() {
		var e Event
		var eventType string
		var roomID, lightID, simTime, payload sql.NullString
		var recordedAt int64

		if err := rows.Scan(&e.ID, &e.CycleID, &eventType, &roomID, &lightID, &simTime, &recordedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Type = EventType(eventType)
		e.RoomID = roomID.String
		e.LightID = lightID.String
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		if simTime.String != "" {
			e.SimTime, _ = time.Parse(time.RFC3339Nano, simTime.String)
		}
		if payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload of event %d: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
