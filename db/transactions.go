package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// timeNow is replaced in tests.
var timeNow = time.Now

const insertEvent = `INSERT INTO light_events (cycle_id, event_type, room_id, light_id, sim_time, recorded_at, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`

// AppendEvents writes a batch in one transaction; either every event lands or none.
func AppendEvents(ctx context.Context, db *sql.DB, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, insertEvent, eventArgs(e)...); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("append %s event: %w", e.Type, err)
		}
	}
	return CommitTransaction(tx)
}

func eventArgs(e Event) []any {
	recorded := e.RecordedAt
	if recorded.IsZero() {
		recorded = timeNow()
	}
	var simTime string
	if !e.SimTime.IsZero() {
		simTime = e.SimTime.UTC().Format(time.RFC3339Nano)
	}
	return []any{
		e.CycleID,
		string(e.Type),
		e.RoomID,
		e.LightID,
		simTime,
		recorded.UnixMilli(),
		marshalJSON(e.Payload),
	}
}

// DeleteOlderThan prunes events recorded more than retention ago.
func DeleteOlderThan(db *sql.DB, retention time.Duration) (int64, error) {
	cutoff := timeNow().Add(-retention).UnixMilli()
	result, err := db.Exec(`DELETE FROM light_events WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return result.RowsAffected()
}
