package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

// Ledger is the write side handed to the control loop.
type Ledger struct {
	conn *sql.DB
}

func NewLedger(conn *sql.DB) *Ledger {
	return &Ledger{conn: conn}
}

// AppendEvents writes one room's events for a cycle as a single transaction.
func (l *Ledger) AppendEvents(ctx context.Context, events []Event) error {
	return AppendEvents(ctx, l.conn, events)
}

// RunCleanup prunes events older than retention every interval until ctx ends.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := DeleteOlderThan(l.conn, retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean up old ledger events")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger events")
			}
		}
	}
}
