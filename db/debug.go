package db

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

func ListEventsCLI(w io.Writer, dbPath, roomID string, limit int) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	var events []Event
	if roomID != "" {
		events, err = RoomEvents(conn, roomID, limit)
	} else {
		events, err = RecentEvents(conn, limit)
	}
	if err != nil {
		return err
	}

	for _, e := range events {
		fmt.Fprintf(w, "%s  %-15s room=%-10s light=%-10s cycle=%s %s\n",
			e.RecordedAt.Local().Format(time.DateTime), e.Type, dash(e.RoomID), dash(e.LightID), e.CycleID, marshalJSON(e.Payload))
	}

	counts, err := CountByType(conn)
	if err != nil {
		return err
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	summary := make([]string, 0, len(types))
	for _, t := range types {
		summary = append(summary, fmt.Sprintf("%s=%d", t, counts[EventType(t)]))
	}
	fmt.Fprintf(w, "totals: %s\n", strings.Join(summary, " "))
	return nil
}

func PruneCLI(w io.Writer, dbPath string, retention time.Duration) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	deleted, err := DeleteOlderThan(conn, retention)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %d events older than %s\n", deleted, retention)
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
