package db

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func freezeTime(t *testing.T, now time.Time) {
	orig := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = orig })
}

func TestAppendEvents_RoundTrip(t *testing.T) {
	conn := setupTestDB(t)
	simTime := time.Date(2024, 3, 1, 9, 58, 0, 0, time.UTC)

	err := AppendEvents(context.Background(), conn, []Event{{
		CycleID: "c1",
		Type:    EventCommandSent,
		RoomID:  "r1",
		LightID: "l1",
		SimTime: simTime,
		Payload: map[string]any{"state": "ON", "brightness": 40},
	}})
	require.NoError(t, err)

	events, err := RecentEvents(conn, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "c1", e.CycleID)
	assert.Equal(t, EventCommandSent, e.Type)
	assert.Equal(t, "r1", e.RoomID)
	assert.Equal(t, "l1", e.LightID)
	assert.True(t, simTime.Equal(e.SimTime))
	assert.False(t, e.RecordedAt.IsZero())
	assert.Equal(t, "ON", e.Payload["state"])
	assert.Equal(t, float64(40), e.Payload["brightness"])
}

func TestRecentEvents_NewestFirstAndLimited(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, AppendEvents(ctx, conn, []Event{{CycleID: "c1", Type: EventLightBroken, RoomID: "r1", LightID: id}}))
	}

	events, err := RecentEvents(conn, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "l3", events[0].LightID)
	assert.Equal(t, "l2", events[1].LightID)
}

func TestRoomEvents_FiltersByRoom(t *testing.T) {
	conn := setupTestDB(t)

	err := AppendEvents(context.Background(), conn, []Event{
		{CycleID: "c1", Type: EventCommandSent, RoomID: "r1", LightID: "l1"},
		{CycleID: "c1", Type: EventCommandFailed, RoomID: "r2", LightID: "l9"},
		{CycleID: "c1", Type: EventFetchFailed},
	})
	require.NoError(t, err)

	events, err := RoomEvents(conn, "r2", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCommandFailed, events[0].Type)

	events, err = RoomEvents(conn, "nowhere", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteOlderThan(t *testing.T) {
	conn := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	freezeTime(t, now)

	require.NoError(t, AppendEvents(ctx, conn, []Event{{CycleID: "old", Type: EventPowerOutage, RecordedAt: now.Add(-48 * time.Hour)}}))
	require.NoError(t, AppendEvents(ctx, conn, []Event{{CycleID: "new", Type: EventPowerOutage}}))

	deleted, err := DeleteOlderThan(conn, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := RecentEvents(conn, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].CycleID)
}

func TestCountByType(t *testing.T) {
	conn := setupTestDB(t)

	require.NoError(t, AppendEvents(context.Background(), conn, []Event{
		{CycleID: "c1", Type: EventCommandSent},
		{CycleID: "c1", Type: EventCommandSent},
		{CycleID: "c2", Type: EventLightBroken},
	}))

	counts, err := CountByType(conn)
	require.NoError(t, err)
	assert.Equal(t, map[EventType]int{EventCommandSent: 2, EventLightBroken: 1}, counts)
}

func TestLedger_AppendEvents(t *testing.T) {
	conn := setupTestDB(t)
	ledger := NewLedger(conn)

	require.NoError(t, ledger.AppendEvents(context.Background(), []Event{
		{CycleID: "c1", Type: EventLightRepaired, RoomID: "r1", LightID: "l1"},
		{CycleID: "c1", Type: EventCommandSent, RoomID: "r1", LightID: "l1"},
	}))
	require.NoError(t, ledger.AppendEvents(context.Background(), nil))

	events, err := RoomEvents(conn, "r1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventCommandSent, events[0].Type)
	assert.Equal(t, EventLightRepaired, events[1].Type)
}

func TestAppendEvents_RollsBackWholeBatch(t *testing.T) {
	conn := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := AppendEvents(ctx, conn, []Event{
		{CycleID: "c1", Type: EventCommandSent, RoomID: "r1", LightID: "l1"},
		{CycleID: "c1", Type: EventCommandSent, RoomID: "r1", LightID: "l2"},
	})
	require.Error(t, err)

	events, err := RecentEvents(conn, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCLIHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "events.db")

	conn, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, AppendEvents(context.Background(), conn, []Event{{CycleID: "c1", Type: EventLightBroken, RoomID: "r1", LightID: "l7"}}))
	conn.Close()

	var out bytes.Buffer
	require.NoError(t, ListEventsCLI(&out, path, "r1", 10))
	assert.Contains(t, out.String(), "light_broken")
	assert.Contains(t, out.String(), "l7")
	assert.Contains(t, out.String(), "totals: light_broken=1")

	out.Reset()
	require.NoError(t, PruneCLI(&out, path, time.Hour))
	assert.Contains(t, out.String(), "Deleted 0 events")

	require.NoError(t, ResetLedger(path))
	assert.NoFileExists(t, path)
}
