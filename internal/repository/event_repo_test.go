package repository_test

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"thermosync"
	"thermosync/internal/repository"
	"thermosync/internal/repository/db"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestEventSQLite_Append_FillsIDAndTimestamp(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewEventSQLite(db)

	nonEmptyString := argFunc(func(v driver.Value) bool {
		s, ok := v.(string)
		return ok && s != ""
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sync_events")).
		WithArgs(
			nonEmptyString, // generated uuid
			nonEmptyString, // formatted occurred_at
			"COMMAND",
			"comfort mode applied",
			nonEmptyString, // marshalled metadata
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), thermosync.SyncEvent{
		Type:        "command",
		Description: "comfort mode applied",
		Metadata:    map[string]any{"serial": "SN-1"},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEventSQLite_List_FiltersByRangeAndType(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewEventSQLite(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	// filters bind as strings in the same format the writer stores
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, occurred_at, type, message, meta FROM sync_events")).
		WithArgs("2024-03-01 00:00:00", "2024-03-31 23:59:59", "DEVICE_OFFLINE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "type", "message", "meta"}).
			AddRow("ev-1", at, "DEVICE_OFFLINE", "thermostat SN-1 went offline", `{"serial":"SN-1"}`))

	events, err := repo.List(context.Background(), from, to, "DEVICE_OFFLINE")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventID != "ev-1" || ev.Type != "DEVICE_OFFLINE" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	meta, ok := ev.Metadata.(map[string]any)
	if !ok || meta["serial"] != "SN-1" {
		t.Fatalf("metadata not unmarshalled: %+v", ev.Metadata)
	}
}

// Runs against the real sqlite driver: occurred_at is stored as TEXT, so a
// filter bound in a different time format would miss rows that are exactly
// on the boundary.
func TestEventSQLite_RangeFilterInclusiveOnRealDriver(t *testing.T) {
	conn, err := db.InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	repo := repository.NewEventSQLite(conn)

	at := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	err = repo.Append(context.Background(), thermosync.SyncEvent{
		OccurredAt:  at,
		Type:        "COMMAND",
		Description: "boost mode applied",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// from == the stored instant must match (inclusive lower bound)
	events, err := repo.List(context.Background(), at, time.Time{}, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event at inclusive boundary, got %d", len(events))
	}
	if !events[0].OccurredAt.Equal(at) {
		t.Fatalf("occurred_at round-trip: got %v, want %v", events[0].OccurredAt, at)
	}

	// one second past the event excludes it
	events, err = repo.List(context.Background(), at.Add(time.Second), time.Time{}, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events past the range, got %d", len(events))
	}
}
