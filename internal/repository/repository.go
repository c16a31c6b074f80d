package repository

import (
	"context"
	"database/sql"
	"time"

	"thermosync"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*thermosync.User, error)
}

// StateStore is a per-device key-value store: get, set and existence check.
// Backs both the mirrored display state and the staged control values.
type StateStore interface {
	Set(ctx context.Context, serial, field, value string) error
	Get(ctx context.Context, serial, field string) (string, bool, error)
	All(ctx context.Context, serial string) (map[string]string, error)
}

type EventRepo interface {
	Append(ctx context.Context, e thermosync.SyncEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]thermosync.SyncEvent, error)
}

type Repository struct {
	Mirror  StateStore
	Staging StateStore
	Events  EventRepo
	Auth    Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Mirror:  NewStateSQLite(db, TableThermostatState),
		Staging: NewStateSQLite(db, TableStagedValues),
		Events:  NewEventSQLite(db),
		Auth:    NewUserRepository(db),
	}
}
