package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tables backed by the generic per-device key-value store.
const (
	TableThermostatState = "thermostat_state"
	TableStagedValues    = "staged_values"
)

// StateSQLite is a (serial, field) → value store over one SQLite table.
// The mirrored display state and the staged control values share the shape
// and differ only in table.
type StateSQLite struct {
	db    *sql.DB
	table string
}

func NewStateSQLite(db *sql.DB, table string) *StateSQLite {
	return &StateSQLite{db: db, table: table}
}

// Ensure implementation of the StateStore interface at compile time.
var _ StateStore = (*StateSQLite)(nil)

// Set upserts one field value for a device.
func (r *StateSQLite) Set(ctx context.Context, serial, field, value string) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (serial, field, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(serial, field) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`, r.table)
	if _, err := r.db.ExecContext(ctx, q, serial, field, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s %s/%s: %w", r.table, serial, field, err)
	}
	return nil
}

// Get reads one field value; the second return reports existence.
func (r *StateSQLite) Get(ctx context.Context, serial, field string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT value FROM %s WHERE serial=? AND field=?`, r.table)
	var value string
	err := r.db.QueryRowContext(ctx, q, serial, field).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s %s/%s: %w", r.table, serial, field, err)
	}
	return value, true, nil
}

// All returns every field stored for a device.
func (r *StateSQLite) All(ctx context.Context, serial string) (map[string]string, error) {
	q := fmt.Sprintf(`SELECT field, value FROM %s WHERE serial=?`, r.table)
	rows, err := r.db.QueryContext(ctx, q, serial)
	if err != nil {
		return nil, fmt.Errorf("list %s for %s: %w", r.table, serial, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
