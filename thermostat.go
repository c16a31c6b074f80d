package thermosync

import "time"

// Thermostat is the local record of one cloud thermostat.
// SerialNumber and TimeZoneSeconds are cached across poll cycles once known,
// because a read may omit them.
type Thermostat struct {
	ID              int       `json:"id"`
	SerialNumber    string    `json:"serial_number"`
	GroupID         int       `json:"group_id"`
	Name            string    `json:"name"`
	TimeZoneSeconds int       `json:"timezone_seconds"` // fixed UTC offset reported by the vendor
	Online          bool      `json:"online"`
	WasOnline       bool      `json:"-"` // previous cycle's flag, for edge-triggered offline warnings
	RegulationMode  int       `json:"regulation_mode"`
	ComfortEndTime  string    `json:"comfort_end_time,omitempty"` // thermostat-local, YYYY-MM-DDTHH:mm:ss
	BoostEndTime    string    `json:"boost_end_time,omitempty"`
	LastSeen        time.Time `json:"last_seen"`
}

// SyncEvent is a single log entry: poll transitions and issued commands.
type SyncEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // DEVICE_OFFLINE | DEVICE_ONLINE | CONNECTIVITY | POLL_MODE | COMMAND | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
}
