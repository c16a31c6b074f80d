package service

import (
	"context"
	"time"

	"thermosync"
	"thermosync/internal/logger"
	"thermosync/internal/metrics"
	"thermosync/internal/ojcloud"
	"thermosync/internal/registry"
	"thermosync/internal/repository"
	"thermosync/internal/timecodec"
)

// CloudClient is the authenticated vendor API surface the services consume.
// Satisfied by ojcloud.Client; faked in tests.
type CloudClient interface {
	GroupContents(ctx context.Context) ([]ojcloud.Group, error)
	UpdateThermostat(ctx context.Context, payload ojcloud.SetThermostat) error
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Syncer drives the periodic cloud reads. Run blocks until ctx is cancelled;
// RunCycle is the manual trigger and reports ErrCycleInFlight when dropped.
type Syncer interface {
	Run(ctx context.Context)
	RunCycle(ctx context.Context) error
	Status() PollStatus
}

// Applier turns one staged user command into one device update. Stage writes
// user-entered values into the staging store and presses the apply control;
// Apply reads them back at command time and fires the update.
type Applier interface {
	Stage(ctx context.Context, serial string, mode ApplyMode, fields map[string]string) error
	Apply(ctx context.Context, serial string, mode ApplyMode) error
}

// Monitoring exposes read-only thermostat state for the API and websocket.
type Monitoring interface {
	Snapshot(ctx context.Context) ([]ThermostatView, error)
	Device(ctx context.Context, serial string) (ThermostatView, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]thermosync.SyncEvent, error)
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "DEVICE_OFFLINE", "COMMAND", ...
}

// PollStatus is the externally visible scheduler state.
type PollStatus struct {
	Mode           string  `json:"mode"`
	IntervalSec    float64 `json:"interval_seconds"`
	Failures       int     `json:"consecutive_failures"`
	CloudConnected bool    `json:"cloud_connected"`
}

// ThermostatView is one device record plus its mirrored display state.
type ThermostatView struct {
	thermosync.Thermostat
	State map[string]string `json:"state,omitempty"`
}

// Config carries the already-validated primitives the services need.
type Config struct {
	PollInterval     time.Duration
	OfflineThreshold int // consecutive comm failures before the flag clears
	JWTSigningKey    string
}

// Service aggregates all sub-services.
type Service struct {
	Syncer
	Applier
	Monitoring
	EventLog
	Authorization
}

// NewService wires the repository layer, registry and cloud client into
// concrete services.
func NewService(
	repos *repository.Repository,
	reg *registry.Registry,
	client CloudClient,
	codec timecodec.Codec,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	return &Service{
		Syncer:        NewPoller(client, reg, repos.Mirror, repos.Events, codec, m, log, cfg),
		Applier:       NewApplyService(client, reg, repos.Staging, repos.Mirror, repos.Events, codec, m, log),
		Monitoring:    NewMonitoringService(reg, repos.Mirror),
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, cfg.JWTSigningKey),
	}
}
