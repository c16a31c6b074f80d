package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"thermosync"
	"thermosync/internal/logger"
	"thermosync/internal/metrics"
	"thermosync/internal/ojcloud"
	"thermosync/internal/registry"
	"thermosync/internal/repository"
	"thermosync/internal/timecodec"
)

// ApplyMode is the closed set of user-triggerable commands.
type ApplyMode string

const (
	ModeSchedule ApplyMode = "schedule"
	ModeComfort  ApplyMode = "comfort"
	ModeManual   ApplyMode = "manual"
	ModeBoost    ApplyMode = "boost"
	ModeEco      ApplyMode = "eco"
	ModeVacation ApplyMode = "vacation"
	ModeName     ApplyMode = "name"
)

// Staged input defaults and clamps (inclusive).
const (
	comfortSetpointDefault = 22.0
	manualSetpointDefault  = 21.0
	vacationTempDefault    = 12.0
	setpointMin            = 12.0
	setpointMax            = 35.0
	vacationTempMin        = 5.0
	vacationTempMax        = 35.0

	comfortDurationDefault = 180 // minutes
	boostDurationDefault   = 60
	durationMin            = 1
	durationMax            = 1440
)

// Preconditions the router refuses on, before any network attempt.
var (
	ErrDeviceUnknown = errors.New("thermostat not known")
	ErrDeviceOffline = errors.New("thermostat is offline")
)

var dayRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ApplyService translates one staged user command into exactly one device
// update, with input sanitation, derived end times and guaranteed control
// reset.
type ApplyService struct {
	client  CloudClient
	reg     *registry.Registry
	staging repository.StateStore
	mirror  repository.StateStore
	events  repository.EventRepo
	codec   timecodec.Codec
	metrics *metrics.Metrics
	log     *logger.Logger

	now func() time.Time // test hook
}

func NewApplyService(
	client CloudClient,
	reg *registry.Registry,
	staging repository.StateStore,
	mirror repository.StateStore,
	events repository.EventRepo,
	codec timecodec.Codec,
	m *metrics.Metrics,
	log *logger.Logger,
) *ApplyService {
	return &ApplyService{
		client:  client,
		reg:     reg,
		staging: staging,
		mirror:  mirror,
		events:  events,
		codec:   codec,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Stage writes user-entered control values for one mode and presses the
// apply control. Field names are the bare ones ("setpoint", "duration", ...);
// they are stored namespaced by mode.
func (s *ApplyService) Stage(ctx context.Context, serial string, mode ApplyMode, fields map[string]string) error {
	for field, value := range fields {
		if err := s.staging.Set(ctx, serial, string(mode)+"."+field, value); err != nil {
			return fmt.Errorf("stage %s.%s: %w", mode, field, err)
		}
	}
	return s.staging.Set(ctx, serial, string(mode)+".apply", "true")
}

// Apply reads the staged values for mode, builds a complete device-update
// payload and sends it. Whatever happens, the triggering control ends up
// reset to "false": a network failure can never leave a control stuck
// pressed.
func (s *ApplyService) Apply(ctx context.Context, serial string, mode ApplyMode) (err error) {
	defer func() {
		// The reset must survive a cancelled request context.
		resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := s.staging.Set(resetCtx, serial, string(mode)+".apply", "false"); rerr != nil {
			s.log.Errorw("apply control reset failed", "serial", serial, "mode", mode, "err", rerr)
		}
	}()

	device, ok := s.reg.BySerial(serial)
	if !ok {
		s.log.Warnw("apply refused: unknown thermostat", "serial", serial, "mode", mode)
		s.countCommand(mode, "refused")
		return ErrDeviceUnknown
	}
	if !device.Online {
		s.log.Warnw("apply refused: thermostat offline", "serial", serial, "mode", mode)
		s.countCommand(mode, "refused")
		return ErrDeviceOffline
	}

	payload, mirrored, skip, err := s.buildPayload(ctx, device, mode)
	if err != nil {
		s.countCommand(mode, "error")
		return err
	}
	if skip {
		s.countCommand(mode, "skipped")
		return nil
	}

	if err := s.client.UpdateThermostat(ctx, payload); err != nil {
		s.log.Errorw("device update failed", "serial", serial, "mode", mode, "err", err)
		s.countCommand(mode, "failed")
		s.appendCommandEvent(ctx, serial, mode, "failed")
		return err
	}

	// Mirror sent values immediately so the display does not wait for the
	// next poll.
	for field, value := range mirrored {
		if merr := s.mirror.Set(ctx, serial, field, value); merr != nil {
			s.log.Errorw("mirror write failed", "serial", serial, "field", field, "err", merr)
		}
	}
	if mode == ModeName {
		s.reg.Rename(serial, payload.ThermostatName)
	}

	s.log.Infow("device update applied", "serial", serial, "mode", mode)
	s.countCommand(mode, "ok")
	s.appendCommandEvent(ctx, serial, mode, "ok")
	return nil
}

// buildPayload runs the per-mode state machine. It returns the outbound
// payload, the values to mirror on success, and whether the command should be
// silently skipped.
func (s *ApplyService) buildPayload(ctx context.Context, device thermosync.Thermostat, mode ApplyMode) (ojcloud.SetThermostat, map[string]string, bool, error) {
	// Every update is authoritative for the fields it includes; carrying the
	// cached display name keeps the vendor from wiping it.
	payload := ojcloud.SetThermostat{
		SerialNumber:   device.SerialNumber,
		ThermostatName: device.Name,
	}
	mirrored := map[string]string{}

	switch mode {
	case ModeSchedule:
		payload.RegulationMode = ojcloud.RegulationSchedule

	case ModeComfort:
		setpoint := clampFloat(s.stagedFloat(ctx, device.SerialNumber, "comfort.setpoint", comfortSetpointDefault), setpointMin, setpointMax)
		duration := clampInt(s.stagedInt(ctx, device.SerialNumber, "comfort.duration", comfortDurationDefault), durationMin, durationMax)
		end := s.codec.EncodeFutureLocal(s.now(), duration, device.TimeZoneSeconds)
		payload.RegulationMode = ojcloud.RegulationComfort
		payload.ComfortSetpoint = ojcloud.Int(hundredths(setpoint))
		payload.ComfortEndTime = end
		mirrored["comfort_setpoint"] = formatTemp(setpoint)
		mirrored["comfort_end_time"] = end

	case ModeManual:
		setpoint := clampFloat(s.stagedFloat(ctx, device.SerialNumber, "manual.setpoint", manualSetpointDefault), setpointMin, setpointMax)
		payload.RegulationMode = ojcloud.RegulationManual
		payload.ManualModeSetpoint = ojcloud.Int(hundredths(setpoint))

	case ModeBoost:
		duration := clampInt(s.stagedInt(ctx, device.SerialNumber, "boost.duration", boostDurationDefault), durationMin, durationMax)
		end := s.codec.EncodeFutureLocal(s.now(), duration, device.TimeZoneSeconds)
		payload.RegulationMode = ojcloud.RegulationBoost
		payload.BoostEndTime = end
		mirrored["boost_end_time"] = end

	case ModeEco:
		payload.RegulationMode = ojcloud.RegulationEco

	case ModeName:
		newName := strings.TrimSpace(s.stagedString(ctx, device.SerialNumber, "name.value", ""))
		if newName == "" {
			s.log.Infow("rename skipped: empty name", "serial", device.SerialNumber)
			return payload, nil, true, nil
		}
		// A rename carries only the new name; no regulation change rides along.
		payload = ojcloud.SetThermostat{
			SerialNumber:   device.SerialNumber,
			ThermostatName: newName,
		}
		mirrored["name"] = newName

	case ModeVacation:
		enabled := s.stagedBool(ctx, device.SerialNumber, "vacation.enabled", false)
		begin := s.stagedString(ctx, device.SerialNumber, "vacation.begin_day", "")
		end := s.stagedString(ctx, device.SerialNumber, "vacation.end_day", "")
		temp := clampFloat(s.stagedFloat(ctx, device.SerialNumber, "vacation.temperature", vacationTempDefault), vacationTempMin, vacationTempMax)
		for _, day := range []struct{ field, value string }{{"begin day", begin}, {"end day", end}} {
			if day.value != "" && !dayRe.MatchString(day.value) {
				// Logged, not blocked: the vendor is the authority on what
				// it accepts.
				s.log.Warnw("vacation "+day.field+" not in YYYY-MM-DD form", "serial", device.SerialNumber, "value", day.value)
			}
		}
		payload.VacationEnabled = ojcloud.Bool(enabled)
		payload.VacationBeginDay = begin
		payload.VacationEndDay = end
		payload.VacationTemperature = ojcloud.Int(hundredths(temp))
		mirrored["vacation_enabled"] = strconv.FormatBool(enabled)
		mirrored["vacation_begin_day"] = begin
		mirrored["vacation_end_day"] = end
		mirrored["vacation_temperature"] = formatTemp(temp)

	default:
		s.log.Debugw("unknown apply mode, ignoring", "serial", device.SerialNumber, "mode", mode)
		return payload, nil, true, nil
	}

	return payload, mirrored, false, nil
}

// staged value readers: absent or malformed input falls back to the default.

func (s *ApplyService) stagedString(ctx context.Context, serial, field, def string) string {
	v, ok, err := s.staging.Get(ctx, serial, field)
	if err != nil {
		s.log.Errorw("staged read failed", "serial", serial, "field", field, "err", err)
		return def
	}
	if !ok {
		return def
	}
	return v
}

func (s *ApplyService) stagedFloat(ctx context.Context, serial, field string, def float64) float64 {
	raw := s.stagedString(ctx, serial, field, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		s.log.Warnw("staged value not numeric, using default", "serial", serial, "field", field, "value", raw)
		return def
	}
	return v
}

func (s *ApplyService) stagedInt(ctx context.Context, serial, field string, def int) int {
	raw := s.stagedString(ctx, serial, field, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.log.Warnw("staged value not an integer, using default", "serial", serial, "field", field, "value", raw)
		return def
	}
	return v
}

func (s *ApplyService) stagedBool(ctx context.Context, serial, field string, def bool) bool {
	raw := s.stagedString(ctx, serial, field, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (s *ApplyService) countCommand(mode ApplyMode, outcome string) {
	s.metrics.Commands.WithLabelValues(string(mode), outcome).Inc()
}

func (s *ApplyService) appendCommandEvent(ctx context.Context, serial string, mode ApplyMode, outcome string) {
	err := s.events.Append(ctx, thermosync.SyncEvent{
		Type:        "COMMAND",
		Description: fmt.Sprintf("%s command %s for %s", mode, outcome, serial),
		Metadata:    map[string]any{"serial": serial, "mode": string(mode), "outcome": outcome},
	})
	if err != nil {
		s.log.Errorw("event append failed", "type", "COMMAND", "err", err)
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hundredths converts degrees Celsius to the vendor's integer hundredths.
func hundredths(deg float64) int {
	return int(math.Round(deg * 100))
}

func formatTemp(deg float64) string {
	return strconv.FormatFloat(deg, 'f', -1, 64)
}
