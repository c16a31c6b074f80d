package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"thermosync"
	"thermosync/internal/logger"
	"thermosync/internal/metrics"
	"thermosync/internal/ojcloud"
	"thermosync/internal/registry"
	"thermosync/internal/repository"
	"thermosync/internal/timecodec"
)

// ErrCycleInFlight is returned when a poll trigger fires while the previous
// cycle's work is still pending. The trigger is dropped, not queued.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

const defaultOfflineThreshold = 3

// Poller drives periodic reads through the cloud client, adapting frequency
// to cloud/device health. At most one cycle is ever in flight.
type Poller struct {
	client  CloudClient
	reg     *registry.Registry
	mirror  repository.StateStore
	events  repository.EventRepo
	codec   timecodec.Codec
	metrics *metrics.Metrics
	log     *logger.Logger

	offlineThreshold int

	mu      sync.Mutex // guards state
	state   *pollState
	cycleMu sync.Mutex // held for the duration of one cycle
}

func NewPoller(
	client CloudClient,
	reg *registry.Registry,
	mirror repository.StateStore,
	events repository.EventRepo,
	codec timecodec.Codec,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Poller {
	threshold := cfg.OfflineThreshold
	if threshold <= 0 {
		threshold = defaultOfflineThreshold
	}
	return &Poller{
		client:           client,
		reg:              reg,
		mirror:           mirror,
		events:           events,
		codec:            codec,
		metrics:          m,
		log:              log,
		offlineThreshold: threshold,
		state:            newPollState(cfg.PollInterval),
	}
}

// Run executes cycles until ctx is cancelled. The first cycle fires
// immediately; each subsequent delay comes from the scheduling state machine.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := p.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInFlight) {
				p.log.Debugw("poll cycle finished with error", "err", err)
			}
			next := p.nextDelay()
			p.metrics.PollInterval.Set(next.Seconds())
			timer.Reset(next)
		}
	}
}

func (p *Poller) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.next(time.Now())
}

// Status returns the externally visible scheduler state.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PollStatus{
		Mode:           p.state.mode,
		IntervalSec:    p.state.next(time.Now()).Seconds(),
		Failures:       p.state.failures,
		CloudConnected: p.reg.CloudConnected(),
	}
}

// RunCycle executes one read-and-merge cycle. A trigger that fires while a
// cycle is pending returns ErrCycleInFlight without any network activity.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.cycleMu.TryLock() {
		p.log.Debugw("poll trigger dropped, cycle in flight")
		return ErrCycleInFlight
	}
	defer p.cycleMu.Unlock()

	groups, err := p.client.GroupContents(ctx)
	if err != nil {
		p.finishCycle(ctx, cycleResult{
			commFailure: ojcloud.IsCommunication(err) || errors.Is(err, ojcloud.ErrSessionExpired),
		})
		if ojcloud.IsCommunication(err) {
			p.metrics.PollCycles.WithLabelValues("comm_failure").Inc()
			p.log.Warnw("poll cycle failed", "err", err)
		} else {
			p.metrics.PollCycles.WithLabelValues("error").Inc()
			p.log.Errorw("poll cycle failed", "err", err)
		}
		return err
	}

	online := p.merge(ctx, groups)
	p.metrics.OnlineDevices.Set(float64(online))
	p.metrics.PollCycles.WithLabelValues("ok").Inc()
	p.finishCycle(ctx, cycleResult{commFailure: false, anyOnline: online > 0})
	return nil
}

// merge folds the read payload into the registry and the mirror store, and
// returns the number of online devices.
func (p *Poller) merge(ctx context.Context, groups []ojcloud.Group) int {
	now := time.Now().UTC()
	online := 0

	for _, g := range groups {
		for _, t := range g.Thermostats {
			rec, edge := p.reg.Upsert(thermosync.Thermostat{
				ID:              t.ID,
				SerialNumber:    t.SerialNumber,
				GroupID:         g.GroupID,
				Name:            t.ThermostatName,
				TimeZoneSeconds: t.TimeZone,
				Online:          t.Online,
				RegulationMode:  t.RegulationMode,
				LastSeen:        now,
			})
			// Decode with the merged offset: a read may omit TimeZone while
			// still carrying end times, and the cached offset must apply.
			rec.ComfortEndTime = p.codec.DecodeToLocal(t.ComfortEndTime, rec.TimeZoneSeconds)
			rec.BoostEndTime = p.codec.DecodeToLocal(t.BoostEndTime, rec.TimeZoneSeconds)
			p.reg.UpdateEndTimes(rec.ID, rec.ComfortEndTime, rec.BoostEndTime)
			if rec.Online {
				online++
			}
			p.noteEdge(ctx, rec, edge)
			p.mirrorDevice(ctx, rec)
		}
	}
	return online
}

func (p *Poller) noteEdge(ctx context.Context, rec thermosync.Thermostat, edge registry.OnlineEdge) {
	switch edge {
	case registry.EdgeWentOffline:
		p.log.Warnw("thermostat went offline", "serial", rec.SerialNumber, "name", rec.Name)
		p.appendEvent(ctx, "DEVICE_OFFLINE", "thermostat "+rec.SerialNumber+" went offline", rec.SerialNumber)
	case registry.EdgeCameOnline:
		p.log.Infow("thermostat back online", "serial", rec.SerialNumber, "name", rec.Name)
		p.appendEvent(ctx, "DEVICE_ONLINE", "thermostat "+rec.SerialNumber+" back online", rec.SerialNumber)
	}
}

// mirrorDevice writes the fields the display consumes. Devices whose serial
// is still unknown are skipped; they cannot be addressed yet.
func (p *Poller) mirrorDevice(ctx context.Context, rec thermosync.Thermostat) {
	if rec.SerialNumber == "" {
		return
	}
	for field, value := range map[string]string{
		"name":             rec.Name,
		"online":           strconv.FormatBool(rec.Online),
		"regulation_mode":  strconv.Itoa(rec.RegulationMode),
		"comfort_end_time": rec.ComfortEndTime,
		"boost_end_time":   rec.BoostEndTime,
	} {
		if err := p.mirror.Set(ctx, rec.SerialNumber, field, value); err != nil {
			p.log.Errorw("mirror write failed", "serial", rec.SerialNumber, "field", field, "err", err)
		}
	}
}

// finishCycle feeds the outcome into the scheduler state machine and
// maintains the external connectivity flag.
func (p *Poller) finishCycle(ctx context.Context, r cycleResult) {
	p.mu.Lock()
	prevMode := p.state.mode
	p.state.observe(r)
	mode := p.state.mode
	failures := p.state.failures
	p.mu.Unlock()

	p.metrics.FailureStreak.Set(float64(failures))

	if mode != prevMode {
		p.log.Infow("poll schedule changed", "from", prevMode, "to", mode)
		p.appendEvent(ctx, "POLL_MODE", "poll schedule changed to "+mode, "")
	}

	if r.commFailure {
		if failures >= p.offlineThreshold && p.reg.SetCloudConnected(false) {
			p.metrics.CloudConnected.Set(0)
			p.log.Warnw("cloud connection lost", "consecutive_failures", failures)
			p.appendEvent(ctx, "CONNECTIVITY", "cloud connection lost", "")
		}
		return
	}

	if p.reg.SetCloudConnected(true) {
		p.metrics.CloudConnected.Set(1)
		p.log.Infow("cloud connection restored")
		p.appendEvent(ctx, "CONNECTIVITY", "cloud connection restored", "")
	}
}

func (p *Poller) appendEvent(ctx context.Context, typ, msg, serial string) {
	ev := thermosync.SyncEvent{Type: typ, Description: msg}
	if serial != "" {
		ev.Metadata = map[string]any{"serial": serial}
	}
	if err := p.events.Append(ctx, ev); err != nil {
		p.log.Errorw("event append failed", "type", typ, "err", err)
	}
}
