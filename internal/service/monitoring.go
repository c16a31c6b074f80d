package service

import (
	"context"
	"errors"

	"thermosync/internal/registry"
	"thermosync/internal/repository"
)

// ErrNotFound is returned when a serial resolves to no known thermostat.
var ErrNotFound = errors.New("thermostat not found")

// MonitoringService joins the registry with the mirrored display state.
type MonitoringService struct {
	reg    *registry.Registry
	mirror repository.StateStore
}

func NewMonitoringService(reg *registry.Registry, mirror repository.StateStore) *MonitoringService {
	return &MonitoringService{reg: reg, mirror: mirror}
}

// Snapshot returns every known thermostat with its mirrored state.
func (s *MonitoringService) Snapshot(ctx context.Context) ([]ThermostatView, error) {
	devices := s.reg.List()
	out := make([]ThermostatView, 0, len(devices))
	for _, d := range devices {
		view := ThermostatView{Thermostat: d}
		if d.SerialNumber != "" {
			state, err := s.mirror.All(ctx, d.SerialNumber)
			if err != nil {
				return nil, err
			}
			view.State = state
		}
		out = append(out, view)
	}
	return out, nil
}

// Device returns one thermostat by serial number.
func (s *MonitoringService) Device(ctx context.Context, serial string) (ThermostatView, error) {
	d, ok := s.reg.BySerial(serial)
	if !ok {
		return ThermostatView{}, ErrNotFound
	}
	state, err := s.mirror.All(ctx, serial)
	if err != nil {
		return ThermostatView{}, err
	}
	return ThermostatView{Thermostat: d, State: state}, nil
}
