package registry

import (
	"sort"
	"sync"

	"thermosync"
)

// OnlineEdge describes an edge-triggered online-flag transition observed while
// merging a reading into the registry.
type OnlineEdge int

const (
	EdgeNone OnlineEdge = iota
	EdgeWentOffline
	EdgeCameOnline
)

// Registry is the single owner of per-thermostat records: serial number,
// display name, timezone offset and online flags. Consulted and updated by
// the poll scheduler and the apply router.
type Registry struct {
	mu             sync.RWMutex
	devices        map[int]thermosync.Thermostat // keyed by vendor thermostat id
	cloudConnected bool
}

func New() *Registry {
	return &Registry{
		devices:        make(map[int]thermosync.Thermostat),
		cloudConnected: true,
	}
}

// Upsert merges one poll reading into the registry and returns the merged
// record plus the online edge it produced. Serial number and timezone are
// cached across cycles once known, since a read may omit them.
func (r *Registry) Upsert(reading thermosync.Thermostat) (thermosync.Thermostat, OnlineEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, known := r.devices[reading.ID]

	rec := reading
	if known {
		if rec.SerialNumber == "" {
			rec.SerialNumber = prev.SerialNumber
		}
		if rec.TimeZoneSeconds == 0 && prev.TimeZoneSeconds != 0 {
			rec.TimeZoneSeconds = prev.TimeZoneSeconds
		}
		if rec.Name == "" {
			rec.Name = prev.Name
		}
		rec.WasOnline = prev.Online
	} else {
		rec.WasOnline = rec.Online
	}
	r.devices[rec.ID] = rec

	switch {
	case known && prev.Online && !rec.Online:
		return rec, EdgeWentOffline
	case known && !prev.Online && rec.Online:
		return rec, EdgeCameOnline
	default:
		return rec, EdgeNone
	}
}

// UpdateEndTimes stores decoded end-time strings on an existing record.
// Decoding needs the merged timezone offset, which is only known after
// Upsert has folded the cached offset into the reading.
func (r *Registry) UpdateEndTimes(id int, comfort, boost string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.ComfortEndTime = comfort
		d.BoostEndTime = boost
		r.devices[id] = d
	}
}

// Rename updates the cached display name after a successful rename command.
func (r *Registry) Rename(serial, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.devices {
		if d.SerialNumber == serial {
			d.Name = name
			r.devices[id] = d
			return
		}
	}
}

// BySerial looks a device up by serial number.
func (r *Registry) BySerial(serial string) (thermosync.Thermostat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.SerialNumber == serial && serial != "" {
			return d, true
		}
	}
	return thermosync.Thermostat{}, false
}

// List returns all known devices ordered by serial number.
func (r *Registry) List() []thermosync.Thermostat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]thermosync.Thermostat, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

// AnyOnline reports whether at least one known device is online.
func (r *Registry) AnyOnline() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Online {
			return true
		}
	}
	return false
}

// Size returns the number of known devices.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SetCloudConnected flips the external connectivity flag and reports whether
// the value actually changed, so callers can log edges only.
func (r *Registry) SetCloudConnected(connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cloudConnected == connected {
		return false
	}
	r.cloudConnected = connected
	return true
}

// CloudConnected reports the current connectivity flag.
func (r *Registry) CloudConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloudConnected
}
