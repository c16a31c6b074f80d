package service

import (
	"context"
	"sync"
	"time"

	"thermosync"
	"thermosync/internal/logger"
	"thermosync/internal/metrics"
	"thermosync/internal/ojcloud"

	"github.com/prometheus/client_golang/prometheus"
)

// fakeCloud implements CloudClient for scheduler and router tests.
type fakeCloud struct {
	mu      sync.Mutex
	groups  []ojcloud.Group
	readErr error
	reads   int
	// blockReads, when set, makes GroupContents wait until released.
	blockReads chan struct{}
	entered    chan struct{}

	updateErr error
	updates   []ojcloud.SetThermostat
}

func (f *fakeCloud) GroupContents(ctx context.Context) ([]ojcloud.Group, error) {
	f.mu.Lock()
	f.reads++
	block := f.blockReads
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return f.groups, f.readErr
}

func (f *fakeCloud) UpdateThermostat(ctx context.Context, payload ojcloud.SetThermostat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, payload)
	return f.updateErr
}

func (f *fakeCloud) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeCloud) lastUpdate() (ojcloud.SetThermostat, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return ojcloud.SetThermostat{}, false
	}
	return f.updates[len(f.updates)-1], true
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (m *memStore) Set(ctx context.Context, serial, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[serial] == nil {
		m.data[serial] = make(map[string]string)
	}
	m.data[serial][field] = value
	return nil
}

func (m *memStore) Get(ctx context.Context, serial, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[serial][field]
	return v, ok, nil
}

func (m *memStore) All(ctx context.Context, serial string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data[serial]))
	for k, v := range m.data[serial] {
		out[k] = v
	}
	return out, nil
}

// memEvents is an in-memory EventRepo.
type memEvents struct {
	mu     sync.Mutex
	events []thermosync.SyncEvent
}

func (m *memEvents) Append(ctx context.Context, e thermosync.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) List(ctx context.Context, from, to time.Time, typ string) ([]thermosync.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []thermosync.SyncEvent
	for _, e := range m.events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) byType(typ string) []thermosync.SyncEvent {
	out, _ := m.List(context.Background(), time.Time{}, time.Time{}, typ)
	return out
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func testLogger() *logger.Logger {
	return logger.Get(logger.ErrorLevel)
}
