package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
	"github.com/mr1hm/go-live-alerts/internal/stream"
)

type Relayer interface {
	Dispatch(e models.DisasterEvent) bool
}

type Exporter interface {
	Export(ctx context.Context, e models.DisasterEvent) error
}

// Manager wires adapters to the coordinator and notifies consumers of every
// accepted event. Each adapter runs under its own context so stopping one
// leaves the others and the merged list untouched.
type Manager struct {
	coord       *Coordinator
	broadcaster *stream.Broadcaster
	relay       Relayer  // nil disables relaying
	exporter    Exporter // nil disables export
	metrics     *observability.Metrics

	mu       sync.Mutex
	adapters []Adapter
	cancels  map[string]context.CancelFunc
	done     map[string]chan struct{}
	wg       sync.WaitGroup
}

func NewManager(coord *Coordinator, broadcaster *stream.Broadcaster, relay Relayer, exporter Exporter, metrics *observability.Metrics) *Manager {
	return &Manager{
		coord:       coord,
		broadcaster: broadcaster,
		relay:       relay,
		exporter:    exporter,
		metrics:     metrics,
		cancels:     make(map[string]context.CancelFunc),
		done:        make(map[string]chan struct{}),
	}
}

// AddAdapter registers an adapter to be started by Start.
func (m *Manager) AddAdapter(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, a)
}

func (m *Manager) Start(ctx context.Context) {
	m.coord.Load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.adapters {
		if _, running := m.cancels[a.Name()]; running {
			continue
		}
		actx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		m.cancels[a.Name()] = cancel
		m.done[a.Name()] = done

		m.wg.Add(1)
		go m.run(actx, a, done)
	}
}

func (m *Manager) run(ctx context.Context, a Adapter, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("adapter stopped", "source", a.Name(), "error", err)
		return
	}
	slog.Info("adapter stopped", "source", a.Name())
}

// StopAdapter cancels one adapter and waits for it to return.
func (m *Manager) StopAdapter(name string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[name]
	done := m.done[name]
	delete(m.cancels, name)
	delete(m.done, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("adapter %s is not running", name)
	}
	cancel()
	<-done
	return nil
}

// Ingest runs payload through the coordinator and, when it is new, fans it out
// to stream subscribers, the exporter and (for polled events) the relay.
func (m *Manager) Ingest(ctx context.Context, source models.Source, payload any) (models.DisasterEvent, bool) {
	e, ok := m.coord.Accept(ctx, source, payload)
	if !ok {
		return models.DisasterEvent{}, false
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast(e)
	}

	if m.exporter != nil {
		if err := m.exporter.Export(ctx, e); err != nil {
			m.metrics.ExportFailures.Inc()
			slog.Warn("export failed", "id", e.ID, "error", err)
		}
	}

	if m.relay != nil && source.IsPolling() {
		m.relay.Dispatch(e)
	}

	return e, true
}

// Emit adapts Ingest to the adapter callback signature.
func (m *Manager) Emit(ctx context.Context, source models.Source, payload any) {
	m.Ingest(ctx, source, payload)
}

func (m *Manager) Events() []models.DisasterEvent {
	return m.coord.Events()
}

func (m *Manager) Stop() {
	m.mu.Lock()
	for name, cancel := range m.cancels {
		cancel()
		delete(m.cancels, name)
		delete(m.done, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
	slog.Info("ingestion manager stopped")
}
