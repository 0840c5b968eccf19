package relay

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
	"github.com/mr1hm/go-live-alerts/internal/worker"
)

type Sender interface {
	Relay(ctx context.Context, e models.DisasterEvent) error
}

// Dispatcher relays events in the background so ingestion never waits on the
// broadcast endpoint. Failures are logged and counted, never retried.
type Dispatcher struct {
	sender  Sender
	pool    *worker.Pool[models.DisasterEvent]
	metrics *observability.Metrics
}

func NewDispatcher(sender Sender, workers, bufferSize int, metrics *observability.Metrics) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		metrics: metrics,
	}
	d.pool = worker.NewPool("relay", workers, bufferSize, d.process)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Dispatch queues e for relay. A full queue drops the event.
func (d *Dispatcher) Dispatch(e models.DisasterEvent) bool {
	d.metrics.RelayAttempts.Inc()
	if !d.pool.TrySubmit(e) {
		d.metrics.RelayFailures.Inc()
		slog.Warn("relay queue full, dropping event", "id", e.ID)
		return false
	}
	return true
}

func (d *Dispatcher) process(ctx context.Context, e models.DisasterEvent) error {
	if err := d.sender.Relay(ctx, e); err != nil {
		d.metrics.RelayFailures.Inc()
		slog.Warn("relay failed", "id", e.ID, "source", e.Source, "error", err)
		return err
	}
	slog.Debug("event relayed", "id", e.ID, "source", e.Source)
	return nil
}
