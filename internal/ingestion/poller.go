package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-live-alerts/internal/models"
)

// Emit hands a raw adapter payload to the coordinator.
type Emit func(ctx context.Context, source models.Source, payload any)

// Adapter is one independent ingestion loop. Run blocks until ctx is done or
// the adapter gives up.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}

// runPoller polls once immediately and then on every tick until ctx is done.
func runPoller(ctx context.Context, clock clockwork.Clock, name string, interval time.Duration, poll func(context.Context)) {
	slog.Info("starting poller", "source", name, "interval", interval)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", name)
			return
		case <-ticker.Chan():
			poll(ctx)
		}
	}
}
