package ingestion

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/mr1hm/go-live-alerts/internal/dedup"
	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/normalize"
	"github.com/mr1hm/go-live-alerts/internal/observability"
)

const DefaultMaxEvents = 200

// Coordinator owns the merged event list and is the only writer of the dedup
// store. Accept holds one lock from the dedup check through the merge, so
// concurrent adapters can never both accept the same id.
type Coordinator struct {
	normalizer *normalize.Normalizer
	seen       *dedup.Store
	metrics    *observability.Metrics
	maxEvents  int

	mu     sync.Mutex
	events []models.DisasterEvent
}

func NewCoordinator(normalizer *normalize.Normalizer, seen *dedup.Store, metrics *observability.Metrics, maxEvents int) *Coordinator {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Coordinator{
		normalizer: normalizer,
		seen:       seen,
		metrics:    metrics,
		maxEvents:  maxEvents,
	}
}

// Load restores the persisted seen ids. Call once before any Accept.
func (c *Coordinator) Load(ctx context.Context) {
	c.seen.LoadPersisted(ctx)
}

// Accept normalizes payload and merges it if its id is new. The bool is false
// for duplicates and for payloads that could not be normalized.
func (c *Coordinator) Accept(ctx context.Context, source models.Source, payload any) (models.DisasterEvent, bool) {
	c.metrics.EventsReceived.WithLabelValues(string(source)).Inc()

	e, err := c.normalizer.Normalize(source, payload)
	if err != nil {
		c.metrics.EventsDropped.WithLabelValues(string(source), "unusable").Inc()
		slog.Warn("dropping payload", "source", source, "error", err)
		return models.DisasterEvent{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen.Has(e.ID) {
		c.metrics.EventsDuplicate.WithLabelValues(string(source)).Inc()
		slog.Debug("duplicate event", "id", e.ID, "source", source)
		return models.DisasterEvent{}, false
	}

	c.seen.MarkSeen(e.ID)
	c.seen.PersistAdd(ctx, e.ID)

	merged := make([]models.DisasterEvent, 0, len(c.events)+1)
	merged = append(merged, e)
	merged = append(merged, c.events...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time > merged[j].Time
	})
	if len(merged) > c.maxEvents {
		merged = merged[:c.maxEvents]
	}
	c.events = merged

	c.metrics.EventsAccepted.WithLabelValues(string(source)).Inc()
	c.metrics.MergedEvents.Set(float64(len(c.events)))
	slog.Info("accepted event", "id", e.ID, "type", e.Kind, "severity", e.Severity, "source", source)

	return e.Clone(), true
}

// Events returns a copy of the merged list, newest first.
func (c *Coordinator) Events() []models.DisasterEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.DisasterEvent, len(c.events))
	for i, e := range c.events {
		out[i] = e.Clone()
	}
	return out
}
