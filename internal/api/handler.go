package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/stream"
)

const maxListLimit = 200

// EventSource is the ingestion side the handler reads from and feeds test
// events into.
type EventSource interface {
	Events() []models.DisasterEvent
	Ingest(ctx context.Context, source models.Source, payload any) (models.DisasterEvent, bool)
}

// Publisher republishes relayed events on the realtime channel.
type Publisher interface {
	Publish(ctx context.Context, payload models.RelayPayload) error
}

type TokenConfig struct {
	Token string
	TTL   time.Duration
}

type Handler struct {
	events      EventSource
	broadcaster *stream.Broadcaster
	publisher   Publisher // nil when the realtime channel is disabled
	token       TokenConfig
	clock       clockwork.Clock
	newID       func() string
}

func NewHandler(events EventSource, broadcaster *stream.Broadcaster, publisher Publisher, token TokenConfig, clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		events:      events,
		broadcaster: broadcaster,
		publisher:   publisher,
		token:       token,
		clock:       clock,
		newID:       uuid.NewString,
	}
}

// RegisterRoutes mounts the API. middleware applies to the client-facing /api
// routes only. Health checks, scrapes and the relay target /api/broadcast are
// never rate limited.
func (h *Handler) RegisterRoutes(r *gin.Engine, middleware ...gin.HandlerFunc) {
	api := r.Group("/api", middleware...)
	api.GET("/events", h.getEvents)
	api.GET("/events/stream", h.streamEvents)
	api.GET("/realtime/token", h.realtimeToken)
	api.POST("/debug/test-event", h.createTestEvent)

	r.POST("/api/broadcast", h.broadcast)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type eventFilter struct {
	kind        models.Kind
	minSeverity models.Severity
	limit       int
}

func parseFilter(c *gin.Context) eventFilter {
	f := eventFilter{limit: maxListLimit}
	if k := c.Query("kind"); k != "" {
		if kind, ok := models.ParseKind(k); ok {
			f.kind = kind
		}
	}
	if s := c.Query("min_severity"); s != "" {
		if sev, ok := models.ParseSeverity(s); ok {
			f.minSeverity = sev
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxListLimit {
			f.limit = lim
		}
	}
	return f
}

func (f eventFilter) match(e models.DisasterEvent) bool {
	if f.kind != "" && e.Kind != f.kind {
		return false
	}
	return f.minSeverity == "" || e.Severity.Rank() >= f.minSeverity.Rank()
}

func (f eventFilter) apply(events []models.DisasterEvent) []models.DisasterEvent {
	out := make([]models.DisasterEvent, 0, len(events))
	for _, e := range events {
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if len(out) == f.limit {
			break
		}
	}
	return out
}

func (h *Handler) getEvents(c *gin.Context) {
	events := parseFilter(c).apply(h.events.Events())

	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, toGeoJSON(events))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// streamEvents pushes every newly accepted event to the client as SSE.
func (h *Handler) streamEvents(c *gin.Context) {
	filter := parseFilter(c)
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if !filter.match(e) {
				continue
			}
			c.SSEvent("disaster", e)
			c.Writer.Flush()
		}
	}
}

func (h *Handler) broadcast(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime channel not configured"})
		return
	}

	var payload models.RelayPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.publisher.Publish(c.Request.Context(), payload); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish event"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "published", "id": payload.ID})
}

func (h *Handler) realtimeToken(c *gin.Context) {
	if h.token.Token == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime token not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      h.token.Token,
		"expires_at": h.clock.Now().Add(h.token.TTL).UTC(),
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createTestEvent runs a synthetic earthquake through ingestion. It reaches
// the list and stream consumers but is never relayed.
func (h *Handler) createTestEvent(c *gin.Context) {
	mag := 7.5
	e := models.DisasterEvent{
		ID:          "test-" + h.newID(),
		Source:      models.SourceTest,
		Kind:        models.KindEarthquake,
		Title:       "Test Earthquake - M7.5",
		Description: "This is a test event for debugging",
		Magnitude:   &mag,
		Place:       "Tokyo, Japan",
		Time:        h.clock.Now().UnixMilli(),
		Coordinates: []float64{139.6503, 35.6762},
	}

	accepted, ok := h.events.Ingest(c.Request.Context(), models.SourceTest, e)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "test event was not accepted", "id": e.ID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "test event accepted (not relayed)",
		"id":       accepted.ID,
		"severity": accepted.Severity,
	})
}
