package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
	"github.com/mr1hm/go-live-alerts/internal/relay"
	"github.com/mr1hm/go-live-alerts/internal/stream"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// mockSource implements EventSource for testing
type mockSource struct {
	mu       sync.Mutex
	events   []models.DisasterEvent
	ingested []models.DisasterEvent
	reject   bool
}

func (m *mockSource) Events() []models.DisasterEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DisasterEvent(nil), m.events...)
}

func (m *mockSource) Ingest(ctx context.Context, source models.Source, payload any) (models.DisasterEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return models.DisasterEvent{}, false
	}
	e := payload.(models.DisasterEvent)
	e.Severity = models.SeverityHigh
	m.ingested = append(m.ingested, e)
	return e, true
}

type mockPublisher struct {
	mu        sync.Mutex
	published []models.RelayPayload
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, p models.RelayPayload) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, p)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func mag(v float64) *float64 { return &v }

func sampleEvents() []models.DisasterEvent {
	return []models.DisasterEvent{
		{ID: "eq1", Kind: models.KindEarthquake, Magnitude: mag(6.5), Time: 3000, Severity: models.SeverityHigh, Coordinates: []float64{139, 35, 10}},
		{ID: "fl1", Kind: models.KindFlood, Magnitude: mag(2500), Time: 2000, Severity: models.SeverityMedium, Place: "Patna"},
		{ID: "eq2", Kind: models.KindEarthquake, Magnitude: mag(3.1), Time: 1000, Severity: models.SeverityLow, Coordinates: []float64{-120, 40}},
	}
}

type testEnv struct {
	router      *gin.Engine
	source      *mockSource
	publisher   *mockPublisher
	broadcaster *stream.Broadcaster
	handler     *Handler
}

func setupTestRouter(t *testing.T, publisher Publisher, token TokenConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		source:      &mockSource{events: sampleEvents()},
		broadcaster: stream.NewBroadcaster(),
	}
	if p, ok := publisher.(*mockPublisher); ok {
		env.publisher = p
	}
	t.Cleanup(env.broadcaster.Close)

	env.handler = NewHandler(env.source, env.broadcaster, publisher, token, clockwork.NewFakeClockAt(testNow))
	env.handler.newID = func() string { return "fixed" }

	env.router = gin.New()
	env.handler.RegisterRoutes(env.router)
	return env
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

type listResponse struct {
	Events []models.DisasterEvent `json:"events"`
	Count  int                    `json:"count"`
}

func TestGetEvents_ReturnsJSON(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})

	w := do(env.router, "GET", "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "eq1", resp.Events[0].ID)
}

func TestGetEvents_ReturnsGeoJSON(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})

	w := do(env.router, "GET", "/api/events?format=geojson", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc FeatureCollection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)

	require.NotNil(t, fc.Features[0].Geometry)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{139, 35, 10}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "high", fc.Features[0].Properties["severity"])
	assert.Nil(t, fc.Features[1].Geometry)
}

func TestGetEvents_Filters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{"kind", "?kind=earthquake", []string{"eq1", "eq2"}},
		{"kind case-insensitive", "?kind=FLOOD", []string{"fl1"}},
		{"min severity", "?min_severity=medium", []string{"eq1", "fl1"}},
		{"limit", "?limit=2", []string{"eq1", "fl1"}},
		{"combined", "?kind=earthquake&min_severity=low&limit=1", []string{"eq1"}},
		{"invalid values ignored", "?kind=volcano&limit=999", []string{"eq1", "fl1", "eq2"}},
	}

	env := setupTestRouter(t, nil, TokenConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(env.router, "GET", "/api/events"+tt.query, "")
			var resp listResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			ids := make([]string, 0, len(resp.Events))
			for _, e := range resp.Events {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestBroadcast_Publishes(t *testing.T) {
	pub := &mockPublisher{}
	env := setupTestRouter(t, pub, TokenConfig{})

	body := `{"id":"us1","type":"earthquake","title":"M6.2","magnitude":6.2,"time":1700000000000,"severity":"high","location":"Somewhere","source":"seismic-feed"}`
	w := do(env.router, "POST", "/api/broadcast", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "us1", pub.published[0].ID)
	assert.Equal(t, "Somewhere", pub.published[0].Location)
}

func TestBroadcast_RejectsInvalidBody(t *testing.T) {
	pub := &mockPublisher{}
	env := setupTestRouter(t, pub, TokenConfig{})

	for _, body := range []string{
		`{"type":"earthquake"}`,
		`{"id":"x","type":"cyclone"}`,
		`not json`,
	} {
		w := do(env.router, "POST", "/api/broadcast", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, pub.published)
}

func TestBroadcast_Unavailable(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})
	w := do(env.router, "POST", "/api/broadcast", `{"id":"us1","type":"earthquake"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := setupTestRouter(t, &mockPublisher{err: errors.New("redis down")}, TokenConfig{})
	w = do(failing.router, "POST", "/api/broadcast", `{"id":"us1","type":"earthquake"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRealtimeToken(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{Token: "s3cret", TTL: time.Hour})

	w := do(env.router, "GET", "/api/realtime/token", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s3cret", resp.Token)
	assert.True(t, resp.ExpiresAt.Equal(testNow.Add(time.Hour)))

	unconfigured := setupTestRouter(t, nil, TokenConfig{})
	w = do(unconfigured.router, "GET", "/api/realtime/token", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateTestEvent(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})

	w := do(env.router, "POST", "/api/debug/test-event", "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.source.ingested, 1)
	e := env.source.ingested[0]
	assert.Equal(t, "test-fixed", e.ID)
	assert.Equal(t, models.SourceTest, e.Source)
	assert.Equal(t, models.KindEarthquake, e.Kind)
	assert.Equal(t, testNow.UnixMilli(), e.Time)

	env.source.reject = true
	w = do(env.router, "POST", "/api/debug/test-event", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStreamEvents(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/stream?min_severity=medium", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	env.broadcaster.Broadcast(models.DisasterEvent{ID: "quiet", Kind: models.KindEarthquake, Severity: models.SeverityLow})
	env.broadcaster.Broadcast(models.DisasterEvent{ID: "loud", Kind: models.KindEarthquake, Severity: models.SeverityHigh})

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}

	var got models.DisasterEvent
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "loud", got.ID)

	cancel()
	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})

	w := do(env.router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil, TokenConfig{})

	w := do(env.router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := setupTestRouter(t, nil, TokenConfig{})
	router := gin.New()
	env.handler.RegisterRoutes(router, RateLimitMiddleware(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(router, "GET", "/api/events", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health is outside the limited group
	assert.Equal(t, http.StatusOK, do(router, "GET", "/health", "").Code)
}

func TestBroadcast_RelayBurstIsNotRateLimited(t *testing.T) {
	pub := &mockPublisher{}
	env := setupTestRouter(t, pub, TokenConfig{})
	router := gin.New()
	env.handler.RegisterRoutes(router, RateLimitMiddleware(5, 0))

	srv := httptest.NewServer(router)
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	client := relay.NewClient(srv.URL+"/api/broadcast", 5*time.Second)
	dispatcher := relay.NewDispatcher(client, 2, 256, metrics)
	dispatcher.Start(context.Background())

	// one full seismic poll
	for i := 0; i < 200; i++ {
		ok := dispatcher.Dispatch(models.DisasterEvent{
			ID:       fmt.Sprintf("us%04d", i),
			Source:   models.SourceSeismic,
			Kind:     models.KindEarthquake,
			Title:    "M 3.0 - Somewhere",
			Time:     testNow.UnixMilli(),
			Severity: models.SeverityLow,
		})
		require.True(t, ok, "event %d dropped", i)
	}
	dispatcher.Stop()

	assert.Equal(t, 200, pub.count())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RelayFailures))
	assert.Equal(t, 200.0, testutil.ToFloat64(metrics.RelayAttempts))

	// client-facing routes keep their budget
	codes := 0
	for i := 0; i < 6; i++ {
		if do(router, "GET", "/api/events", "").Code == http.StatusOK {
			codes++
		}
	}
	assert.Equal(t, 5, codes)
}
