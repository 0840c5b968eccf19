package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
)

func sampleEvent() models.DisasterEvent {
	mag := 6.2
	return models.DisasterEvent{
		ID:          "us7000abcd",
		Source:      models.SourceSeismic,
		Kind:        models.KindEarthquake,
		Title:       "M 6.2 - 10km N of Somewhere",
		Magnitude:   &mag,
		Place:       "10km N of Somewhere",
		Time:        1760700000000,
		Coordinates: []float64{120.5, 14.2, 10},
		Severity:    models.SeverityHigh,
	}
}

func TestClient_Relay(t *testing.T) {
	var got models.RelayPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.Relay(context.Background(), sampleEvent()))

	assert.Equal(t, "us7000abcd", got.ID)
	assert.Equal(t, "earthquake", got.Type)
	assert.Equal(t, "high", got.Severity)
	assert.Equal(t, "10km N of Somewhere", got.Location)
	assert.Equal(t, "seismic-feed", got.Source)
	assert.Equal(t, int64(1760700000000), got.Time)
	require.NotNil(t, got.Magnitude)
	assert.Equal(t, 6.2, *got.Magnitude)
}

func TestClient_RelayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Relay(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "503")
}

type fakeSender struct {
	mu    sync.Mutex
	ids   []string
	err   error
	block chan struct{}
}

func (f *fakeSender) Relay(ctx context.Context, e models.DisasterEvent) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, e.ID)
	return f.err
}

func TestDispatcher_RelaysInBackground(t *testing.T) {
	sender := &fakeSender{}
	metrics := observability.NewMetricsForTesting()
	d := NewDispatcher(sender, 2, 10, metrics)
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		e := sampleEvent()
		e.ID = id
		assert.True(t, d.Dispatch(e))
	}
	d.Stop()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, sender.ids)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RelayAttempts))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RelayFailures))
}

func TestDispatcher_FailuresAreCounted(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	metrics := observability.NewMetricsForTesting()
	d := NewDispatcher(sender, 1, 10, metrics)
	d.Start(context.Background())

	d.Dispatch(sampleEvent())
	d.Dispatch(sampleEvent())
	d.Stop()

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RelayFailures))
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	metrics := observability.NewMetricsForTesting()
	d := NewDispatcher(sender, 1, 0, metrics)
	d.Start(context.Background())

	// unbuffered queue with a busy worker: eventually a dispatch must drop
	dropped := false
	deadline := time.Now().Add(time.Second)
	for !dropped && time.Now().Before(deadline) {
		dropped = !d.Dispatch(sampleEvent())
	}
	assert.True(t, dropped)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.RelayFailures), 1.0)

	close(sender.block)
	d.Stop()
}
