package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-live-alerts/internal/config"
	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/observability"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   *usgsGeometry  `json:"geometry"`
}

type usgsProperties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  any      `json:"time"` // epoch ms
	Title string   `json:"title"`
	URL   string   `json:"url"`
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// SeismicPoller queries the seismic feed for a trailing window of events on a
// fixed interval. A failed cycle is logged and skipped.
type SeismicPoller struct {
	cfg     config.SeismicConfig
	clock   clockwork.Clock
	client  *http.Client
	metrics *observability.Metrics
	emit    Emit
}

func NewSeismicPoller(cfg config.SeismicConfig, clock clockwork.Clock, metrics *observability.Metrics, emit Emit) *SeismicPoller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SeismicPoller{
		cfg:     cfg,
		clock:   clock,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		emit:    emit,
	}
}

func (p *SeismicPoller) Name() string {
	return string(models.SourceSeismic)
}

func (p *SeismicPoller) Run(ctx context.Context) error {
	runPoller(ctx, p.clock, p.Name(), p.cfg.PollInterval, p.poll)
	return nil
}

func (p *SeismicPoller) poll(ctx context.Context) {
	features, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.metrics.PollErrors.WithLabelValues(p.Name()).Inc()
			slog.Error("poll failed", "source", p.Name(), "error", err)
		}
		return
	}

	for _, f := range features {
		if ctx.Err() != nil {
			return
		}
		p.emit(ctx, models.SourceSeismic, f)
	}
	slog.Debug("poll complete", "source", p.Name(), "count", len(features))
}

func (p *SeismicPoller) queryURL() (string, error) {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing seismic URL: %w", err)
	}
	end := p.clock.Now().UTC()
	start := end.Add(-p.cfg.Window)

	q := u.Query()
	q.Set("format", "geojson")
	q.Set("orderby", "time")
	q.Set("limit", strconv.Itoa(p.cfg.Limit))
	q.Set("starttime", start.Format(time.RFC3339))
	q.Set("endtime", end.Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *SeismicPoller) fetch(ctx context.Context) ([]models.SeismicFeature, error) {
	target, err := p.queryURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data usgsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	features := make([]models.SeismicFeature, 0, len(data.Features))
	for _, f := range data.Features {
		sf := models.SeismicFeature{
			ID:        f.ID,
			Magnitude: f.Properties.Mag,
			Place:     f.Properties.Place,
			Time:      f.Properties.Time,
			Title:     f.Properties.Title,
			URL:       f.Properties.URL,
		}
		if f.Geometry != nil {
			sf.Coordinates = f.Geometry.Coordinates
		}
		features = append(features, sf)
	}

	return features, nil
}
