package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-live-alerts/internal/models"
)

// ErrUnusablePayload means no event could be built from a payload.
var ErrUnusablePayload = errors.New("unusable payload")

// Normalizer turns adapter payloads into canonical DisasterEvents.
type Normalizer struct {
	clock      clockwork.Clock
	thresholds Thresholds
	newID      func() string
}

func NewNormalizer(clock clockwork.Clock, thresholds Thresholds) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{
		clock:      clock,
		thresholds: thresholds,
		newID:      uuid.NewString,
	}
}

func (n *Normalizer) Classify(kind models.Kind, magnitude *float64, explicit string) models.Severity {
	return n.thresholds.Classify(kind, magnitude, explicit)
}

// Normalize dispatches on the payload type produced by each adapter.
func (n *Normalizer) Normalize(source models.Source, payload any) (models.DisasterEvent, error) {
	switch p := payload.(type) {
	case models.RealtimeMessage:
		return n.FromRealtime(p)
	case *models.RealtimeMessage:
		return n.FromRealtime(*p)
	case models.SeismicFeature:
		return n.FromSeismic(p)
	case models.RiverReading:
		return n.FromRiver(p)
	case models.DisasterEvent:
		return n.fromEvent(source, p)
	default:
		return models.DisasterEvent{}, fmt.Errorf("%w: unsupported payload %T from %s", ErrUnusablePayload, payload, source)
	}
}

func (n *Normalizer) FromRealtime(msg models.RealtimeMessage) (models.DisasterEvent, error) {
	kind, ok := models.ParseKind(msg.Type)
	if !ok {
		if strings.TrimSpace(msg.ID) == "" {
			return models.DisasterEvent{}, fmt.Errorf("%w: realtime message without id or kind", ErrUnusablePayload)
		}
		// An identifiable event is kept as unclassified and rates low.
		kind = models.Kind(strings.ToLower(strings.TrimSpace(msg.Type)))
		slog.Warn("realtime message has unrecognized type", "id", msg.ID, "type", msg.Type)
	}

	e := models.DisasterEvent{
		ID:          n.ensureID(msg.ID, "rt", models.SourceRealtime),
		Source:      models.SourceRealtime,
		Kind:        kind,
		Title:       msg.Title,
		Description: msg.Description,
		Magnitude:   copyFloat(msg.Magnitude),
		Place:       msg.Place,
		Time:        Time(msg.Time, n.clock.Now()),
		URL:         msg.URL,
		Coordinates: copyCoords(msg.Coordinates),
	}
	e.Severity = n.thresholds.Classify(kind, e.Magnitude, msg.Severity)
	e.Title = defaultTitle(e)
	return e, nil
}

func (n *Normalizer) FromSeismic(f models.SeismicFeature) (models.DisasterEvent, error) {
	e := models.DisasterEvent{
		ID:          n.ensureID(f.ID, "seismic", models.SourceSeismic),
		Source:      models.SourceSeismic,
		Kind:        models.KindEarthquake,
		Title:       f.Title,
		Description: f.Place,
		Magnitude:   copyFloat(f.Magnitude),
		Place:       f.Place,
		Time:        Time(f.Time, n.clock.Now()),
		URL:         f.URL,
		Coordinates: copyCoords(f.Coordinates),
	}
	e.Severity = n.thresholds.Classify(e.Kind, e.Magnitude, "")
	e.Title = defaultTitle(e)
	return e, nil
}

func (n *Normalizer) FromRiver(r models.RiverReading) (models.DisasterEvent, error) {
	if r.SiteKey == "" {
		return models.DisasterEvent{}, fmt.Errorf("%w: river reading without site key", ErrUnusablePayload)
	}
	ts := Time(r.Date, n.clock.Now())
	discharge := r.Discharge
	e := models.DisasterEvent{
		ID:          RiverEventID(r.SiteKey, ts),
		Source:      models.SourceRiver,
		Kind:        models.KindFlood,
		Description: fmt.Sprintf("River discharge %s m³/s", strconv.FormatFloat(discharge, 'f', 1, 64)),
		Magnitude:   &discharge,
		Place:       r.SiteName,
		Time:        ts,
		Coordinates: []float64{r.Longitude, r.Latitude},
	}
	e.Severity = n.thresholds.Classify(e.Kind, e.Magnitude, "")
	e.Title = defaultTitle(e)
	return e, nil
}

// fromEvent re-validates an already shaped event, e.g. a debug test event.
func (n *Normalizer) fromEvent(source models.Source, e models.DisasterEvent) (models.DisasterEvent, error) {
	if e.Kind == "" && strings.TrimSpace(e.ID) == "" {
		return models.DisasterEvent{}, fmt.Errorf("%w: event without id or kind", ErrUnusablePayload)
	}
	out := e.Clone()
	if out.Source == "" {
		out.Source = source
	}
	out.ID = n.ensureID(out.ID, string(out.Source), out.Source)
	if out.Time <= 0 {
		out.Time = n.clock.Now().UnixMilli()
	}
	out.Severity = n.thresholds.Classify(out.Kind, out.Magnitude, string(e.Severity))
	out.Title = defaultTitle(out)
	return out, nil
}

func (n *Normalizer) ensureID(id, prefix string, source models.Source) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	generated := prefix + "-" + n.newID()
	slog.Warn("payload has no id, generated fallback", "source", source, "id", generated)
	return generated
}

// RiverEventID is stable for a given site and reading day so repeated polls
// of the same reading resolve to the same id.
func RiverEventID(siteKey string, ms int64) string {
	return "river-" + siteKey + "-" + strconv.FormatInt(ms, 10)
}

func defaultTitle(e models.DisasterEvent) string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	switch e.Kind {
	case models.KindEarthquake:
		if e.Magnitude == nil {
			return "Earthquake"
		}
		return "M" + strconv.FormatFloat(*e.Magnitude, 'f', -1, 64) + " Earthquake"
	case models.KindFlood:
		if e.Place == "" {
			return "Flood risk"
		}
		return "Flood risk — " + e.Place
	case models.KindCyclone:
		return "Cyclone"
	default:
		return "Disaster event"
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyCoords(c []float64) []float64 {
	if len(c) < 2 {
		return nil
	}
	return append([]float64(nil), c...)
}
