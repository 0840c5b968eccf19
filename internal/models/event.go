package models

import (
	"strings"
	"time"
)

type Kind string

const (
	KindEarthquake Kind = "earthquake"
	KindFlood      Kind = "flood"
	KindCyclone    Kind = "cyclone"
)

// ParseKind maps a provider type string onto a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindEarthquake:
		return KindEarthquake, true
	case KindFlood:
		return KindFlood, true
	case KindCyclone:
		return KindCyclone, true
	default:
		return "", false
	}
}

// Source records which path an event arrived through. Informational only.
type Source string

const (
	SourceRealtime Source = "realtime"
	SourceSeismic  Source = "seismic-feed"
	SourceRiver    Source = "river-feed"
	SourceTest     Source = "test"
)

// IsPolling reports whether events from this source were discovered locally
// and should be relayed to the realtime channel.
func (s Source) IsPolling() bool {
	return s == SourceSeismic || s == SourceRiver
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	default:
		return "", false
	}
}

// Rank orders severities so filters can ask for "at least medium".
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// DisasterEvent is the canonical event shape handed to consumers.
// Values are never mutated after construction; use Clone before sharing
// the slice and pointer fields outside the coordinator.
type DisasterEvent struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Kind        Kind      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Magnitude   *float64  `json:"magnitude,omitempty"` // Richter-like for earthquakes, m³/s discharge for floods
	Place       string    `json:"place,omitempty"`
	Time        int64     `json:"time"` // epoch milliseconds
	URL         string    `json:"url,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"` // [lon, lat, depth?]
	Severity    Severity  `json:"severity"`
}

func (e DisasterEvent) Timestamp() time.Time {
	return time.UnixMilli(e.Time).UTC()
}

func (e DisasterEvent) Clone() DisasterEvent {
	out := e
	if e.Magnitude != nil {
		m := *e.Magnitude
		out.Magnitude = &m
	}
	if e.Coordinates != nil {
		out.Coordinates = append([]float64(nil), e.Coordinates...)
	}
	return out
}
