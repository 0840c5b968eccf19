package api

import (
	"github.com/mr1hm/go-live-alerts/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   *Geometry      `json:"geometry"` // null when the event has no position
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(events []models.DisasterEvent) FeatureCollection {
	features := make([]Feature, 0, len(events))

	for _, e := range events {
		f := Feature{
			Type: "Feature",
			ID:   e.ID,
			Properties: map[string]any{
				"id":          e.ID,
				"type":        e.Kind,
				"title":       e.Title,
				"description": e.Description,
				"magnitude":   e.Magnitude,
				"place":       e.Place,
				"time":        e.Time,
				"url":         e.URL,
				"severity":    e.Severity,
				"source":      e.Source,
			},
		}
		if len(e.Coordinates) >= 2 {
			f.Geometry = &Geometry{
				Type:        "Point",
				Coordinates: e.Coordinates,
			}
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
