package normalize

import "github.com/mr1hm/go-live-alerts/internal/models"

// Thresholds are the lower bounds of the medium and high tiers per kind.
// Flood values are river discharge in m³/s.
type Thresholds struct {
	QuakeMedium float64
	QuakeHigh   float64
	FloodMedium float64
	FloodHigh   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		QuakeMedium: 4,
		QuakeHigh:   6,
		FloodMedium: 2000,
		FloodHigh:   5000,
	}
}

// Classify maps a magnitude onto a severity tier. A valid explicit severity
// wins over derivation.
func (t Thresholds) Classify(kind models.Kind, magnitude *float64, explicit string) models.Severity {
	if explicit != "" {
		if s, ok := models.ParseSeverity(explicit); ok {
			return s
		}
	}
	if magnitude == nil {
		return models.SeverityLow
	}

	switch kind {
	case models.KindEarthquake:
		return tier(*magnitude, t.QuakeMedium, t.QuakeHigh)
	case models.KindFlood:
		return tier(*magnitude, t.FloodMedium, t.FloodHigh)
	default:
		return models.SeverityLow
	}
}

func tier(v, medium, high float64) models.Severity {
	switch {
	case v >= high:
		return models.SeverityHigh
	case v >= medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ClassifySeverity classifies with the default thresholds.
func ClassifySeverity(kind models.Kind, magnitude *float64, explicit string) models.Severity {
	return DefaultThresholds().Classify(kind, magnitude, explicit)
}
