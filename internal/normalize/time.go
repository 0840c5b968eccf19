package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Values below this are epoch seconds, values at or above are epoch millis.
const millisThreshold = 1e12

// maxEpochMillis bounds a representable instant: 100,000,000 days either side
// of the epoch.
const maxEpochMillis = 8.64e15

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.RFC822Z,
	time.RFC822,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// Time coerces a provider timestamp into epoch milliseconds. It never fails:
// anything it cannot interpret resolves to now.
func Time(input any, now time.Time) int64 {
	fallback := now.UnixMilli()

	switch v := input.(type) {
	case nil:
		return fallback
	case float64:
		return fromNumber(v, fallback)
	case float32:
		return fromNumber(float64(v), fallback)
	case int:
		return fromNumber(float64(v), fallback)
	case int32:
		return fromNumber(float64(v), fallback)
	case int64:
		if v < millisThreshold {
			if v < -maxEpochMillis/1000 {
				return fallback
			}
			v *= 1000
		}
		if v > maxEpochMillis {
			return fallback
		}
		return v
	case uint64:
		return fromNumber(float64(v), fallback)
	case json.Number:
		return fromString(v.String(), fallback)
	case string:
		return fromString(v, fallback)
	case time.Time:
		if v.IsZero() {
			return fallback
		}
		return inRange(v.UnixMilli(), fallback)
	default:
		return fallback
	}
}

func fromNumber(v float64, fallback int64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	if v < millisThreshold {
		v *= 1000
	}
	if math.Abs(v) > maxEpochMillis {
		return fallback
	}
	return int64(math.Round(v))
}

func inRange(ms, fallback int64) int64 {
	if ms > maxEpochMillis || ms < -maxEpochMillis {
		return fallback
	}
	return ms
}

func fromString(s string, fallback int64) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(n, fallback)
	}
	// Date.toString() appends the zone name, e.g. "(Coordinated Universal Time)".
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inRange(t.UnixMilli(), fallback)
		}
	}
	return fallback
}
