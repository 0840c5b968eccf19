package models

// RealtimeMessage is a message received on the realtime channel. Time is left
// untyped because publishers send ISO strings, epoch seconds or epoch millis.
type RealtimeMessage struct {
	ID          string    `json:"id,omitempty"`
	Type        string    `json:"type"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Magnitude   *float64  `json:"magnitude,omitempty"`
	Place       string    `json:"place,omitempty"`
	Time        any       `json:"time"`
	URL         string    `json:"url,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"`
}

// SeismicFeature is one feature from the seismic GeoJSON feed.
type SeismicFeature struct {
	ID          string
	Magnitude   *float64
	Place       string
	Time        any
	Title       string
	URL         string
	Coordinates []float64
}

// RiverReading is the latest daily discharge for one monitored site.
type RiverReading struct {
	SiteKey   string
	SiteName  string
	Latitude  float64
	Longitude float64
	Date      string
	Discharge float64
}

// RelayPayload is the body POSTed to the broadcast endpoint and republished
// verbatim on the realtime channel.
type RelayPayload struct {
	ID          string    `json:"id" binding:"required"`
	Type        string    `json:"type" binding:"required,oneof=earthquake flood"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Magnitude   *float64  `json:"magnitude"`
	Place       string    `json:"place"`
	Time        int64     `json:"time"`
	URL         string    `json:"url,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"`
	Severity    string    `json:"severity"`
	Location    string    `json:"location"`
	Source      string    `json:"source"`
}

func NewRelayPayload(e DisasterEvent) RelayPayload {
	return RelayPayload{
		ID:          e.ID,
		Type:        string(e.Kind),
		Title:       e.Title,
		Description: e.Description,
		Magnitude:   e.Magnitude,
		Place:       e.Place,
		Time:        e.Time,
		URL:         e.URL,
		Coordinates: e.Coordinates,
		Severity:    string(e.Severity),
		Location:    e.Place,
		Source:      string(e.Source),
	}
}
