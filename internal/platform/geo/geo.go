// Package geo resolves free-text locations to coordinates and finds nearby
// medical facilities. Lookups are cached because emergency flows may repeat
// the same place text within a short window.
package geo

import "context"

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Facility is a nearby medical facility returned by a places lookup.
type Facility struct {
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	Location Coordinates `json:"location"`
	Rating   float64     `json:"rating,omitempty"`
	OpenNow  *bool       `json:"open_now,omitempty"`
}

// Geocoder resolves place text to coordinates and coordinates to nearby
// facilities. Implementations must be safe for concurrent use.
type Geocoder interface {
	Geocode(ctx context.Context, placeText string) (Coordinates, error)
	Nearby(ctx context.Context, at Coordinates, radiusKm float64, facilityType string) ([]Facility, error)
}
