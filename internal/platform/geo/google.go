package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carebridge/carebridge/internal/platform/cache"
	"github.com/carebridge/carebridge/internal/platform/retry"
)

const (
	geocodeEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	placesEndpoint  = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

	cacheTTL = 15 * time.Minute
)

// ErrNotFound is returned when a place text resolves to no location.
var ErrNotFound = errors.New("geo: location not found")

// GoogleGeocoder is a Geocoder backed by the Google Maps geocoding and
// places APIs. The cache is optional; pass nil to disable caching.
type GoogleGeocoder struct {
	apiKey string
	client *http.Client
	cache  cache.Cache
	policy retry.Policy

	// endpoint overrides for tests
	geocodeURL string
	placesURL  string
}

func NewGoogleGeocoder(apiKey string, c cache.Cache) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		cache:      c,
		policy:     retry.Default(),
		geocodeURL: geocodeEndpoint,
		placesURL:  placesEndpoint,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location Coordinates `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, placeText string) (Coordinates, error) {
	placeText = strings.TrimSpace(placeText)
	if placeText == "" {
		return Coordinates{}, ErrNotFound
	}

	cacheKey := "geo:geocode:" + strings.ToLower(placeText)
	var coords Coordinates
	if g.readCached(ctx, cacheKey, &coords) {
		return coords, nil
	}

	params := url.Values{}
	params.Set("address", placeText)
	params.Set("key", g.apiKey)

	var resp geocodeResponse
	if err := g.getJSON(ctx, g.geocodeURL, params, &resp); err != nil {
		return Coordinates{}, err
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Coordinates{}, ErrNotFound
	default:
		return Coordinates{}, fmt.Errorf("geocode failed: %s %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Results) == 0 {
		return Coordinates{}, ErrNotFound
	}

	coords = resp.Results[0].Geometry.Location
	g.writeCached(ctx, cacheKey, coords)
	return coords, nil
}

type placesResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name     string `json:"name"`
		Vicinity string `json:"vicinity"`
		Geometry struct {
			Location Coordinates `json:"location"`
		} `json:"geometry"`
		Rating       float64 `json:"rating"`
		OpeningHours *struct {
			OpenNow bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

func (g *GoogleGeocoder) Nearby(ctx context.Context, at Coordinates, radiusKm float64, facilityType string) ([]Facility, error) {
	if radiusKm <= 0 {
		radiusKm = 10
	}
	if facilityType == "" {
		facilityType = "hospital"
	}

	cacheKey := fmt.Sprintf("geo:nearby:%.4f,%.4f:%s:%.0f", at.Lat, at.Lng, facilityType, radiusKm)
	var facilities []Facility
	if g.readCached(ctx, cacheKey, &facilities) {
		return facilities, nil
	}

	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", at.Lat, at.Lng))
	params.Set("radius", fmt.Sprintf("%.0f", radiusKm*1000))
	params.Set("type", facilityType)
	params.Set("key", g.apiKey)

	var resp placesResponse
	if err := g.getJSON(ctx, g.placesURL, params, &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK", "ZERO_RESULTS":
	default:
		return nil, fmt.Errorf("places lookup failed: %s %s", resp.Status, resp.ErrorMessage)
	}

	facilities = make([]Facility, 0, len(resp.Results))
	for _, r := range resp.Results {
		f := Facility{
			Name:     r.Name,
			Address:  r.Vicinity,
			Location: r.Geometry.Location,
			Rating:   r.Rating,
		}
		if r.OpeningHours != nil {
			open := r.OpeningHours.OpenNow
			f.OpenNow = &open
		}
		facilities = append(facilities, f)
	}

	g.writeCached(ctx, cacheKey, facilities)
	return facilities, nil
}

func (g *GoogleGeocoder) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	return g.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("maps API returned %d: %s", resp.StatusCode, body)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (g *GoogleGeocoder) readCached(ctx context.Context, key string, out any) bool {
	if g.cache == nil {
		return false
	}
	raw, err := g.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (g *GoogleGeocoder) writeCached(ctx context.Context, key string, value any) {
	if g.cache == nil {
		return
	}
	if raw, err := json.Marshal(value); err == nil {
		_ = g.cache.Set(ctx, key, raw, cacheTTL)
	}
}
