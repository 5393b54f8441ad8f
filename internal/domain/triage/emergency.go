package triage

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/platform/geo"
)

// EmergencyAgent handles life-threatening situations deterministically: no
// model call sits between the patient and emergency guidance. It scans the
// current message and the last three turns for coordinates, looks up nearby
// facilities, and always escalates to the doctor.
type EmergencyAgent struct {
	geocoder        geo.Geocoder
	radiusKm        float64
	emergencyNumber string
	logger          zerolog.Logger
}

func NewEmergencyAgent(geocoder geo.Geocoder, radiusKm float64, emergencyNumber string, logger zerolog.Logger) *EmergencyAgent {
	if emergencyNumber == "" {
		emergencyNumber = "911"
	}
	return &EmergencyAgent{
		geocoder:        geocoder,
		radiusKm:        radiusKm,
		emergencyNumber: emergencyNumber,
		logger:          logger,
	}
}

var coordsRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)

func (a *EmergencyAgent) Name() string { return "emergency" }

func (a *EmergencyAgent) Run(ctx context.Context, state *State) (Patch, error) {
	base := Patch{
		Severity:        strPtr(SeverityCritical),
		AgentType:       strPtr(RouteEmergency),
		SentToPatient:   boolPtr(false),
		EmergencyNumber: strPtr(a.emergencyNumber),
	}

	coords, found := scanForCoordinates(state.Query, state.History, 3)
	if !found {
		if place, ok := scanForPlace(state.Query, state.History, 3); ok {
			resolved, err := a.geocoder.Geocode(ctx, place)
			if err != nil {
				a.logger.Warn().Err(err).Str("place", place).
					Msg("place lookup failed during emergency")
			} else {
				coords, found = resolved, true
			}
		}
	}
	if !found {
		base.NeedsLocation = boolPtr(true)
		base.Response = strPtr(fmt.Sprintf(
			"This sounds like an emergency. Call %s immediately. "+
				"If you can, share your location (latitude, longitude) and I will find the nearest medical facility.",
			a.emergencyNumber))
		return base, nil
	}

	base.Location = &coords
	base.NeedsLocation = boolPtr(false)

	facilities, err := a.geocoder.Nearby(ctx, coords, a.radiusKm, "hospital")
	if err != nil {
		a.logger.Error().Err(err).Str("patient_id", state.PatientID).
			Msg("nearby facility lookup failed during emergency")
		base.Response = strPtr(fmt.Sprintf(
			"This sounds like an emergency. Call %s immediately. "+
				"I could not look up nearby facilities right now.",
			a.emergencyNumber))
		return base, nil
	}

	base.Facilities = facilities
	base.Response = strPtr(a.formatEmergencyResponse(facilities))
	return base, nil
}

func (a *EmergencyAgent) formatEmergencyResponse(facilities []geo.Facility) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This sounds like an emergency. Call %s immediately.\n", a.emergencyNumber)
	if len(facilities) == 0 {
		b.WriteString("No medical facilities were found near your location.")
		return b.String()
	}
	b.WriteString("Nearest medical facilities:\n")
	for i, f := range facilities {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s, %s\n", i+1, f.Name, f.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

// scanForCoordinates looks for a lat,lng pair in the current message first,
// then in the most recent turns, newest first.
func scanForCoordinates(query string, history []*communication.ChatMessage, turns int) (geo.Coordinates, bool) {
	if c, ok := parseCoordinates(query); ok {
		return c, true
	}
	start := len(history) - turns
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		if c, ok := parseCoordinates(history[i].Content); ok {
			return c, true
		}
	}
	return geo.Coordinates{}, false
}

// placeMarkers introduce free-text location phrases. The text after the
// marker, up to the end of the sentence, is sent to the geocoder.
var placeMarkers = []string{
	"i am at ", "i'm at ", "i am in ", "i'm in ", "i am near ", "i'm near ",
	"my location is ", "my address is ", "located at ",
}

// scanForPlace looks for a place phrase in the current message first, then
// in the most recent turns, newest first.
func scanForPlace(query string, history []*communication.ChatMessage, turns int) (string, bool) {
	if p, ok := parsePlace(query); ok {
		return p, true
	}
	start := len(history) - turns
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		if p, ok := parsePlace(history[i].Content); ok {
			return p, true
		}
	}
	return "", false
}

func parsePlace(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, marker := range placeMarkers {
		idx := strings.Index(lowered, marker)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(marker):]
		if end := strings.IndexAny(rest, ".!?\n"); end >= 0 {
			rest = rest[:end]
		}
		rest = strings.TrimSpace(rest)
		if rest != "" {
			return rest, true
		}
	}
	return "", false
}

func parseCoordinates(text string) (geo.Coordinates, bool) {
	m := coordsRe.FindStringSubmatch(text)
	if m == nil {
		return geo.Coordinates{}, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinates{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Lat: lat, Lng: lng}, true
}
