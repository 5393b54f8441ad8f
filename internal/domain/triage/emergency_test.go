package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/platform/geo"
)

func TestParseCoordinates(t *testing.T) {
	cases := []struct {
		text string
		want geo.Coordinates
		ok   bool
	}{
		{"I'm at 53.801, -1.549", geo.Coordinates{Lat: 53.801, Lng: -1.549}, true},
		{"53.8008,-1.5491 please hurry", geo.Coordinates{Lat: 53.8008, Lng: -1.5491}, true},
		{"no coordinates here", geo.Coordinates{}, false},
		{"lat out of range 95.0, 10.0", geo.Coordinates{}, false},
		{"version 2.5, build 7", geo.Coordinates{}, false},
	}
	for _, tc := range cases {
		got, ok := parseCoordinates(tc.text)
		if ok != tc.ok {
			t.Errorf("parseCoordinates(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("parseCoordinates(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestScanForCoordinatesChecksRecentTurnsOnly(t *testing.T) {
	history := []*communication.ChatMessage{
		{Role: communication.RoleUser, Content: "old location 10.0, 20.0"},
		{Role: communication.RoleUser, Content: "unrelated"},
		{Role: communication.RoleAssistant, Content: "ok"},
		{Role: communication.RoleUser, Content: "also unrelated"},
	}

	// the coordinate-bearing turn is outside the 3-turn window
	if _, ok := scanForCoordinates("help", history, 3); ok {
		t.Error("should not find coordinates outside the window")
	}

	// current message wins over history
	c, ok := scanForCoordinates("I'm at 1.5, 2.5", history, 3)
	if !ok || c.Lat != 1.5 {
		t.Errorf("current message coordinates not found: %+v ok=%v", c, ok)
	}

	// within the window, newest turn wins
	history[3].Content = "now at 3.5, 4.5"
	c, ok = scanForCoordinates("help", history, 3)
	if !ok || c.Lat != 3.5 {
		t.Errorf("windowed coordinates not found: %+v ok=%v", c, ok)
	}
}

func TestEmergencyAgentWithLocation(t *testing.T) {
	geocoder := &stubGeocoder{facilities: []geo.Facility{
		{Name: "Leeds General Infirmary", Address: "Great George St"},
		{Name: "St James's", Address: "Beckett St"},
	}}
	agent := NewEmergencyAgent(geocoder, 10, "999", testLogger)

	state := &State{PatientID: "a@example.com", Query: "heart attack, I'm at 53.801, -1.549"}
	patch, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	state.Apply(patch)

	if state.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", state.Severity)
	}
	if state.SentToPatient {
		t.Error("emergency responses are not marked sent to patient")
	}
	if state.NeedsLocation {
		t.Error("NeedsLocation should be false when coordinates are present")
	}
	if len(state.Facilities) != 2 {
		t.Fatalf("facilities = %d, want 2", len(state.Facilities))
	}
	if !strings.Contains(state.Response, "999") || !strings.Contains(state.Response, "Leeds General Infirmary") {
		t.Errorf("response missing guidance: %q", state.Response)
	}
	if geocoder.lastCoords.Lat != 53.801 {
		t.Errorf("geocoder called with %+v", geocoder.lastCoords)
	}
}

func TestEmergencyAgentWithoutLocation(t *testing.T) {
	agent := NewEmergencyAgent(&stubGeocoder{}, 10, "999", testLogger)

	state := &State{PatientID: "a@example.com", Query: "I think I'm having a stroke"}
	patch, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	state.Apply(patch)

	if !state.NeedsLocation {
		t.Error("NeedsLocation should be set without coordinates")
	}
	if state.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", state.Severity)
	}
	if !strings.Contains(state.Response, "999") {
		t.Errorf("response must include the emergency number: %q", state.Response)
	}
	if state.EmergencyNumber != "999" {
		t.Errorf("emergency number = %q, want 999", state.EmergencyNumber)
	}
}

func TestEmergencyAgentGeocodesPlaceName(t *testing.T) {
	geocoder := &stubGeocoder{
		placeCoords: &geo.Coordinates{Lat: 53.8, Lng: -1.55},
		facilities:  []geo.Facility{{Name: "Leeds General Infirmary", Address: "Great George St"}},
	}
	agent := NewEmergencyAgent(geocoder, 10, "999", testLogger)

	state := &State{PatientID: "a@example.com", Query: "severe bleeding, I'm at Leeds city centre. Hurry"}
	patch, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	state.Apply(patch)

	if geocoder.lastPlace != "Leeds city centre" {
		t.Errorf("geocoded place = %q, want %q", geocoder.lastPlace, "Leeds city centre")
	}
	if state.NeedsLocation {
		t.Error("NeedsLocation should be false after a successful place lookup")
	}
	if !strings.Contains(state.Response, "Leeds General Infirmary") {
		t.Errorf("response missing facility: %q", state.Response)
	}
}

func TestEmergencyAgentDegradesWhenPlaceUnresolvable(t *testing.T) {
	agent := NewEmergencyAgent(&stubGeocoder{}, 10, "999", testLogger)

	state := &State{PatientID: "a@example.com", Query: "overdose, I'm at somewhere unpronounceable"}
	patch, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	state.Apply(patch)

	if !state.NeedsLocation {
		t.Error("NeedsLocation should be set when the place cannot be resolved")
	}
	if !strings.Contains(state.Response, "999") {
		t.Errorf("response must include the emergency number: %q", state.Response)
	}
}

func TestEmergencyAgentSurvivesLookupFailure(t *testing.T) {
	agent := NewEmergencyAgent(&stubGeocoder{nearbyErr: errors.New("maps down")}, 10, "999", testLogger)

	state := &State{PatientID: "a@example.com", Query: "overdose at 53.8, -1.5"}
	patch, err := agent.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run should not fail on lookup error: %v", err)
	}
	state.Apply(patch)

	if state.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", state.Severity)
	}
	if !strings.Contains(state.Response, "999") {
		t.Errorf("response must still include the emergency number: %q", state.Response)
	}
}
