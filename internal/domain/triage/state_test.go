package triage

import (
	"testing"

	"github.com/carebridge/carebridge/internal/platform/geo"
)

func TestApplyOverwritesOnlySetFields(t *testing.T) {
	s := &State{Route: RouteClinical, Severity: SeverityLow, Response: "old"}

	s.Apply(Patch{Severity: strPtr(SeverityHigh)})
	if s.Severity != SeverityHigh {
		t.Errorf("severity = %q, want high", s.Severity)
	}
	if s.Route != RouteClinical || s.Response != "old" {
		t.Errorf("unset fields changed: route=%q response=%q", s.Route, s.Response)
	}
}

func TestApplyLastWriteWinsPerField(t *testing.T) {
	s := &State{}

	s.Apply(Patch{Severity: strPtr(SeverityMedium), Response: strPtr("first")})
	s.Apply(Patch{Severity: strPtr(SeverityCritical)})

	if s.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", s.Severity)
	}
	if s.Response != "first" {
		t.Errorf("response = %q, want first", s.Response)
	}
}

func TestApplyBoolAndSliceFields(t *testing.T) {
	s := &State{SentToPatient: true}

	s.Apply(Patch{
		SentToPatient: boolPtr(false),
		NeedsLocation: boolPtr(true),
		Location:      &geo.Coordinates{Lat: 1, Lng: 2},
		Facilities:    []geo.Facility{{Name: "LGI"}},
	})

	if s.SentToPatient {
		t.Error("SentToPatient should be overwritten to false")
	}
	if !s.NeedsLocation || s.Location == nil || len(s.Facilities) != 1 {
		t.Errorf("patch not applied: %+v", s)
	}
}
