package triage

import (
	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/platform/geo"
)

// Routes produced by the supervisor.
const (
	RouteClinical  = "clinical"
	RouteEmergency = "emergency"
	RoutePersonal  = "personal"
	RouteFAQ       = "faq"
)

// Severity levels, ordered from least to most urgent.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// State is the shared conversation state threaded through the graph. Nodes
// never mutate it directly; they return a Patch and the runner applies it.
type State struct {
	PatientID       string
	SessionID       string
	Query           string
	CheckpointReply string

	History []*communication.ChatMessage

	Route    string
	Severity string

	Response      string
	AgentType     string
	SentToPatient bool
	SentToDoctor  bool

	NeedsLocation   bool
	EmergencyNumber string
	Location        *geo.Coordinates
	Facilities      []geo.Facility

	QAPairCount         int
	CheckpointPending   bool
	SummaryWritten      bool
	ConversationSummary string
}

// Patch is a partial state update. Nil fields leave the current value in
// place; set fields overwrite it, so later patches win per field.
type Patch struct {
	Route    *string
	Severity *string

	Response      *string
	AgentType     *string
	SentToPatient *bool
	SentToDoctor  *bool

	NeedsLocation   *bool
	EmergencyNumber *string
	Location        *geo.Coordinates
	Facilities      []geo.Facility

	QAPairCount         *int
	CheckpointPending   *bool
	SummaryWritten      *bool
	ConversationSummary *string
}

// Apply merges the patch into the state, field by field.
func (s *State) Apply(p Patch) {
	if p.Route != nil {
		s.Route = *p.Route
	}
	if p.Severity != nil {
		s.Severity = *p.Severity
	}
	if p.Response != nil {
		s.Response = *p.Response
	}
	if p.AgentType != nil {
		s.AgentType = *p.AgentType
	}
	if p.SentToPatient != nil {
		s.SentToPatient = *p.SentToPatient
	}
	if p.SentToDoctor != nil {
		s.SentToDoctor = *p.SentToDoctor
	}
	if p.NeedsLocation != nil {
		s.NeedsLocation = *p.NeedsLocation
	}
	if p.EmergencyNumber != nil {
		s.EmergencyNumber = *p.EmergencyNumber
	}
	if p.Location != nil {
		s.Location = p.Location
	}
	if p.Facilities != nil {
		s.Facilities = p.Facilities
	}
	if p.QAPairCount != nil {
		s.QAPairCount = *p.QAPairCount
	}
	if p.CheckpointPending != nil {
		s.CheckpointPending = *p.CheckpointPending
	}
	if p.SummaryWritten != nil {
		s.SummaryWritten = *p.SummaryWritten
	}
	if p.ConversationSummary != nil {
		s.ConversationSummary = *p.ConversationSummary
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }
