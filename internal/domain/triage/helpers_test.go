package triage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/platform/geo"
	"github.com/carebridge/carebridge/internal/platform/llm"
	"github.com/carebridge/carebridge/internal/platform/notification"
)

var testLogger = zerolog.Nop()

// fixedGen always returns the same output.
func fixedGen(out string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return out, nil
	})
}

// failingGen always errors.
func failingGen() llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
}

// stubPatients serves a fixed set of profiles.
type stubPatients struct {
	profiles map[string]*patient.Patient
}

func (s *stubPatients) Get(_ context.Context, id string) (*patient.Patient, error) {
	p, ok := s.profiles[patient.NormalizeID(id)]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

// stubGeocoder returns canned facilities and an optional canned geocode hit.
type stubGeocoder struct {
	facilities []geo.Facility
	nearbyErr  error
	lastCoords geo.Coordinates

	placeCoords *geo.Coordinates
	lastPlace   string
}

func (s *stubGeocoder) Geocode(_ context.Context, place string) (geo.Coordinates, error) {
	s.lastPlace = place
	if s.placeCoords == nil {
		return geo.Coordinates{}, geo.ErrNotFound
	}
	return *s.placeCoords, nil
}

func (s *stubGeocoder) Nearby(_ context.Context, at geo.Coordinates, _ float64, _ string) ([]geo.Facility, error) {
	s.lastCoords = at
	if s.nearbyErr != nil {
		return nil, s.nearbyErr
	}
	return s.facilities, nil
}

// memStore is an in-memory CommunicationStore.
type memStore struct {
	records []*communication.Record
	chat    []*communication.ChatMessage
}

func (m *memStore) Record(_ context.Context, rec *communication.Record) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC().Add(time.Duration(len(m.records)) * time.Millisecond)
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memStore) RecordSummary(_ context.Context, p communication.SummaryParams) (*communication.Record, error) {
	rec := &communication.Record{
		ID:                    uuid.New(),
		PatientID:             p.PatientID,
		SessionID:             p.SessionID,
		Response:              p.Text,
		Severity:              p.Severity,
		AgentType:             p.AgentType,
		SentToPatient:         true,
		IsConversationSummary: true,
		SummarySource:         p.Source,
		QAPairCount:           p.QAPairs,
		CreatedAt:             time.Now().UTC().Add(time.Duration(len(m.records)) * time.Millisecond),
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) RecordCheckpoint(_ context.Context, patientID, sessionID string) error {
	m.records = append(m.records, &communication.Record{
		ID:        uuid.New(),
		PatientID: patientID,
		SessionID: sessionID,
		AgentType: communication.AgentTypeCheckpoint,
		CreatedAt: time.Now().UTC().Add(time.Duration(len(m.records)) * time.Millisecond),
	})
	return nil
}

func (m *memStore) CountQAPairs(_ context.Context, patientID, sessionID string) (int, error) {
	n := 0
	for _, r := range m.records {
		if r.PatientID != patientID || r.SessionID != sessionID {
			continue
		}
		if r.IsConversationSummary || r.AgentType == communication.AgentTypeCheckpoint {
			n = 0
			continue
		}
		n++
	}
	return n, nil
}

func (m *memStore) AppendChat(_ context.Context, patientID, sessionID, role, content string) error {
	m.chat = append(m.chat, &communication.ChatMessage{
		ID:        uuid.New(),
		PatientID: patientID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memStore) ChatHistory(_ context.Context, patientID, sessionID string, limit int) ([]*communication.ChatMessage, error) {
	var matched []*communication.ChatMessage
	for _, msg := range m.chat {
		if msg.PatientID == patientID && msg.SessionID == sessionID {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (m *memStore) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*communication.Record, int, error) {
	var matched []*communication.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].PatientID == patientID {
			matched = append(matched, m.records[i])
		}
	}
	return paginateRecords(matched, limit, offset)
}

func (m *memStore) ListBySession(_ context.Context, patientID, sessionID string, limit, offset int) ([]*communication.Record, int, error) {
	var matched []*communication.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].PatientID == patientID && m.records[i].SessionID == sessionID {
			matched = append(matched, m.records[i])
		}
	}
	return paginateRecords(matched, limit, offset)
}

func paginateRecords(matched []*communication.Record, limit, offset int) ([]*communication.Record, int, error) {
	total := len(matched)
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memStore) summaries() []*communication.Record {
	var out []*communication.Record
	for _, r := range m.records {
		if r.IsConversationSummary {
			out = append(out, r)
		}
	}
	return out
}

// stubNotifier records alert sends.
type stubNotifier struct {
	sent    []string
	data    []map[string]string
	failure error
}

func (s *stubNotifier) SendFromTemplate(_ context.Context, templateID string, data map[string]string, _ string) (*notification.Notification, error) {
	s.sent = append(s.sent, templateID)
	s.data = append(s.data, data)
	if s.failure != nil {
		return nil, s.failure
	}
	return &notification.Notification{TemplateID: templateID, Status: "sent"}, nil
}

// newTestGraph wires a graph whose model always answers with the given
// clinical output and routes via keywords only.
func newTestGraph(gen llm.Generator, geocoder geo.Geocoder, patients PatientReader, comms CommunicationReader) *Graph {
	g, err := NewGraph(
		NewSupervisor(failingGen(), testLogger),
		NewSeverityGrader(failingGen(), testLogger),
		map[string]Node{
			RouteClinical:  NewClinicalAgent(gen, patients, testLogger),
			RouteEmergency: NewEmergencyAgent(geocoder, 10, "999", testLogger),
			RoutePersonal:  NewPersonalAgent(gen, patients, comms, testLogger),
			RouteFAQ:       NewFAQAgent(gen, testLogger),
		},
		testLogger,
	)
	if err != nil {
		panic(err)
	}
	return g
}
