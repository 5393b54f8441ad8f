package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/platform/geo"
	"github.com/carebridge/carebridge/internal/platform/notification"
)

// checkpointInterval is the number of exchanges between conversation
// checkpoints.
const checkpointInterval = 7

// ValidationError marks caller mistakes so the handler can answer 400
// instead of 500.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// checkpointOffer replaces the answer on the message that enters a loop
// boundary; the exchange counter does not advance until the patient replies.
const checkpointOffer = "We've covered a lot in this conversation. Would you like " +
	"to continue, or end it and receive a summary? Reply \"continue\" or \"end\"."

// Checkpoint replies accepted on the chat endpoint.
const (
	CheckpointContinue = "continue"
	CheckpointEnd      = "end"
)

// CommunicationStore is the slice of the communication service the
// conversation flow writes through.
type CommunicationStore interface {
	Record(ctx context.Context, rec *communication.Record) error
	RecordSummary(ctx context.Context, p communication.SummaryParams) (*communication.Record, error)
	RecordCheckpoint(ctx context.Context, patientID, sessionID string) error
	CountQAPairs(ctx context.Context, patientID, sessionID string) (int, error)
	AppendChat(ctx context.Context, patientID, sessionID, role, content string) error
	ChatHistory(ctx context.Context, patientID, sessionID string, limit int) ([]*communication.ChatMessage, error)
	ListBySession(ctx context.Context, patientID, sessionID string, limit, offset int) ([]*communication.Record, int, error)
}

// Notifier sends doctor alerts.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Service runs one conversation turn end to end: graph, persistence,
// doctor notification, and chat history.
type Service struct {
	graph       *Graph
	comms       CommunicationStore
	summarizer  *Summarizer
	notifier    Notifier
	doctorEmail string
	logger      zerolog.Logger
}

func NewService(graph *Graph, comms CommunicationStore, summarizer *Summarizer, notifier Notifier, doctorEmail string, logger zerolog.Logger) *Service {
	return &Service{
		graph:       graph,
		comms:       comms,
		summarizer:  summarizer,
		notifier:    notifier,
		doctorEmail: doctorEmail,
		logger:      logger,
	}
}

// ChatRequest is one inbound patient message. SessionID scopes the
// conversation; a message without one starts a new session and the response
// carries the id to continue it.
type ChatRequest struct {
	PatientID       string `json:"patient_id"`
	SessionID       string `json:"session_id,omitempty"`
	Message         string `json:"message"`
	CheckpointReply string `json:"checkpoint_reply,omitempty"`
}

// ChatResponse is the outcome of one conversation turn.
type ChatResponse struct {
	SessionID         string         `json:"session_id"`
	Response          string         `json:"response"`
	Route             string         `json:"route,omitempty"`
	Severity          string         `json:"severity,omitempty"`
	AgentType         string         `json:"agent_type,omitempty"`
	NeedsLocation     bool           `json:"needs_location,omitempty"`
	EmergencyNumber   string         `json:"emergency_number,omitempty"`
	Facilities        []geo.Facility `json:"facilities,omitempty"`
	SentToDoctor      bool           `json:"sent_to_doctor"`
	CheckpointPending bool           `json:"checkpoint_pending"`
	SummaryWritten    bool           `json:"summary_written,omitempty"`
}

// Chat handles one turn. Checkpoint replies short-circuit the graph; a
// message entering a loop boundary gets the fixed checkpoint offer instead
// of an answer; all other messages run the full topology.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	patientID := patient.NormalizeID(req.PatientID)
	if patientID == "" {
		return nil, validationf("patient_id is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)

	if reply := strings.ToLower(strings.TrimSpace(req.CheckpointReply)); reply != "" {
		if sessionID == "" {
			return nil, validationf("session_id is required with checkpoint_reply")
		}
		return s.handleCheckpointReply(ctx, patientID, sessionID, reply)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, validationf("message is required")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	prior, err := s.comms.CountQAPairs(ctx, patientID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count exchanges: %w", err)
	}

	// At a loop boundary the offer replaces the answer. The message is not
	// recorded as an exchange and the counter stays put until the patient
	// replies continue or end.
	if prior > 0 && prior%checkpointInterval == 0 {
		s.appendChat(ctx, patientID, sessionID, req.Message, checkpointOffer)
		return &ChatResponse{
			SessionID:         sessionID,
			Response:          checkpointOffer,
			CheckpointPending: true,
		}, nil
	}

	history, err := s.comms.ChatHistory(ctx, patientID, sessionID, 10)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	state := &State{
		PatientID: patientID,
		SessionID: sessionID,
		Query:     req.Message,
		History:   history,
	}
	if err := s.graph.Run(ctx, state); err != nil {
		return nil, err
	}

	state.SentToDoctor = shouldNotifyDoctor(state)
	state.QAPairCount = prior + 1

	rec := &communication.Record{
		PatientID:     patientID,
		SessionID:     sessionID,
		Query:         state.Query,
		Response:      state.Response,
		Severity:      state.Severity,
		AgentType:     state.AgentType,
		SentToPatient: state.SentToPatient,
		SentToDoctor:  state.SentToDoctor,
		QAPairCount:   state.QAPairCount,
	}
	if err := s.comms.Record(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist communication: %w", err)
	}

	// Alert failures must not fail the patient's turn.
	if state.SentToDoctor {
		s.notifyDoctor(ctx, state)
	}

	s.appendChat(ctx, patientID, sessionID, state.Query, state.Response)

	return &ChatResponse{
		SessionID:       sessionID,
		Response:        state.Response,
		Route:           state.Route,
		Severity:        state.Severity,
		AgentType:       state.AgentType,
		NeedsLocation:   state.NeedsLocation,
		EmergencyNumber: state.EmergencyNumber,
		Facilities:      state.Facilities,
		SentToDoctor:    state.SentToDoctor,
	}, nil
}

func (s *Service) handleCheckpointReply(ctx context.Context, patientID, sessionID, reply string) (*ChatResponse, error) {
	switch reply {
	case CheckpointContinue:
		if err := s.comms.RecordCheckpoint(ctx, patientID, sessionID); err != nil {
			return nil, fmt.Errorf("record checkpoint: %w", err)
		}
		resp := "Alright, let's continue. What would you like to ask next?"
		s.appendChat(ctx, patientID, sessionID, reply, resp)
		return &ChatResponse{SessionID: sessionID, Response: resp}, nil

	case CheckpointEnd:
		qaPairs, err := s.comms.CountQAPairs(ctx, patientID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("count exchanges: %w", err)
		}
		records, _, err := s.comms.ListBySession(ctx, patientID, sessionID, checkpointInterval, 0)
		if err != nil {
			return nil, fmt.Errorf("load exchanges for summary: %w", err)
		}

		text, source := s.summarizer.Summarize(ctx, patientID, records)
		if _, err := s.comms.RecordSummary(ctx, communication.SummaryParams{
			PatientID: patientID,
			SessionID: sessionID,
			Text:      text,
			Source:    source,
			Severity:  summarySeverity(records),
			AgentType: summaryAgentType(records),
			QAPairs:   qaPairs,
		}); err != nil {
			return nil, fmt.Errorf("persist summary: %w", err)
		}

		resp := "Thanks for chatting. Here is a summary of our conversation:\n\n" + text
		s.appendChat(ctx, patientID, sessionID, reply, resp)
		return &ChatResponse{SessionID: sessionID, Response: resp, SummaryWritten: true}, nil

	default:
		return nil, validationf("checkpoint_reply must be %q or %q", CheckpointContinue, CheckpointEnd)
	}
}

// summarySeverity is the most urgent severity across the summarized
// exchanges, so escalations survive the summary round-trip.
func summarySeverity(records []*communication.Record) string {
	sev := SeverityLow
	for _, r := range records {
		if r.IsConversationSummary || r.AgentType == communication.AgentTypeCheckpoint {
			continue
		}
		if validSeverity(r.Severity) && severityAtLeast(r.Severity, sev) {
			sev = r.Severity
		}
	}
	return sev
}

// summaryAgentType is the most recent exchange's agent. Records arrive
// newest first.
func summaryAgentType(records []*communication.Record) string {
	for _, r := range records {
		if r.IsConversationSummary || r.AgentType == communication.AgentTypeCheckpoint {
			continue
		}
		return r.AgentType
	}
	return ""
}

func (s *Service) notifyDoctor(ctx context.Context, state *State) {
	templateID := notification.TemplateClinicalEscalation
	data := map[string]string{
		"patient_id": state.PatientID,
		"query":      state.Query,
		"response":   state.Response,
		"severity":   state.Severity,
	}
	if state.Route == RouteEmergency {
		templateID = notification.TemplateEmergencyAlert
		data["location"] = "unknown"
		if state.Location != nil {
			data["location"] = fmt.Sprintf("%.5f, %.5f", state.Location.Lat, state.Location.Lng)
		}
		data["facility"] = "none found"
		if len(state.Facilities) > 0 {
			data["facility"] = fmt.Sprintf("%s, %s", state.Facilities[0].Name, state.Facilities[0].Address)
		}
	}

	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, s.doctorEmail); err != nil {
		s.logger.Error().Err(err).
			Str("patient_id", state.PatientID).
			Str("template", templateID).
			Msg("doctor alert failed")
	}
}

func (s *Service) appendChat(ctx context.Context, patientID, sessionID, userMsg, assistantMsg string) {
	if err := s.comms.AppendChat(ctx, patientID, sessionID, communication.RoleUser, userMsg); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("append user chat turn failed")
	}
	if err := s.comms.AppendChat(ctx, patientID, sessionID, communication.RoleAssistant, assistantMsg); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("append assistant chat turn failed")
	}
}
