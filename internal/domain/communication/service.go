package communication

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

type Service struct {
	records Repository
	chat    ChatRepository
}

func NewService(records Repository, chat ChatRepository) *Service {
	return &Service{records: records, chat: chat}
}

// Record appends one exchange to the communication log.
func (s *Service) Record(ctx context.Context, rec *Record) error {
	if rec.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if rec.AgentType == "" {
		return fmt.Errorf("agent_type is required")
	}
	return s.records.Create(ctx, rec)
}

// SummaryParams describes the summary row written at a conversation
// checkpoint. Severity and AgentType carry the summarized conversation's
// values so the round-trip preserves them.
type SummaryParams struct {
	PatientID string
	SessionID string
	Text      string
	Source    string
	Severity  string
	AgentType string
	QAPairs   int
}

// RecordSummary appends a conversation summary row. Exactly one row is
// written per checkpoint regardless of how many exchanges it covers.
func (s *Service) RecordSummary(ctx context.Context, p SummaryParams) (*Record, error) {
	if p.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	agentType := p.AgentType
	if agentType == "" {
		// A session with no exchanges has no agent to attribute.
		agentType = "summary"
	}
	rec := &Record{
		PatientID:             p.PatientID,
		SessionID:             p.SessionID,
		Response:              p.Text,
		Severity:              p.Severity,
		AgentType:             agentType,
		SentToPatient:         true,
		IsConversationSummary: true,
		SummarySource:         p.Source,
		QAPairCount:           p.QAPairs,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordCheckpoint appends a counter-reset marker for the session. Written
// when the patient chooses to continue past a checkpoint, so the next loop
// starts counting from zero.
func (s *Service) RecordCheckpoint(ctx context.Context, patientID, sessionID string) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	return s.records.Create(ctx, &Record{
		PatientID: patientID,
		SessionID: sessionID,
		AgentType: AgentTypeCheckpoint,
	})
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error) {
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// ListBySession returns one session's rows, newest first.
func (s *Service) ListBySession(ctx context.Context, patientID, sessionID string, limit, offset int) ([]*Record, int, error) {
	return s.records.ListBySession(ctx, patientID, sessionID, limit, offset)
}

// CountQAPairs returns the number of exchanges in the session since the last
// summary or checkpoint marker.
func (s *Service) CountQAPairs(ctx context.Context, patientID, sessionID string) (int, error) {
	return s.records.CountQAPairs(ctx, patientID, sessionID)
}

// AppendChat stores one raw chat turn.
func (s *Service) AppendChat(ctx context.Context, patientID, sessionID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("invalid chat role %q", role)
	}
	return s.chat.Append(ctx, &ChatMessage{PatientID: patientID, SessionID: sessionID, Role: role, Content: content})
}

// ChatHistory returns the session's most recent turns in chronological order.
func (s *Service) ChatHistory(ctx context.Context, patientID, sessionID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.chat.History(ctx, patientID, sessionID, limit)
}

// ExportCSV streams a patient's communication log as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, patientID string) error {
	const pageSize = 500

	cw := csv.NewWriter(w)
	header := []string{"id", "patient_id", "session_id", "query", "response", "severity", "agent_type",
		"sent_to_patient", "sent_to_doctor", "is_conversation_summary", "summary_source",
		"qa_pair_count", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for offset := 0; ; offset += pageSize {
		items, _, err := s.records.ListByPatient(ctx, patientID, pageSize, offset)
		if err != nil {
			return err
		}
		for _, rec := range items {
			row := []string{
				rec.ID.String(),
				rec.PatientID,
				rec.SessionID,
				rec.Query,
				rec.Response,
				rec.Severity,
				rec.AgentType,
				strconv.FormatBool(rec.SentToPatient),
				strconv.FormatBool(rec.SentToDoctor),
				strconv.FormatBool(rec.IsConversationSummary),
				rec.SummarySource,
				strconv.Itoa(rec.QAPairCount),
				rec.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		if len(items) < pageSize {
			break
		}
	}

	cw.Flush()
	return cw.Error()
}
