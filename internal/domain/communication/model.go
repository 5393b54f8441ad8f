package communication

import (
	"time"

	"github.com/google/uuid"
)

// Record is one stored exchange between a patient and the assistant.
// Records are append-only: corrections are new rows, never updates.
type Record struct {
	ID        uuid.UUID `json:"id"`
	PatientID string    `json:"patient_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Severity  string    `json:"severity"`
	AgentType string    `json:"agent_type"`

	SentToPatient bool `json:"sent_to_patient"`
	SentToDoctor  bool `json:"sent_to_doctor"`

	// Summary rows replace a run of Q&A rows at a conversation checkpoint.
	IsConversationSummary bool   `json:"is_conversation_summary"`
	SummarySource         string `json:"summary_source,omitempty"`
	QAPairCount           int    `json:"qa_pair_count"`

	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one turn of raw chat history, kept separately from the
// communication log so the conversation graph can replay recent turns.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	PatientID string    `json:"patient_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Summary sources.
const (
	SummarySourceAIGenerated = "ai_generated"
	SummarySourceFallback    = "fallback"
)

// AgentTypeCheckpoint marks counter-reset rows written when the patient
// chooses to continue past a conversation checkpoint. They carry no query or
// response and are excluded from exchange counting.
const AgentTypeCheckpoint = "checkpoint"
