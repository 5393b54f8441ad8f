package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/platform/llm"
)

const summaryPrompt = `Write a 150-200 word summary of this patient support
conversation for the patient's records. Cover the topics discussed, any advice
given, and anything that was escalated. Write in the third person.

Conversation:
%s`

// Summarizer condenses a run of exchanges into one summary at a
// conversation checkpoint.
type Summarizer struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewSummarizer(gen llm.Generator, logger zerolog.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logger}
}

// Summarize produces the summary text and its source. The model writes the
// prose; when it fails, the deterministic fallback lists the topics and the
// date range covered so the record is never empty.
func (s *Summarizer) Summarize(ctx context.Context, patientID string, records []*communication.Record) (text, source string) {
	if len(records) == 0 {
		return "No exchanges to summarize.", communication.SummarySourceFallback
	}

	var convo strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.IsConversationSummary || r.AgentType == communication.AgentTypeCheckpoint {
			continue
		}
		fmt.Fprintf(&convo, "Patient: %s\nAssistant: %s\n", r.Query, r.Response)
	}

	out, err := s.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, convo.String()))
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out), communication.SummarySourceAIGenerated
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).
			Msg("summary model call failed, using fallback summary")
	}
	return fallbackSummary(records), communication.SummarySourceFallback
}

// fallbackSummary lists topics and the covered date range.
func fallbackSummary(records []*communication.Record) string {
	var topics []string
	var earliest, latest time.Time
	for _, r := range records {
		if r.IsConversationSummary || r.AgentType == communication.AgentTypeCheckpoint {
			continue
		}
		if r.Query != "" {
			topics = append(topics, r.Query)
		}
		if earliest.IsZero() || r.CreatedAt.Before(earliest) {
			earliest = r.CreatedAt
		}
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	if len(topics) == 0 {
		return "No exchanges to summarize."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation from %s to %s covering %d topics:\n",
		earliest.UTC().Format("2 Jan 2006"), latest.UTC().Format("2 Jan 2006"), len(topics))
	for _, topic := range topics {
		fmt.Fprintf(&b, "- %s\n", topic)
	}
	return strings.TrimRight(b.String(), "\n")
}
