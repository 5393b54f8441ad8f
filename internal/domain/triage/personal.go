package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/platform/llm"
)

// CommunicationReader is the slice of the communication service the personal
// agent needs for history summaries.
type CommunicationReader interface {
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*communication.Record, int, error)
}

// PersonalAgent answers questions about the patient's own data. Sub-routing
// is keyword based: orders, profile, history summary, then open Q&A.
type PersonalAgent struct {
	gen      llm.Generator
	patients PatientReader
	comms    CommunicationReader
	logger   zerolog.Logger
}

func NewPersonalAgent(gen llm.Generator, patients PatientReader, comms CommunicationReader, logger zerolog.Logger) *PersonalAgent {
	return &PersonalAgent{gen: gen, patients: patients, comms: comms, logger: logger}
}

func (a *PersonalAgent) Name() string { return "personal" }

func (a *PersonalAgent) Run(ctx context.Context, state *State) (Patch, error) {
	p, err := a.patients.Get(ctx, state.PatientID)
	if errors.Is(err, patient.ErrNotFound) {
		// Personal data questions require a registered profile.
		return Patch{
			Response: strPtr("I don't have a profile for you yet. " +
				"Please register with your email address so I can look up your information."),
			AgentType:     strPtr(RoutePersonal),
			SentToPatient: boolPtr(true),
		}, nil
	}
	if err != nil {
		return Patch{}, fmt.Errorf("load patient profile: %w", err)
	}

	query := strings.ToLower(state.Query)
	var response string
	switch {
	case strings.Contains(query, "order"):
		response = formatOrders(p)
	case containsAny(query, "allerg", "condition", "medication", "profile", "account"):
		response = formatProfileAnswer(p)
	case containsAny(query, "summary", "history"):
		response = a.historySummary(ctx, state.PatientID)
	default:
		response = a.openAnswer(ctx, p, state)
	}

	return Patch{
		Response:      strPtr(response),
		AgentType:     strPtr(RoutePersonal),
		SentToPatient: boolPtr(true),
	}, nil
}

func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func formatOrders(p *patient.Patient) string {
	if len(p.OrderHistory) == 0 {
		return "You have no orders on record."
	}
	var b strings.Builder
	b.WriteString("Your recent orders:\n")
	for i := len(p.OrderHistory) - 1; i >= 0 && len(p.OrderHistory)-i <= 5; i-- {
		o := p.OrderHistory[i]
		fmt.Fprintf(&b, "- %s x%d (%s, placed %s)\n", o.Item, o.Quantity, o.Status, o.PlacedAt.Format("2 Jan 2006"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProfileAnswer(p *patient.Patient) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I have on record for %s:\n", p.Name)
	if len(p.Allergies) > 0 {
		fmt.Fprintf(&b, "Allergies: %s\n", strings.Join(p.Allergies, ", "))
	} else {
		b.WriteString("Allergies: none recorded\n")
	}
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "Conditions: %s\n", strings.Join(p.Conditions, ", "))
	} else {
		b.WriteString("Conditions: none recorded\n")
	}
	if len(p.MedicationHistory) > 0 {
		names := make([]string, 0, len(p.MedicationHistory))
		for _, m := range p.MedicationHistory {
			names = append(names, m.Name)
		}
		fmt.Fprintf(&b, "Medications: %s\n", strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

const personalSummaryPrompt = `Write a 150-200 word summary of this patient's
recent interactions with their care service, in plain language addressed to the
patient. Cover the topics discussed and any advice given.

Interactions:
%s`

// historySummary condenses up to 20 recent communication records. The model
// writes the prose; on failure the deterministic topic-and-date-range
// fallback is returned instead.
func (a *PersonalAgent) historySummary(ctx context.Context, patientID string) string {
	records, _, err := a.comms.ListByPatient(ctx, patientID, 20, 0)
	if err != nil {
		a.logger.Error().Err(err).Str("patient_id", patientID).Msg("history summary fetch failed")
		return "I couldn't retrieve your history right now. Please try again later."
	}
	if len(records) == 0 {
		return "You have no conversation history yet."
	}

	var topics strings.Builder
	for _, r := range records {
		if r.Query != "" {
			fmt.Fprintf(&topics, "- %s\n", r.Query)
		}
	}

	out, err := a.gen.Generate(ctx, fmt.Sprintf(personalSummaryPrompt, topics.String()))
	if err != nil || strings.TrimSpace(out) == "" {
		a.logger.Warn().Err(err).Str("patient_id", patientID).
			Msg("history summary model call failed, using fallback summary")
		return fallbackSummary(records)
	}
	return strings.TrimSpace(out)
}

const personalOpenPrompt = `You are a patient support assistant answering a
question about the patient's own records. Use only the profile and recent
conversation below. If the records do not contain the answer, say so.

Patient profile:
%s
Recent conversation:
%s
Question: %s`

func (a *PersonalAgent) openAnswer(ctx context.Context, p *patient.Patient, state *State) string {
	out, err := a.gen.Generate(ctx, fmt.Sprintf(personalOpenPrompt,
		formatProfile(p), formatHistory(state.History, 3), state.Query))
	if err != nil || strings.TrimSpace(out) == "" {
		a.logger.Warn().Err(err).Str("patient_id", state.PatientID).
			Msg("personal open answer model call failed")
		return "I couldn't find that in your records. Please contact your care team for help."
	}
	return strings.TrimSpace(out)
}
