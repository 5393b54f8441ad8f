package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/platform/llm"
)

// FAQAgent answers general questions about the service.
type FAQAgent struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewFAQAgent(gen llm.Generator, logger zerolog.Logger) *FAQAgent {
	return &FAQAgent{gen: gen, logger: logger}
}

const faqPrompt = `You are a support assistant for a patient support service
that offers medical question answering, medication ordering, and emergency
guidance. Answer the user's general question about the service briefly and
accurately. Do not give medical advice here.

Question: %s`

const faqFallback = "I can help with medical questions, your orders and profile, " +
	"and emergencies. Could you rephrase your question?"

func (a *FAQAgent) Name() string { return "faq" }

func (a *FAQAgent) Run(ctx context.Context, state *State) (Patch, error) {
	out, err := a.gen.Generate(ctx, fmt.Sprintf(faqPrompt, state.Query))
	response := strings.TrimSpace(out)
	if err != nil || response == "" {
		if err != nil {
			a.logger.Warn().Err(err).Str("patient_id", state.PatientID).
				Msg("faq model call failed, using fallback")
		}
		response = faqFallback
	}
	return Patch{
		Response:      strPtr(response),
		AgentType:     strPtr(RouteFAQ),
		SentToPatient: boolPtr(true),
	}, nil
}
