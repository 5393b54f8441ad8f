package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/platform/llm"
)

// Supervisor decides which agent handles the query. It asks the model first
// and falls back to the keyword table, so routing always produces a label.
type Supervisor struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewSupervisor(gen llm.Generator, logger zerolog.Logger) *Supervisor {
	return &Supervisor{gen: gen, logger: logger}
}

const supervisorPrompt = `You are a triage router for a patient support service.
Classify the patient's message into exactly one category:

- emergency: life-threatening situations needing immediate help
- clinical: medical questions about symptoms, medications, or treatment
- personal: questions about the patient's own profile, orders, or history
- faq: general questions about the service

Reply with only the category name.

Patient message: %s`

func (a *Supervisor) Name() string { return "supervisor" }

func (a *Supervisor) Run(ctx context.Context, state *State) (Patch, error) {
	// Keyword emergencies bypass the model so the hot path never waits on it.
	if classifyRouteByKeywords(state.Query) == RouteEmergency {
		return Patch{Route: strPtr(RouteEmergency)}, nil
	}

	out, err := a.gen.Generate(ctx, fmt.Sprintf(supervisorPrompt, state.Query))
	if err == nil {
		if route := parseLabel(out, validRoute); route != "" {
			return Patch{Route: strPtr(route)}, nil
		}
	} else {
		a.logger.Warn().Err(err).Str("patient_id", state.PatientID).
			Msg("supervisor model call failed, using keyword routing")
	}
	return Patch{Route: strPtr(classifyRouteByKeywords(state.Query))}, nil
}

// parseLabel extracts the first valid label word from model output.
func parseLabel(out string, valid func(string) bool) string {
	for _, field := range strings.FieldsFunc(strings.ToLower(out), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if valid(field) {
			return field
		}
	}
	return ""
}
