package triage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/platform/llm"
)

// SeverityGrader assigns an urgency level to the query. Emergency routes are
// always critical; otherwise the model grades first with the keyword table
// as fallback.
type SeverityGrader struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewSeverityGrader(gen llm.Generator, logger zerolog.Logger) *SeverityGrader {
	return &SeverityGrader{gen: gen, logger: logger}
}

const severityPrompt = `You are grading the urgency of a patient message for a
support service. Classify it as exactly one of: low, medium, high, critical.

- critical: life-threatening, needs emergency services
- high: needs clinician attention within hours
- medium: should be reviewed soon but not urgent
- low: informational, no clinical urgency

Reply with only the level.

Patient message: %s`

func (a *SeverityGrader) Name() string { return "severity" }

func (a *SeverityGrader) Run(ctx context.Context, state *State) (Patch, error) {
	if state.Route == RouteEmergency {
		return Patch{Severity: strPtr(SeverityCritical)}, nil
	}

	out, err := a.gen.Generate(ctx, fmt.Sprintf(severityPrompt, state.Query))
	if err == nil {
		if sev := parseLabel(out, validSeverity); sev != "" {
			return Patch{Severity: strPtr(sev)}, nil
		}
	} else {
		a.logger.Warn().Err(err).Str("patient_id", state.PatientID).
			Msg("severity model call failed, using keyword grading")
	}
	return Patch{Severity: strPtr(classifySeverityByKeywords(state.Query))}, nil
}
