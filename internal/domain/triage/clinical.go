package triage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/platform/llm"
)

// PatientReader is the slice of the patient service the agents need.
type PatientReader interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
}

// ClinicalAgent answers medical questions grounded in the patient's stored
// profile. The model must emit RESPONSE and SEVERITY lines; when it fails or
// emits garbage, a caretaker fallback answer is used instead so the patient
// never gets an empty reply.
type ClinicalAgent struct {
	gen      llm.Generator
	patients PatientReader
	logger   zerolog.Logger
}

func NewClinicalAgent(gen llm.Generator, patients PatientReader, logger zerolog.Logger) *ClinicalAgent {
	return &ClinicalAgent{gen: gen, patients: patients, logger: logger}
}

const clinicalPrompt = `You are a clinical support assistant for a patient
support service. You are not a doctor and must advise contacting a clinician
for anything beyond general guidance.

Patient profile:
%s
Recent conversation:
%s
Patient question: %s

Answer in exactly this format:
RESPONSE: <your answer in plain language>
SEVERITY: <low|medium|high|critical>`

const caretakerFallback = "I'm sorry, I can't give you a reliable answer right now. " +
	"Please contact your care team directly, and if your symptoms are getting worse, " +
	"seek urgent medical attention."

var (
	responseRe = regexp.MustCompile(`(?is)RESPONSE:\s*(.+?)\s*SEVERITY:`)
	severityRe = regexp.MustCompile(`(?i)SEVERITY:\s*(low|medium|high|critical)`)
)

func (a *ClinicalAgent) Name() string { return "clinical" }

func (a *ClinicalAgent) Run(ctx context.Context, state *State) (Patch, error) {
	profile := "No profile on record."
	if p, err := a.patients.Get(ctx, state.PatientID); err == nil {
		profile = formatProfile(p)
	} else if !errors.Is(err, patient.ErrNotFound) {
		return Patch{}, fmt.Errorf("load patient profile: %w", err)
	}

	out, err := a.gen.Generate(ctx, fmt.Sprintf(clinicalPrompt, profile, formatHistory(state.History, 10), state.Query))
	if err != nil {
		a.logger.Warn().Err(err).Str("patient_id", state.PatientID).
			Msg("clinical model call failed, using caretaker fallback")
		return a.fallback(state), nil
	}

	response, severity, ok := parseClinicalOutput(out)
	if !ok {
		a.logger.Warn().Str("patient_id", state.PatientID).
			Msg("clinical model output unparseable, using caretaker fallback")
		return a.fallback(state), nil
	}

	// Never let the model downgrade below the graph's own grading.
	if !severityAtLeast(severity, state.Severity) {
		severity = state.Severity
	}

	return Patch{
		Response:      strPtr(response),
		Severity:      strPtr(severity),
		AgentType:     strPtr(RouteClinical),
		SentToPatient: boolPtr(true),
	}, nil
}

func (a *ClinicalAgent) fallback(state *State) Patch {
	severity := state.Severity
	if !validSeverity(severity) {
		severity = classifySeverityByKeywords(state.Query)
	}
	return Patch{
		Response:      strPtr(caretakerFallback),
		Severity:      strPtr(severity),
		AgentType:     strPtr(RouteClinical),
		SentToPatient: boolPtr(true),
	}
}

// parseClinicalOutput extracts the RESPONSE and SEVERITY sections. Both must
// be present for the output to count as well-formed.
func parseClinicalOutput(out string) (response, severity string, ok bool) {
	rm := responseRe.FindStringSubmatch(out)
	sm := severityRe.FindStringSubmatch(out)
	if rm == nil || sm == nil {
		return "", "", false
	}
	response = strings.TrimSpace(rm[1])
	severity = strings.ToLower(sm[1])
	if response == "" {
		return "", "", false
	}
	return response, severity, true
}

func formatProfile(p *patient.Patient) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if len(p.Allergies) > 0 {
		fmt.Fprintf(&b, "Allergies: %s\n", strings.Join(p.Allergies, ", "))
	}
	if len(p.Conditions) > 0 {
		fmt.Fprintf(&b, "Conditions: %s\n", strings.Join(p.Conditions, ", "))
	}
	if len(p.MedicationHistory) > 0 {
		names := make([]string, 0, len(p.MedicationHistory))
		for _, m := range p.MedicationHistory {
			names = append(names, m.Name)
		}
		fmt.Fprintf(&b, "Medications: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}
