package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
)

// auditFetchLimit caps how many records one audit run loads.
const auditFetchLimit = 5000

// RecordSource supplies the communication log to audit.
type RecordSource interface {
	ListRecent(ctx context.Context, limit int) ([]*communication.Record, error)
}

// PatientSource supplies the patient roster to audit.
type PatientSource interface {
	List(ctx context.Context, limit, offset int) ([]*patient.Patient, int, error)
}

// Runner executes the checkpoint registry against a live snapshot of the
// platform's data.
type Runner struct {
	records  RecordSource
	patients PatientSource
	caps     Capabilities
	baseline int
	logger   zerolog.Logger
}

func NewRunner(records RecordSource, patients PatientSource, caps Capabilities, baseline int, logger zerolog.Logger) *Runner {
	return &Runner{
		records:  records,
		patients: patients,
		caps:     caps,
		baseline: baseline,
		logger:   logger.With().Str("component", "compliance_runner").Logger(),
	}
}

// Run audits the requested standards. An empty slice audits everything.
// A fetch failure aborts the run; an audit over partial data would report
// misleading scores.
func (r *Runner) Run(ctx context.Context, standards []Standard) (*Result, error) {
	started := time.Now().UTC()

	records, err := r.records.ListRecent(ctx, auditFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("loading communication records: %w", err)
	}
	patients, _, err := r.patients.List(ctx, auditFetchLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("loading patients: %w", err)
	}

	in := &Input{
		Records:          records,
		Patients:         patients,
		Capabilities:     r.caps,
		CoverageBaseline: r.baseline,
	}

	if len(standards) == 0 {
		standards = AllStandards()
	}
	checkpoints := RegistryFor(standards)

	result := &Result{
		ID:                 uuid.New(),
		RequestedStandards: standards,
		RecordsAudited:     len(records),
		PatientsAudited:    len(patients),
		StartedAt:          started,
	}

	perStandard := make(map[Standard][]CheckResult, len(standards))
	for _, cp := range checkpoints {
		cr := cp.Check(in)
		cr.CheckpointID = cp.ID
		cr.Standard = cp.Standard
		cr.Passed = cr.Score >= cp.Threshold

		result.Checkpoints = append(result.Checkpoints, cr)
		perStandard[cp.Standard] = append(perStandard[cp.Standard], cr)
		for _, f := range cr.Findings {
			result.Findings = appendUnique(result.Findings, f)
		}
		for _, rec := range cr.Recommendations {
			result.Recommendations = appendUnique(result.Recommendations, rec)
		}

		if !cr.Passed {
			issues := cr.Findings
			if len(issues) == 0 {
				issues = []string{cp.Guideline}
			}
			switch cp.Severity {
			case "critical":
				for _, issue := range issues {
					result.CriticalIssues = appendUnique(result.CriticalIssues, issue)
				}
			case "high":
				for _, issue := range issues {
					result.HighIssues = appendUnique(result.HighIssues, issue)
				}
			}
		}

		r.logger.Debug().
			Str("checkpoint", cp.ID).
			Float64("score", cr.Score).
			Bool("passed", cr.Passed).
			Msg("checkpoint evaluated")
	}

	// Standard scores are the mean of their checkpoint scores; the overall
	// score is the mean of the standard scores. Standards with more
	// checkpoints do not outweigh the rest.
	var overall float64
	for _, std := range standards {
		results := perStandard[std]
		if len(results) == 0 {
			continue
		}
		sr := StandardResult{Standard: std}
		var sum float64
		for _, cr := range results {
			sum += cr.Score
			if cr.Passed {
				sr.Passed++
			} else {
				sr.Failed++
			}
		}
		sr.Score = sum / float64(len(results))
		result.Standards = append(result.Standards, sr)
		overall += sr.Score
	}
	if len(result.Standards) > 0 {
		result.OverallScore = overall / float64(len(result.Standards))
	}
	result.Status = statusFor(result.OverallScore)
	result.CoveragePercent = coveragePercent(len(records), r.baseline)
	result.CompletedAt = time.Now().UTC()

	r.logger.Info().
		Float64("overall_score", result.OverallScore).
		Str("status", result.Status).
		Int("records", result.RecordsAudited).
		Msg("audit completed")

	return result, nil
}
