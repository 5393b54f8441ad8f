package compliance

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/patient"
)

// Standard identifies a regulatory framework audited by the engine.
type Standard string

const (
	StandardNICE           Standard = "NICE"
	StandardGPHC           Standard = "GPHC"
	StandardGDPR           Standard = "GDPR"
	StandardClinicalSafety Standard = "CLINICAL_SAFETY"
)

// AllStandards lists every auditable standard in registry order.
func AllStandards() []Standard {
	return []Standard{StandardNICE, StandardGPHC, StandardGDPR, StandardClinicalSafety}
}

// ParseStandard validates a caller-supplied standard name.
func ParseStandard(s string) (Standard, bool) {
	for _, std := range AllStandards() {
		if string(std) == s {
			return std, true
		}
	}
	return "", false
}

// Capabilities are deployment-level facts the GDPR checks audit. They come
// from configuration, not from stored data.
type Capabilities struct {
	RetentionPolicyDays int  `json:"retention_policy_days"`
	ErasureSupported    bool `json:"erasure_supported"`
	ConsentTracking     bool `json:"consent_tracking"`
}

// Input is the snapshot a single audit run evaluates. Checks are pure
// functions over this snapshot, so one run is reproducible from its input.
type Input struct {
	Records          []*communication.Record
	Patients         []*patient.Patient
	Capabilities     Capabilities
	CoverageBaseline int
}

// Checkpoint is one registered compliance check.
type Checkpoint struct {
	ID        string   `json:"id"`
	Standard  Standard `json:"standard"`
	Guideline string   `json:"guideline"`
	Severity  string   `json:"severity"`
	Threshold float64  `json:"threshold"`

	Check func(in *Input) CheckResult `json:"-"`
}

// CheckResult is one checkpoint's outcome. Score is 0-100; a checkpoint
// passes when its score meets its threshold.
type CheckResult struct {
	CheckpointID    string   `json:"checkpoint_id"`
	Standard        Standard `json:"standard"`
	Score           float64  `json:"score"`
	Passed          bool     `json:"passed"`
	Findings        []string `json:"findings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// StandardResult aggregates a standard's checkpoints.
type StandardResult struct {
	Standard Standard `json:"standard"`
	Score    float64  `json:"score"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
}

// Audit statuses.
const (
	StatusCompliant              = "compliant"
	StatusSubstantiallyCompliant = "substantially-compliant"
	StatusNonCompliant           = "non-compliant"
)

// Result is the outcome of one audit run.
type Result struct {
	ID                 uuid.UUID        `json:"id"`
	RequestedStandards []Standard       `json:"requested_standards"`
	Checkpoints        []CheckResult    `json:"checkpoints"`
	Standards          []StandardResult `json:"standards"`
	OverallScore       float64          `json:"overall_score"`
	Status             string           `json:"status"`
	Findings           []string         `json:"findings"`
	Recommendations    []string         `json:"recommendations"`
	CriticalIssues     []string         `json:"critical_issues"`
	HighIssues         []string         `json:"high_issues"`
	RecordsAudited     int              `json:"records_audited"`
	PatientsAudited    int              `json:"patients_audited"`
	CoveragePercent    float64          `json:"coverage_percent"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        time.Time        `json:"completed_at"`
}

// statusFor maps an overall score to an audit status.
func statusFor(score float64) string {
	switch {
	case score >= 90:
		return StatusCompliant
	case score >= 70:
		return StatusSubstantiallyCompliant
	default:
		return StatusNonCompliant
	}
}
