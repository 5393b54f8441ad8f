package compliance

import (
	"fmt"
	"strings"
)

// Registry returns the full checkpoint registry in evaluation order. Every
// check is a pure function over the audit input.
func Registry() []Checkpoint {
	return []Checkpoint{
		{
			ID:        "nice_clinical_assessment",
			Standard:  StandardNICE,
			Guideline: "NICE NG12: clinical responses must grade urgency and give actionable guidance",
			Severity:  "high",
			Threshold: 80,
			Check:     checkClinicalAssessment,
		},
		{
			ID:        "nice_contraindication_check",
			Standard:  StandardNICE,
			Guideline: "NICE CG76: advice must not contradict recorded allergies",
			Severity:  "critical",
			Threshold: 95,
			Check:     checkContraindications,
		},
		{
			ID:        "nice_escalation_pathway",
			Standard:  StandardNICE,
			Guideline: "NICE CG50: high-urgency cases must reach a clinician",
			Severity:  "critical",
			Threshold: 85,
			Check:     checkEscalationPathway,
		},
		{
			ID:        "gphc_response_transparency",
			Standard:  StandardGPHC,
			Guideline: "GPhC standard 1: patients receive a substantive response to every query",
			Severity:  "medium",
			Threshold: 80,
			Check:     checkResponseTransparency,
		},
		{
			ID:        "gphc_record_keeping",
			Standard:  StandardGPHC,
			Guideline: "GPhC standard 2: every exchange is attributable to a patient and timestamped",
			Severity:  "high",
			Threshold: 90,
			Check:     checkRecordKeeping,
		},
		{
			ID:        "gphc_emergency_signposting",
			Standard:  StandardGPHC,
			Guideline: "GPhC standard 3: emergency responses signpost emergency services",
			Severity:  "critical",
			Threshold: 90,
			Check:     checkEmergencySignposting,
		},
		{
			ID:        "gdpr_retention_policy",
			Standard:  StandardGDPR,
			Guideline: "GDPR art. 5(1)(e): a data retention policy is defined",
			Severity:  "high",
			Threshold: 95,
			Check: capabilityGate(func(c Capabilities) bool {
				return c.RetentionPolicyDays > 0
			}, "no data retention policy is configured", "set a retention period for stored communications"),
		},
		{
			ID:        "gdpr_erasure_support",
			Standard:  StandardGDPR,
			Guideline: "GDPR art. 17: patients can request erasure of their data",
			Severity:  "high",
			Threshold: 95,
			Check: capabilityGate(func(c Capabilities) bool {
				return c.ErasureSupported
			}, "erasure requests are not supported", "enable the patient erasure endpoint"),
		},
		{
			ID:        "gdpr_consent_tracking",
			Standard:  StandardGDPR,
			Guideline: "GDPR art. 7: processing consent is recorded per patient",
			Severity:  "high",
			Threshold: 95,
			Check: capabilityGate(func(c Capabilities) bool {
				return c.ConsentTracking
			}, "consent is not tracked", "record data processing consent at registration"),
		},
		{
			ID:        "safety_emergency_escalation",
			Standard:  StandardClinicalSafety,
			Guideline: "emergencies are graded critical and escalated to a doctor",
			Severity:  "critical",
			Threshold: 95,
			Check:     checkEmergencyEscalation,
		},
		{
			ID:        "safety_severity_grading",
			Standard:  StandardClinicalSafety,
			Guideline: "every exchange carries a severity grade",
			Severity:  "medium",
			Threshold: 90,
			Check:     checkSeverityGrading,
		},
		{
			ID:        "safety_data_coverage",
			Standard:  StandardClinicalSafety,
			Guideline: "audits are based on a representative volume of records",
			Severity:  "low",
			Threshold: 80,
			Check:     checkDataCoverage,
		},
	}
}

// RegistryFor filters the registry to the requested standards. An empty
// request selects everything.
func RegistryFor(standards []Standard) []Checkpoint {
	if len(standards) == 0 {
		return Registry()
	}
	want := make(map[Standard]bool, len(standards))
	for _, s := range standards {
		want[s] = true
	}
	var out []Checkpoint
	for _, cp := range Registry() {
		if want[cp.Standard] {
			out = append(out, cp)
		}
	}
	return out
}

// capabilityGate builds a boolean 100-or-0 check over deployment flags.
func capabilityGate(ok func(Capabilities) bool, finding, recommendation string) func(*Input) CheckResult {
	return func(in *Input) CheckResult {
		if ok(in.Capabilities) {
			return CheckResult{Score: 100}
		}
		return CheckResult{
			Score:           0,
			Findings:        []string{finding},
			Recommendations: []string{recommendation},
		}
	}
}

// Clinical assessment penalties.
const (
	penaltyMissingSeverity = 20
	penaltyEmptyGuidance   = 15
	penaltyNoFollowUp      = 15
)

// checkClinicalAssessment scores each clinical response out of 100 with
// fixed penalties, floored at zero, then averages across records.
func checkClinicalAssessment(in *Input) CheckResult {
	var result CheckResult
	var total float64
	n := 0
	for _, rec := range in.Records {
		if rec.AgentType != "clinical" || rec.IsConversationSummary {
			continue
		}
		n++
		score := 100.0
		if rec.Severity == "" {
			score -= penaltyMissingSeverity
			result.Findings = appendUnique(result.Findings, "clinical responses missing a severity grade")
		}
		if len(strings.TrimSpace(rec.Response)) < 20 {
			score -= penaltyEmptyGuidance
			result.Findings = appendUnique(result.Findings, "clinical responses with no substantive guidance")
		}
		if (rec.Severity == "high" || rec.Severity == "critical") && !mentionsProfessionalCare(rec.Response) {
			score -= penaltyNoFollowUp
			result.Findings = appendUnique(result.Findings, "urgent clinical responses without a referral to professional care")
		}
		if score < 0 {
			score = 0
		}
		total += score
	}
	if n == 0 {
		result.Score = 100
		return result
	}
	result.Score = total / float64(n)
	if len(result.Findings) > 0 {
		result.Recommendations = append(result.Recommendations,
			"review clinical agent prompts so responses always grade severity and signpost care")
	}
	return result
}

var careTerms = []string{"doctor", "gp", "clinician", "care team", "pharmacist", "emergency", "urgent"}

func mentionsProfessionalCare(response string) bool {
	lowered := strings.ToLower(response)
	for _, term := range careTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// checkContraindications fails outright when advice mentions a substance the
// patient is recorded as allergic to. A contraindication is never partial
// credit: any hit zeroes the checkpoint.
func checkContraindications(in *Input) CheckResult {
	allergiesByPatient := make(map[string][]string, len(in.Patients))
	for _, p := range in.Patients {
		allergiesByPatient[p.ID] = p.Allergies
	}

	var result CheckResult
	result.Score = 100
	for _, rec := range in.Records {
		allergies := allergiesByPatient[rec.PatientID]
		if len(allergies) == 0 {
			continue
		}
		text := strings.ToLower(rec.Response)
		for _, allergy := range allergies {
			term := strings.ToLower(strings.TrimSpace(allergy))
			if term == "" {
				continue
			}
			if strings.Contains(text, term) {
				result.Score = 0
				result.Findings = appendUnique(result.Findings,
					fmt.Sprintf("advice for %s mentions recorded allergen %q", rec.PatientID, allergy))
				result.Recommendations = appendUnique(result.Recommendations,
					"cross-check responses against recorded allergies before sending")
			}
		}
	}
	return result
}

// checkEscalationPathway verifies high and critical exchanges reached a
// doctor.
func checkEscalationPathway(in *Input) CheckResult {
	var result CheckResult
	urgent, escalated := 0, 0
	for _, rec := range in.Records {
		if rec.Severity != "high" && rec.Severity != "critical" {
			continue
		}
		urgent++
		if rec.SentToDoctor {
			escalated++
		}
	}
	if urgent == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(escalated) / float64(urgent) * 100
	if escalated < urgent {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d of %d urgent exchanges were not escalated to a doctor", urgent-escalated, urgent))
		result.Recommendations = append(result.Recommendations,
			"alert the on-call doctor for every high or critical exchange")
	}
	return result
}

func checkResponseTransparency(in *Input) CheckResult {
	var result CheckResult
	sent, substantive := 0, 0
	for _, rec := range in.Records {
		if !rec.SentToPatient {
			continue
		}
		sent++
		if strings.TrimSpace(rec.Response) != "" {
			substantive++
		}
	}
	if sent == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(substantive) / float64(sent) * 100
	if substantive < sent {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d patient-facing exchanges had an empty response", sent-substantive))
		result.Recommendations = append(result.Recommendations,
			"ensure fallback responses cover every agent path")
	}
	return result
}

func checkRecordKeeping(in *Input) CheckResult {
	var result CheckResult
	complete := 0
	for _, rec := range in.Records {
		if rec.PatientID != "" && !rec.CreatedAt.IsZero() && rec.AgentType != "" {
			complete++
		}
	}
	if len(in.Records) == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(complete) / float64(len(in.Records)) * 100
	if complete < len(in.Records) {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d records are missing attribution or timestamps", len(in.Records)-complete))
		result.Recommendations = append(result.Recommendations,
			"reject communication writes without patient, agent, and timestamp")
	}
	return result
}

func checkEmergencySignposting(in *Input) CheckResult {
	var result CheckResult
	emergencies, signposted := 0, 0
	for _, rec := range in.Records {
		if rec.AgentType != "emergency" {
			continue
		}
		emergencies++
		lowered := strings.ToLower(rec.Response)
		if strings.Contains(lowered, "call") || strings.Contains(lowered, "emergency") {
			signposted++
		}
	}
	if emergencies == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(signposted) / float64(emergencies) * 100
	if signposted < emergencies {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d emergency responses did not signpost emergency services", emergencies-signposted))
		result.Recommendations = append(result.Recommendations,
			"include the emergency number in every emergency response")
	}
	return result
}

func checkEmergencyEscalation(in *Input) CheckResult {
	var result CheckResult
	emergencies, compliant := 0, 0
	for _, rec := range in.Records {
		if rec.AgentType != "emergency" {
			continue
		}
		emergencies++
		if rec.Severity == "critical" && rec.SentToDoctor {
			compliant++
		}
	}
	if emergencies == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(compliant) / float64(emergencies) * 100
	if compliant < emergencies {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d emergency exchanges were not graded critical and escalated", emergencies-compliant))
		result.Recommendations = append(result.Recommendations,
			"grade every emergency critical and alert the doctor unconditionally")
	}
	return result
}

func checkSeverityGrading(in *Input) CheckResult {
	var result CheckResult
	graded := 0
	n := 0
	for _, rec := range in.Records {
		// Summary rows and checkpoint markers carry no clinical content.
		if rec.IsConversationSummary || rec.AgentType == "checkpoint" {
			continue
		}
		n++
		switch rec.Severity {
		case "low", "medium", "high", "critical":
			graded++
		}
	}
	if n == 0 {
		result.Score = 100
		return result
	}
	result.Score = float64(graded) / float64(n) * 100
	if graded < n {
		result.Findings = append(result.Findings,
			fmt.Sprintf("%d exchanges carry no valid severity grade", n-graded))
		result.Recommendations = append(result.Recommendations,
			"grade severity on every exchange, falling back to keyword rules")
	}
	return result
}

// checkDataCoverage scores the audited volume against the configured
// baseline, capped at 100.
func checkDataCoverage(in *Input) CheckResult {
	var result CheckResult
	baseline := in.CoverageBaseline
	if baseline <= 0 {
		baseline = defaultCoverageBaseline
	}
	result.Score = coveragePercent(len(in.Records), baseline)
	if result.Score < 100 {
		result.Findings = append(result.Findings,
			fmt.Sprintf("audit covered %d records against a baseline of %d", len(in.Records), baseline))
	}
	return result
}

const defaultCoverageBaseline = 1000

// coveragePercent is the audited share of the baseline volume, capped at 100.
func coveragePercent(records, baseline int) float64 {
	if baseline <= 0 {
		baseline = defaultCoverageBaseline
	}
	pct := float64(records) / float64(baseline) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
