package patient

import (
	"strings"
	"time"
)

// Patient is the stored profile for a platform user. The patient ID is the
// normalized email address, so repeated registrations converge on one row.
type Patient struct {
	ID         string   `json:"patient_id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone,omitempty"`
	Allergies  []string `json:"allergies"`
	Conditions []string `json:"conditions"`

	MedicationHistory []MedicationEntry `json:"medication_history"`
	OrderHistory      []OrderEntry      `json:"order_history"`

	DataProcessingConsent bool       `json:"data_processing_consent"`
	ConsentUpdatedAt      *time.Time `json:"consent_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MedicationEntry records one prescribed or reported medication.
type MedicationEntry struct {
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage,omitempty"`
	Frequency    string    `json:"frequency,omitempty"`
	PrescribedBy string    `json:"prescribed_by,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// OrderEntry records one medication or supply order placed by the patient.
type OrderEntry struct {
	OrderID  string    `json:"order_id"`
	Item     string    `json:"item"`
	Quantity int       `json:"quantity"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
}

// NormalizeID canonicalizes an email address into a patient ID. All lookups
// and writes must go through this so case and whitespace variants of the same
// address map to the same patient.
func NormalizeID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
