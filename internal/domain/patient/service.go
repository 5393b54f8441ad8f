package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository

	// erasureSupported gates hard deletes. When false, erasure requests are
	// rejected so the retention policy stays authoritative.
	erasureSupported bool
}

func NewService(repo Repository, erasureSupported bool) *Service {
	return &Service{repo: repo, erasureSupported: erasureSupported}
}

// Register creates or refreshes a patient profile keyed by normalized email.
// Registering twice with case or whitespace variants of one address updates
// the same row.
func (s *Service) Register(ctx context.Context, p *Patient) error {
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("email is invalid")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	p.ID = NormalizeID(p.Email)
	p.Email = p.ID
	if p.DataProcessingConsent {
		now := time.Now().UTC()
		p.ConsentUpdatedAt = &now
	}
	return s.repo.Upsert(ctx, p)
}

// Get fetches a patient by email or patient ID.
func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, NormalizeID(id))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateProfile applies partial profile changes. Nil slices leave the stored
// value untouched; empty slices clear it.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, NormalizeID(id))
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.Allergies != nil {
		p.Allergies = upd.Allergies
	}
	if upd.Conditions != nil {
		p.Conditions = upd.Conditions
	}
	if upd.DataProcessingConsent != nil {
		p.DataProcessingConsent = *upd.DataProcessingConsent
		now := time.Now().UTC()
		p.ConsentUpdatedAt = &now
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProfileUpdate is a partial patient update. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name                  *string  `json:"name"`
	Phone                 *string  `json:"phone"`
	Allergies             []string `json:"allergies"`
	Conditions            []string `json:"conditions"`
	DataProcessingConsent *bool    `json:"data_processing_consent"`
}

// AddMedication appends a medication to the patient's history.
func (s *Service) AddMedication(ctx context.Context, id string, m MedicationEntry) (*Patient, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("medication name is required")
	}
	p, err := s.repo.GetByID(ctx, NormalizeID(id))
	if err != nil {
		return nil, err
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now().UTC()
	}
	p.MedicationHistory = append(p.MedicationHistory, m)
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddOrder appends an order to the patient's order history.
func (s *Service) AddOrder(ctx context.Context, id string, o OrderEntry) (*Patient, error) {
	if o.Item == "" {
		return nil, fmt.Errorf("order item is required")
	}
	p, err := s.repo.GetByID(ctx, NormalizeID(id))
	if err != nil {
		return nil, err
	}
	if o.OrderID == "" {
		o.OrderID = uuid.New().String()
	}
	if o.Quantity <= 0 {
		o.Quantity = 1
	}
	if o.Status == "" {
		o.Status = "placed"
	}
	if o.PlacedAt.IsZero() {
		o.PlacedAt = time.Now().UTC()
	}
	p.OrderHistory = append(p.OrderHistory, o)
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Erase hard-deletes a patient profile. Rejected unless erasure is enabled
// for this deployment.
func (s *Service) Erase(ctx context.Context, id string) error {
	if !s.erasureSupported {
		return fmt.Errorf("erasure is not supported by this deployment")
	}
	return s.repo.Delete(ctx, NormalizeID(id))
}
