package patient

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockRepo is an in-memory Repository for service tests.
type mockRepo struct {
	patients map[string]*Patient
	failWith error
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[string]*Patient)}
}

func (m *mockRepo) Upsert(_ context.Context, p *Patient) error {
	if m.failWith != nil {
		return m.failWith
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var items []*Patient
	for _, p := range m.patients {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob@example.com  ", "bob@example.com"},
		{"carol@example.com", "carol@example.com"},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.in); got != tc.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, false)

	p := &Patient{Name: "Alice", Email: " Alice@Example.COM "}
	if err := svc.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.ID != "alice@example.com" {
		t.Errorf("ID = %q, want alice@example.com", p.ID)
	}
	if _, ok := repo.patients["alice@example.com"]; !ok {
		t.Error("patient not stored under normalized ID")
	}
}

func TestRegisterIsIdempotentAcrossCaseVariants(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, false)

	first := &Patient{Name: "Alice", Email: "alice@example.com"}
	if err := svc.Register(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	second := &Patient{Name: "Alice Updated", Email: "ALICE@EXAMPLE.COM"}
	if err := svc.Register(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	if len(repo.patients) != 1 {
		t.Fatalf("stored patients = %d, want 1", len(repo.patients))
	}
	if got := repo.patients["alice@example.com"].Name; got != "Alice Updated" {
		t.Errorf("name = %q, want Alice Updated", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockRepo(), false)

	if err := svc.Register(context.Background(), &Patient{Name: "NoEmail"}); err == nil {
		t.Error("expected error for missing email")
	}
	if err := svc.Register(context.Background(), &Patient{Name: "Bad", Email: "not-an-email"}); err == nil {
		t.Error("expected error for malformed email")
	}
	if err := svc.Register(context.Background(), &Patient{Email: "a@example.com"}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestRegisterSetsConsentTimestamp(t *testing.T) {
	svc := NewService(newMockRepo(), false)

	p := &Patient{Name: "Alice", Email: "alice@example.com", DataProcessingConsent: true}
	if err := svc.Register(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p.ConsentUpdatedAt == nil {
		t.Error("ConsentUpdatedAt should be set when consent is given")
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, false)
	_ = svc.Register(context.Background(), &Patient{
		Name:      "Alice",
		Email:     "alice@example.com",
		Phone:     "0113 111 1111",
		Allergies: []string{"penicillin"},
	})

	newName := "Alice B"
	p, err := svc.UpdateProfile(context.Background(), "alice@example.com", ProfileUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.Name != "Alice B" {
		t.Errorf("name = %q, want Alice B", p.Name)
	}
	if p.Phone != "0113 111 1111" {
		t.Errorf("phone should be unchanged, got %q", p.Phone)
	}
	if len(p.Allergies) != 1 || p.Allergies[0] != "penicillin" {
		t.Errorf("allergies should be unchanged, got %v", p.Allergies)
	}

	// empty slice clears, nil leaves untouched
	p, err = svc.UpdateProfile(context.Background(), "alice@example.com", ProfileUpdate{Allergies: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Allergies) != 0 {
		t.Errorf("allergies = %v, want cleared", p.Allergies)
	}
}

func TestUpdateProfileNotFound(t *testing.T) {
	svc := NewService(newMockRepo(), false)
	if _, err := svc.UpdateProfile(context.Background(), "ghost@example.com", ProfileUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddMedication(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, false)
	_ = svc.Register(context.Background(), &Patient{Name: "Alice", Email: "alice@example.com"})

	p, err := svc.AddMedication(context.Background(), "alice@example.com", MedicationEntry{Name: "metformin", Dosage: "500mg"})
	if err != nil {
		t.Fatalf("AddMedication: %v", err)
	}
	if len(p.MedicationHistory) != 1 {
		t.Fatalf("medication history = %d entries, want 1", len(p.MedicationHistory))
	}
	if p.MedicationHistory[0].StartedAt.IsZero() {
		t.Error("StartedAt should be defaulted")
	}

	if _, err := svc.AddMedication(context.Background(), "alice@example.com", MedicationEntry{}); err == nil {
		t.Error("expected error for missing medication name")
	}
}

func TestAddOrderDefaults(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, false)
	_ = svc.Register(context.Background(), &Patient{Name: "Alice", Email: "alice@example.com"})

	p, err := svc.AddOrder(context.Background(), "alice@example.com", OrderEntry{Item: "test strips"})
	if err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	o := p.OrderHistory[0]
	if o.OrderID == "" || o.Quantity != 1 || o.Status != "placed" || o.PlacedAt.IsZero() {
		t.Errorf("order defaults not applied: %+v", o)
	}
}

func TestEraseRespectsCapability(t *testing.T) {
	repo := newMockRepo()

	svc := NewService(repo, false)
	_ = svc.Register(context.Background(), &Patient{Name: "Alice", Email: "alice@example.com"})
	if err := svc.Erase(context.Background(), "alice@example.com"); err == nil {
		t.Fatal("Erase should fail when erasure is disabled")
	}

	svc = NewService(repo, true)
	if err := svc.Erase(context.Background(), "ALICE@example.com"); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if _, err := svc.Get(context.Background(), "alice@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("patient should be gone, got err = %v", err)
	}
}
