package patient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `patient_id, name, email, phone, allergies, conditions,
	medication_history, order_history, data_processing_consent, consent_updated_at,
	created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var medications, orders []byte
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Allergies, &p.Conditions,
		&medications, &orders, &p.DataProcessingConsent, &p.ConsentUpdatedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(medications, &p.MedicationHistory); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(orders, &p.OrderHistory); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Upsert(ctx context.Context, p *Patient) error {
	if p.MedicationHistory == nil {
		p.MedicationHistory = []MedicationEntry{}
	}
	if p.OrderHistory == nil {
		p.OrderHistory = []OrderEntry{}
	}
	medications, err := json.Marshal(p.MedicationHistory)
	if err != nil {
		return err
	}
	orders, err := json.Marshal(p.OrderHistory)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO patient (patient_id, name, email, phone, allergies, conditions,
			medication_history, order_history, data_processing_consent, consent_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (patient_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			allergies = EXCLUDED.allergies,
			conditions = EXCLUDED.conditions,
			medication_history = EXCLUDED.medication_history,
			order_history = EXCLUDED.order_history,
			data_processing_consent = EXCLUDED.data_processing_consent,
			consent_updated_at = EXCLUDED.consent_updated_at,
			updated_at = NOW()`,
		p.ID, p.Name, p.Email, p.Phone, p.Allergies, p.Conditions,
		medications, orders, p.DataProcessingConsent, p.ConsentUpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE patient_id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patient WHERE patient_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
