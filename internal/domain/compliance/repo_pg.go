package compliance

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// Save appends the run to audit_history. Summary columns are duplicated out
// of the JSONB payload so history listings never need to unpack it.
func (r *repoPG) Save(ctx context.Context, res *Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_history (id, overall_score, status, records_audited, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		res.ID, res.OverallScore, res.Status, res.RecordsAudited, payload, res.CompletedAt)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_history`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT result FROM audit_history ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, err
		}
		var res Result
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, 0, err
		}
		items = append(items, &res)
	}
	return items, total, nil
}
