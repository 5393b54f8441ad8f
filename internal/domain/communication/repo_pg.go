package communication

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const recordCols = `id, patient_id, session_id, query, response, severity, agent_type,
	sent_to_patient, sent_to_doctor, is_conversation_summary, summary_source,
	qa_pair_count, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PatientID, &r.SessionID, &r.Query, &r.Response, &r.Severity, &r.AgentType,
		&r.SentToPatient, &r.SentToDoctor, &r.IsConversationSummary, &r.SummarySource,
		&r.QAPairCount, &r.CreatedAt)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO communication (id, patient_id, session_id, query, response, severity, agent_type,
			sent_to_patient, sent_to_doctor, is_conversation_summary, summary_source, qa_pair_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.PatientID, rec.SessionID, rec.Query, rec.Response, rec.Severity, rec.AgentType,
		rec.SentToPatient, rec.SentToDoctor, rec.IsConversationSummary, rec.SummarySource, rec.QAPairCount)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM communication WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM communication WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *repoPG) ListBySession(ctx context.Context, patientID, sessionID string, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM communication WHERE patient_id = $1 AND session_id = $2`, patientID, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM communication WHERE patient_id = $1 AND session_id = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, patientID, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *repoPG) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM communication ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}

// CountQAPairs counts the session's exchanges since its last summary or
// checkpoint marker, so checkpoint arithmetic restarts at both.
func (r *repoPG) CountQAPairs(ctx context.Context, patientID, sessionID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM communication
		WHERE patient_id = $1 AND session_id = $2
		  AND is_conversation_summary = FALSE
		  AND agent_type <> 'checkpoint'
		  AND created_at > COALESCE(
			(SELECT MAX(created_at) FROM communication
			 WHERE patient_id = $1 AND session_id = $2
			   AND (is_conversation_summary = TRUE OR agent_type = 'checkpoint')),
			'-infinity'::timestamptz)`, patientID, sessionID).Scan(&n)
	return n, err
}

type chatRepoPG struct{ pool *pgxpool.Pool }

func NewChatRepoPG(pool *pgxpool.Pool) ChatRepository { return &chatRepoPG{pool: pool} }

func (r *chatRepoPG) Append(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_history (id, patient_id, session_id, role, content)
		VALUES ($1,$2,$3,$4,$5)`,
		msg.ID, msg.PatientID, msg.SessionID, msg.Role, msg.Content)
	return err
}

// History returns the session's most recent turns in chronological order.
func (r *chatRepoPG) History(ctx context.Context, patientID, sessionID string, limit int) ([]*ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, session_id, role, content, created_at FROM (
			SELECT id, patient_id, session_id, role, content, created_at
			FROM chat_history WHERE patient_id = $1 AND session_id = $2
			ORDER BY created_at DESC LIMIT $3
		) recent ORDER BY created_at ASC`, patientID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.PatientID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, nil
}
