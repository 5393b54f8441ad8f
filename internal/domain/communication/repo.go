package communication

import "context"

// Repository is the persistence contract for the communication log.
// The log is append-only; there are no update or delete operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error)
	ListBySession(ctx context.Context, patientID, sessionID string, limit, offset int) ([]*Record, int, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
	CountQAPairs(ctx context.Context, patientID, sessionID string) (int, error)
}

// ChatRepository stores raw chat turns.
type ChatRepository interface {
	Append(ctx context.Context, msg *ChatMessage) error
	History(ctx context.Context, patientID, sessionID string, limit int) ([]*ChatMessage, error)
}
