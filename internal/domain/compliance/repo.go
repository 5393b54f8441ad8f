package compliance

import "context"

// Repository persists audit outcomes. The history is append-only.
type Repository interface {
	Save(ctx context.Context, res *Result) error
	List(ctx context.Context, limit, offset int) ([]*Result, int, error)
}
