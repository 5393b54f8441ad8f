package patient

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no patient exists for the given ID.
var ErrNotFound = errors.New("patient not found")

// Repository is the persistence contract for patient profiles.
type Repository interface {
	Upsert(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Delete(ctx context.Context, id string) error
}
