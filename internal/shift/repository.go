package shift

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Shift, error)
	ListByUser(ctx context.Context, userID string) ([]*Shift, error)
	// ListClosedUnprocessed returns shifts that have ended and have not yet
	// been consumed by the post-shift sweep.
	ListClosedUnprocessed(ctx context.Context) ([]*Shift, error)
	Create(ctx context.Context, s *Shift) error
	Update(ctx context.Context, s *Shift) error
}
