package directory

import (
	"context"

	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
)

// Resolver answers the engine's directory questions and turns authenticated
// users into actors.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ManagerIDs returns the elevated users of a dealership. The empty id is the
// global scope and resolves to every elevated user.
func (r *Resolver) ManagerIDs(ctx context.Context, dealershipID string) ([]string, error) {
	users, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, u := range users {
		if !u.Elevated() {
			continue
		}
		if dealershipID != "" && u.DealershipID != "" && u.DealershipID != dealershipID {
			continue
		}
		out = append(out, u.ID)
	}
	return out, nil
}

// ResolveActor maps a user id from the request boundary to an Actor.
func (r *Resolver) ResolveActor(ctx context.Context, userID string) (task.Actor, error) {
	if userID == "" {
		return task.Actor{}, cerr.NewError(cerr.Unauthenticated, "user identity is required", nil)
	}
	u, err := r.repo.Get(ctx, userID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return task.Actor{}, cerr.NewError(cerr.Unauthenticated, "unknown user", nil)
		}
		return task.Actor{}, err
	}
	return task.Actor{
		UserID:       u.ID,
		DealershipID: u.DealershipID,
		Elevated:     u.Elevated(),
	}, nil
}
