package shift

import "context"

// RepoGate answers the engine's open-shift question from the repository.
type RepoGate struct {
	repo Repository
}

func NewRepoGate(repo Repository) *RepoGate {
	return &RepoGate{repo: repo}
}

func (g *RepoGate) OpenShiftID(ctx context.Context, userID string) (string, bool, error) {
	shifts, err := g.repo.ListByUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	for _, s := range shifts {
		if s.Open() {
			return s.ID, true, nil
		}
	}
	return "", false, nil
}
