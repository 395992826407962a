package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
	"github.com/dealerops/taskboard/pkg/storage"
)

const historyPrefix = "history"

// YAMLHistoryRepository appends verification history entries to a document
// keyed by response id. Entries are never rewritten.
type YAMLHistoryRepository struct {
	storage storage.Storage
}

func NewYAMLHistoryRepository(s storage.Storage) *YAMLHistoryRepository {
	return &YAMLHistoryRepository{storage: s}
}

func historyPath(responseID string) string {
	return fmt.Sprintf("%s/%s.yaml", historyPrefix, responseID)
}

func (r *YAMLHistoryRepository) Append(ctx context.Context, h *task.VerificationHistory) error {
	list, err := r.ListByResponse(ctx, h.ResponseID)
	if err != nil {
		return err
	}
	list = append(list, h)
	data, err := yaml.Marshal(list)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal history: %w", err))
	}
	if err := r.storage.Write(ctx, historyPath(h.ResponseID), data); err != nil {
		return cerr.WrapStorageWriteError("history", err)
	}
	return nil
}

func (r *YAMLHistoryRepository) ListByResponse(ctx context.Context, responseID string) ([]*task.VerificationHistory, error) {
	data, err := r.storage.Read(ctx, historyPath(responseID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("history", err)
	}
	var list []*task.VerificationHistory
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal history: %w", err))
	}
	return list, nil
}
