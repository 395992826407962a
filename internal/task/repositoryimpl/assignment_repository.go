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

const assignmentsPrefix = "assignments"

// YAMLAssignmentRepository stores all assignment rows of a task, tombstones
// included, as one document keyed by task id.
type YAMLAssignmentRepository struct {
	storage storage.Storage
}

func NewYAMLAssignmentRepository(s storage.Storage) *YAMLAssignmentRepository {
	return &YAMLAssignmentRepository{storage: s}
}

func assignmentPath(taskID string) string {
	return fmt.Sprintf("%s/%s.yaml", assignmentsPrefix, taskID)
}

func (r *YAMLAssignmentRepository) ListByTask(ctx context.Context, taskID string) ([]*task.Assignment, error) {
	data, err := r.storage.Read(ctx, assignmentPath(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("assignments", err)
	}
	var list []*task.Assignment
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal assignments: %w", err))
	}
	return list, nil
}

func (r *YAMLAssignmentRepository) Create(ctx context.Context, a *task.Assignment) error {
	list, err := r.ListByTask(ctx, a.TaskID)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.UserID == a.UserID && !existing.Deleted() {
			return cerr.NewError(cerr.AlreadyExists, "user is already assigned", nil)
		}
	}
	list = append(list, a)
	return r.write(ctx, a.TaskID, list)
}

func (r *YAMLAssignmentRepository) Update(ctx context.Context, a *task.Assignment) error {
	list, err := r.ListByTask(ctx, a.TaskID)
	if err != nil {
		return err
	}
	for i, existing := range list {
		if existing.ID == a.ID {
			list[i] = a
			return r.write(ctx, a.TaskID, list)
		}
	}
	return cerr.NewError(cerr.NotFound, "assignment not found", nil)
}

func (r *YAMLAssignmentRepository) write(ctx context.Context, taskID string, list []*task.Assignment) error {
	data, err := yaml.Marshal(list)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal assignments: %w", err))
	}
	if err := r.storage.Write(ctx, assignmentPath(taskID), data); err != nil {
		return cerr.WrapStorageWriteError("assignments", err)
	}
	return nil
}
