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

const responsesPrefix = "responses"

// YAMLResponseRepository stores the responses of a task as one document keyed
// by task id.
type YAMLResponseRepository struct {
	storage storage.Storage
}

func NewYAMLResponseRepository(s storage.Storage) *YAMLResponseRepository {
	return &YAMLResponseRepository{storage: s}
}

func responsePath(taskID string) string {
	return fmt.Sprintf("%s/%s.yaml", responsesPrefix, taskID)
}

func (r *YAMLResponseRepository) ListByTask(ctx context.Context, taskID string) ([]*task.Response, error) {
	data, err := r.storage.Read(ctx, responsePath(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("responses", err)
	}
	var list []*task.Response
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal responses: %w", err))
	}
	return list, nil
}

func (r *YAMLResponseRepository) Get(ctx context.Context, id string) (*task.Response, error) {
	paths, err := r.storage.List(ctx, responsesPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("responses", err)
	}
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var list []*task.Response
		if err := yaml.Unmarshal(data, &list); err != nil {
			continue
		}
		for _, resp := range list {
			if resp.ID == id {
				return resp, nil
			}
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "response not found", nil)
}

func (r *YAMLResponseRepository) Create(ctx context.Context, resp *task.Response) error {
	list, err := r.ListByTask(ctx, resp.TaskID)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.UserID == resp.UserID {
			return cerr.NewError(cerr.AlreadyExists, "response already exists for this user", nil)
		}
	}
	list = append(list, resp)
	return r.write(ctx, resp.TaskID, list)
}

func (r *YAMLResponseRepository) Update(ctx context.Context, resp *task.Response) error {
	list, err := r.ListByTask(ctx, resp.TaskID)
	if err != nil {
		return err
	}
	for i, existing := range list {
		if existing.ID == resp.ID {
			list[i] = resp
			return r.write(ctx, resp.TaskID, list)
		}
	}
	return cerr.NewError(cerr.NotFound, "response not found", nil)
}

func (r *YAMLResponseRepository) write(ctx context.Context, taskID string, list []*task.Response) error {
	data, err := yaml.Marshal(list)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal responses: %w", err))
	}
	if err := r.storage.Write(ctx, responsePath(taskID), data); err != nil {
		return cerr.WrapStorageWriteError("responses", err)
	}
	return nil
}
