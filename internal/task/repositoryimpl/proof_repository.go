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

const (
	proofsPrefix       = "proofs"
	sharedProofsPrefix = "sharedproofs"
)

// YAMLProofRepository stores the proof rows of a response as one document
// keyed by response id.
type YAMLProofRepository struct {
	storage storage.Storage
}

func NewYAMLProofRepository(s storage.Storage) *YAMLProofRepository {
	return &YAMLProofRepository{storage: s}
}

func proofPath(responseID string) string {
	return fmt.Sprintf("%s/%s.yaml", proofsPrefix, responseID)
}

func (r *YAMLProofRepository) ListByResponse(ctx context.Context, responseID string) ([]*task.Proof, error) {
	data, err := r.storage.Read(ctx, proofPath(responseID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("proofs", err)
	}
	var list []*task.Proof
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal proofs: %w", err))
	}
	return list, nil
}

func (r *YAMLProofRepository) Create(ctx context.Context, p *task.Proof) error {
	list, err := r.ListByResponse(ctx, p.ResponseID)
	if err != nil {
		return err
	}
	list = append(list, p)
	data, err := yaml.Marshal(list)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal proofs: %w", err))
	}
	if err := r.storage.Write(ctx, proofPath(p.ResponseID), data); err != nil {
		return cerr.WrapStorageWriteError("proofs", err)
	}
	return nil
}

func (r *YAMLProofRepository) DeleteByResponse(ctx context.Context, responseID string) ([]*task.Proof, error) {
	list, err := r.ListByResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	if err := r.storage.Delete(ctx, proofPath(responseID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, cerr.WrapStorageDeleteError("proofs", err)
	}
	return list, nil
}

// YAMLSharedProofRepository stores the shared proof rows of a task as one
// document keyed by task id.
type YAMLSharedProofRepository struct {
	storage storage.Storage
}

func NewYAMLSharedProofRepository(s storage.Storage) *YAMLSharedProofRepository {
	return &YAMLSharedProofRepository{storage: s}
}

func sharedProofPath(taskID string) string {
	return fmt.Sprintf("%s/%s.yaml", sharedProofsPrefix, taskID)
}

func (r *YAMLSharedProofRepository) ListByTask(ctx context.Context, taskID string) ([]*task.SharedProof, error) {
	data, err := r.storage.Read(ctx, sharedProofPath(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("shared proofs", err)
	}
	var list []*task.SharedProof
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal shared proofs: %w", err))
	}
	return list, nil
}

func (r *YAMLSharedProofRepository) Create(ctx context.Context, p *task.SharedProof) error {
	list, err := r.ListByTask(ctx, p.TaskID)
	if err != nil {
		return err
	}
	list = append(list, p)
	return r.write(ctx, p.TaskID, list)
}

func (r *YAMLSharedProofRepository) Delete(ctx context.Context, taskID, id string) error {
	list, err := r.ListByTask(ctx, taskID)
	if err != nil {
		return err
	}
	kept := list[:0]
	found := false
	for _, p := range list {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return cerr.NewError(cerr.NotFound, "shared proof not found", nil)
	}
	if len(kept) == 0 {
		if err := r.storage.Delete(ctx, sharedProofPath(taskID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return cerr.WrapStorageDeleteError("shared proofs", err)
		}
		return nil
	}
	return r.write(ctx, taskID, kept)
}

func (r *YAMLSharedProofRepository) DeleteByTask(ctx context.Context, taskID string) ([]*task.SharedProof, error) {
	list, err := r.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	if err := r.storage.Delete(ctx, sharedProofPath(taskID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, cerr.WrapStorageDeleteError("shared proofs", err)
	}
	return list, nil
}

func (r *YAMLSharedProofRepository) write(ctx context.Context, taskID string, list []*task.SharedProof) error {
	data, err := yaml.Marshal(list)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal shared proofs: %w", err))
	}
	if err := r.storage.Write(ctx, sharedProofPath(taskID), data); err != nil {
		return cerr.WrapStorageWriteError("shared proofs", err)
	}
	return nil
}
