package proofstore

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dealerops/taskboard/internal/filejob"
	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
	"github.com/dealerops/taskboard/pkg/storage"
)

// Limits are the per-batch ceilings applied by CheckBatch. Counts include
// files already attached to the owning response or task.
type Limits struct {
	MaxFilesPerResponse int
	MaxBatchBytes       int64
}

// Store implements task.ProofStore on top of the proof row repositories and a
// file backend. File bytes are written synchronously before their rows so a
// committed row always has a backing object; deletions go the other way, rows
// first, then the objects via the async worker.
type Store struct {
	proofs       task.ProofRepository
	sharedProofs task.SharedProofRepository
	files        storage.Storage
	jobs         *filejob.Worker
	limits       Limits
	validator    Validator
	clock        func() time.Time
}

func New(proofs task.ProofRepository, sharedProofs task.SharedProofRepository, files storage.Storage, jobs *filejob.Worker, limits Limits, validator Validator) *Store {
	if validator == nil {
		validator = DefaultValidator()
	}
	return &Store{
		proofs:       proofs,
		sharedProofs: sharedProofs,
		files:        files,
		jobs:         jobs,
		limits:       limits,
		validator:    validator,
		clock:        time.Now,
	}
}

// WithClock overrides the store clock. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

func (s *Store) CheckBatch(ctx context.Context, t *task.Task, existing int, files []task.Upload) error {
	if len(files) == 0 {
		return cerr.NewError(cerr.InvalidArgument, "no files in batch", nil)
	}
	if existing+len(files) > s.limits.MaxFilesPerResponse {
		return cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("batch exceeds the limit of %d files", s.limits.MaxFilesPerResponse), nil)
	}
	var total int64
	for _, f := range files {
		if err := s.validator.Validate(f); err != nil {
			return err
		}
		total += int64(len(f.Data))
	}
	if total > s.limits.MaxBatchBytes {
		return cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("batch exceeds the limit of %d bytes", s.limits.MaxBatchBytes), nil)
	}
	return nil
}

func (s *Store) SaveProofs(ctx context.Context, t *task.Task, r *task.Response, files []task.Upload) ([]*task.Proof, error) {
	saved := make([]*task.Proof, 0, len(files))
	for _, f := range files {
		objPath := s.objectPath(t, "proof", f.FileName)
		if err := s.files.Write(ctx, objPath, f.Data); err != nil {
			return nil, cerr.WrapStorageWriteError("proof file", err)
		}
		p := &task.Proof{
			ID:          ulid.Make().String(),
			ResponseID:  r.ID,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Size:        int64(len(f.Data)),
			StoragePath: objPath,
			CreatedAt:   s.clock(),
		}
		if err := s.proofs.Create(ctx, p); err != nil {
			s.jobs.EnqueueDelete(ctx, objPath)
			return nil, err
		}
		saved = append(saved, p)
	}
	return saved, nil
}

func (s *Store) SaveSharedProofs(ctx context.Context, t *task.Task, files []task.Upload) ([]*task.SharedProof, error) {
	if _, err := s.purgeGhostSharedProofs(ctx, t.ID); err != nil {
		return nil, err
	}
	saved := make([]*task.SharedProof, 0, len(files))
	for _, f := range files {
		objPath := s.objectPath(t, "shared", f.FileName)
		if err := s.files.Write(ctx, objPath, f.Data); err != nil {
			return nil, cerr.WrapStorageWriteError("shared proof file", err)
		}
		p := &task.SharedProof{
			ID:          ulid.Make().String(),
			TaskID:      t.ID,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Size:        int64(len(f.Data)),
			StoragePath: objPath,
			CreatedAt:   s.clock(),
		}
		if err := s.sharedProofs.Create(ctx, p); err != nil {
			s.jobs.EnqueueDelete(ctx, objPath)
			return nil, err
		}
		saved = append(saved, p)
	}
	return saved, nil
}

// PruneSharedProofs drops shared proof rows whose backing object is gone and
// returns the rows that survive. Callers count the survivors against the
// batch ceiling; counting ghosts would reject uploads that have room.
func (s *Store) PruneSharedProofs(ctx context.Context, taskID string) ([]*task.SharedProof, error) {
	return s.purgeGhostSharedProofs(ctx, taskID)
}

// purgeGhostSharedProofs removes rows left behind by an abandoned delete job
// and returns the surviving rows.
func (s *Store) purgeGhostSharedProofs(ctx context.Context, taskID string) ([]*task.SharedProof, error) {
	list, err := s.sharedProofs.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	live := make([]*task.SharedProof, 0, len(list))
	for _, p := range list {
		exists, err := s.files.Exists(ctx, p.StoragePath)
		if err != nil {
			return nil, cerr.WrapStorageReadError("shared proof file", err)
		}
		if exists {
			live = append(live, p)
			continue
		}
		if err := s.sharedProofs.Delete(ctx, taskID, p.ID); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return nil, err
		}
	}
	return live, nil
}

func (s *Store) DeleteProofs(ctx context.Context, responseID string) (int, error) {
	rows, err := s.proofs.DeleteByResponse(ctx, responseID)
	if err != nil {
		return 0, err
	}
	paths := make([]string, 0, len(rows))
	for _, p := range rows {
		paths = append(paths, p.StoragePath)
	}
	s.jobs.EnqueueDelete(ctx, paths...)
	return len(rows), nil
}

func (s *Store) DeleteSharedProofs(ctx context.Context, taskID string) (int, error) {
	rows, err := s.sharedProofs.DeleteByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	paths := make([]string, 0, len(rows))
	for _, p := range rows {
		paths = append(paths, p.StoragePath)
	}
	s.jobs.EnqueueDelete(ctx, paths...)
	return len(rows), nil
}

func (s *Store) ListProofs(ctx context.Context, responseID string) ([]*task.Proof, error) {
	return s.proofs.ListByResponse(ctx, responseID)
}

func (s *Store) ListSharedProofs(ctx context.Context, taskID string) ([]*task.SharedProof, error) {
	return s.sharedProofs.ListByTask(ctx, taskID)
}

func (s *Store) HasAnyProof(ctx context.Context, t *task.Task, responses []*task.Response) (bool, error) {
	shared, err := s.sharedProofs.ListByTask(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if len(shared) > 0 {
		return true, nil
	}
	for _, r := range responses {
		own, err := s.proofs.ListByResponse(ctx, r.ID)
		if err != nil {
			return false, err
		}
		if len(own) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// objectPath lays files out under the owning dealership (or "global") and the
// task, bucketed by upload date. The ulid keeps same-named files apart.
func (s *Store) objectPath(t *task.Task, kind, fileName string) string {
	scope := t.DealershipID
	if scope == "" {
		scope = "global"
	}
	now := s.clock().UTC()
	return fmt.Sprintf("%s/tasks/%s/%04d/%02d/%02d/%s_%s%s",
		scope, t.ID, now.Year(), now.Month(), now.Day(), kind, ulid.Make().String(), path.Ext(fileName))
}
