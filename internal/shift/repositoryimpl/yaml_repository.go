package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dealerops/taskboard/internal/shift"
	"github.com/dealerops/taskboard/pkg/cerr"
	"github.com/dealerops/taskboard/pkg/storage"
)

const shiftsPrefix = "shifts"

type YAMLShiftRepository struct {
	storage storage.Storage
}

func NewYAMLShiftRepository(s storage.Storage) *YAMLShiftRepository {
	return &YAMLShiftRepository{storage: s}
}

func shiftPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", shiftsPrefix, id)
}

func (r *YAMLShiftRepository) Get(ctx context.Context, id string) (*shift.Shift, error) {
	data, err := r.storage.Read(ctx, shiftPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("shift", err)
	}
	var s shift.Shift
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal shift: %w", err))
	}
	return &s, nil
}

func (r *YAMLShiftRepository) ListByUser(ctx context.Context, userID string) ([]*shift.Shift, error) {
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*shift.Shift
	for _, s := range all {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *YAMLShiftRepository) ListClosedUnprocessed(ctx context.Context) ([]*shift.Shift, error) {
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*shift.Shift
	for _, s := range all {
		if !s.Open() && !s.ArchiveProcessed {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *YAMLShiftRepository) Create(ctx context.Context, s *shift.Shift) error {
	exists, err := r.storage.Exists(ctx, shiftPath(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("shift", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "shift already exists", nil)
	}
	return r.write(ctx, s)
}

func (r *YAMLShiftRepository) Update(ctx context.Context, s *shift.Shift) error {
	exists, err := r.storage.Exists(ctx, shiftPath(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("shift", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "shift not found", nil)
	}
	return r.write(ctx, s)
}

func (r *YAMLShiftRepository) write(ctx context.Context, s *shift.Shift) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal shift: %w", err))
	}
	if err := r.storage.Write(ctx, shiftPath(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("shift", err)
	}
	return nil
}

func (r *YAMLShiftRepository) listAll(ctx context.Context) ([]*shift.Shift, error) {
	paths, err := r.storage.List(ctx, shiftsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("shifts", err)
	}
	var out []*shift.Shift
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s shift.Shift
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}
