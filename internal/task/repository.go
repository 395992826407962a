package task

import "context"

// ListFilter narrows Repository.List. Zero value lists everything that is not
// soft-deleted.
type ListFilter struct {
	DealershipID string // exact match; "" means any
	ActiveOnly   bool
	Limit        int
	Offset       int
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
}

// AssignmentRepository returns tombstoned rows as well; callers filter with
// LiveAssignees where only live rows matter.
type AssignmentRepository interface {
	ListByTask(ctx context.Context, taskID string) ([]*Assignment, error)
	Create(ctx context.Context, a *Assignment) error
	Update(ctx context.Context, a *Assignment) error
}

type ResponseRepository interface {
	Get(ctx context.Context, id string) (*Response, error)
	ListByTask(ctx context.Context, taskID string) ([]*Response, error)
	Create(ctx context.Context, r *Response) error
	Update(ctx context.Context, r *Response) error
}

type ProofRepository interface {
	ListByResponse(ctx context.Context, responseID string) ([]*Proof, error)
	Create(ctx context.Context, p *Proof) error
	DeleteByResponse(ctx context.Context, responseID string) ([]*Proof, error)
}

type SharedProofRepository interface {
	ListByTask(ctx context.Context, taskID string) ([]*SharedProof, error)
	Create(ctx context.Context, p *SharedProof) error
	Delete(ctx context.Context, taskID, id string) error
	DeleteByTask(ctx context.Context, taskID string) ([]*SharedProof, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, h *VerificationHistory) error
	ListByResponse(ctx context.Context, responseID string) ([]*VerificationHistory, error)
}

// ProofStore is the file-side collaborator for proof batches. Implementations
// validate before mutating and defer backing-store deletion until after the
// owning rows are gone.
type ProofStore interface {
	// CheckBatch validates a batch against the configured count and size
	// ceilings and the content validator without mutating anything.
	CheckBatch(ctx context.Context, t *Task, existing int, files []Upload) error
	SaveProofs(ctx context.Context, t *Task, r *Response, files []Upload) ([]*Proof, error)
	SaveSharedProofs(ctx context.Context, t *Task, files []Upload) ([]*SharedProof, error)
	// DeleteProofs / DeleteSharedProofs remove the database rows and dispatch
	// asynchronous deletion of the backing files. They report how many rows
	// were removed.
	DeleteProofs(ctx context.Context, responseID string) (int, error)
	DeleteSharedProofs(ctx context.Context, taskID string) (int, error)
	ListProofs(ctx context.Context, responseID string) ([]*Proof, error)
	ListSharedProofs(ctx context.Context, taskID string) ([]*SharedProof, error)
	// PruneSharedProofs drops shared proof rows whose backing file is gone
	// and returns the surviving rows. Capacity checks count the survivors.
	PruneSharedProofs(ctx context.Context, taskID string) ([]*SharedProof, error)
	// HasAnyProof reports whether any assignee proof or shared proof exists
	// for the task; used by elevated actors completing task-wide.
	HasAnyProof(ctx context.Context, t *Task, responses []*Response) (bool, error)
}

// ShiftGate is the boundary to the shift clock subsystem. The engine only
// asks whether a user currently holds an open shift.
type ShiftGate interface {
	OpenShiftID(ctx context.Context, userID string) (string, bool, error)
}

// Directory resolves the elevated users of a dealership for notification
// fan-out. It is an external collaborator of the engine.
type Directory interface {
	ManagerIDs(ctx context.Context, dealershipID string) ([]string, error)
}
