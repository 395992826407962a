package verification

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
)

// Workflow is the manager-facing review surface: approving and rejecting
// responses that sit in pending_review. Proof counts are snapshotted into the
// history ledger before any files are dropped, so the ledger records what the
// reviewer actually looked at.
type Workflow struct {
	tasks     task.Repository
	responses task.ResponseRepository
	history   task.HistoryRepository
	proofs    task.ProofStore
	locks     *task.LockRegistry
	bus       *eventbus.Bus
	clock     func() time.Time
}

func New(
	tasks task.Repository,
	responses task.ResponseRepository,
	history task.HistoryRepository,
	proofs task.ProofStore,
	locks *task.LockRegistry,
	bus *eventbus.Bus,
) *Workflow {
	return &Workflow{
		tasks:     tasks,
		responses: responses,
		history:   history,
		proofs:    proofs,
		locks:     locks,
		bus:       bus,
		clock:     time.Now,
	}
}

// WithClock overrides the workflow clock. Test hook.
func (w *Workflow) WithClock(clock func() time.Time) *Workflow {
	w.clock = clock
	return w
}

// Approve moves a pending_review response to completed and stamps the
// verifier.
func (w *Workflow) Approve(ctx context.Context, actor task.Actor, responseID string) (*task.Response, error) {
	t, r, unlock, err := w.lockResponse(ctx, actor, responseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if r.Status != task.ResponsePendingReview {
		return nil, cerr.NewError(cerr.FailedPrecondition, "response is not awaiting review", nil)
	}

	count, err := w.proofCount(ctx, t, r)
	if err != nil {
		return nil, err
	}

	now := w.clock()
	r.Status = task.ResponseCompleted
	at := now
	r.VerifiedAt = &at
	r.VerifiedBy = actor.UserID
	r.RejectionReason = ""
	r.UpdatedAt = now
	if err := w.responses.Update(ctx, r); err != nil {
		return nil, err
	}
	if err := w.appendHistory(ctx, r, task.HistoryApproved, actor.UserID, task.ResponsePendingReview, task.ResponseCompleted, count, ""); err != nil {
		return nil, err
	}

	ev := eventbus.NewEvent(eventbus.TypeTaskApproved, t.ID, []string{r.UserID})
	ev.ResponseID = r.ID
	w.bus.Publish(ev)
	return r, nil
}

// Reject sends a pending_review response back to its assignee. The proofs the
// reviewer turned down are removed, shared proofs included when the response
// relied on them, so a resubmission starts from a clean slate.
func (w *Workflow) Reject(ctx context.Context, actor task.Actor, responseID, reason string) (*task.Response, error) {
	if reason == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "a rejection reason is required", nil)
	}
	t, r, unlock, err := w.lockResponse(ctx, actor, responseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if r.Status != task.ResponsePendingReview {
		return nil, cerr.NewError(cerr.FailedPrecondition, "response is not awaiting review", nil)
	}

	count, err := w.proofCount(ctx, t, r)
	if err != nil {
		return nil, err
	}
	if err := w.dropProofs(ctx, t, r); err != nil {
		return nil, err
	}

	now := w.clock()
	w.markRejected(r, reason, now)
	if err := w.responses.Update(ctx, r); err != nil {
		return nil, err
	}
	if err := w.appendHistory(ctx, r, task.HistoryRejected, actor.UserID, task.ResponsePendingReview, task.ResponseRejected, count, reason); err != nil {
		return nil, err
	}

	ev := eventbus.NewEvent(eventbus.TypeTaskRejected, t.ID, []string{r.UserID})
	ev.ResponseID = r.ID
	ev.Reason = reason
	w.bus.Publish(ev)
	return r, nil
}

// RejectAll rejects every pending_review response of a task in one action.
// The task's shared proofs are deleted at most once and one aggregated event
// covers all affected assignees.
func (w *Workflow) RejectAll(ctx context.Context, actor task.Actor, taskID, reason string) ([]*task.Response, error) {
	if reason == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "a rejection reason is required", nil)
	}
	if !actor.Elevated {
		return nil, cerr.NewError(cerr.PermissionDenied, "verification requires the manager role", nil)
	}
	t, err := w.getLiveTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	unlock := w.locks.Lock(t.ID)
	defer unlock()

	responses, err := w.responses.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	var pending []*task.Response
	for _, r := range responses {
		if r.Status == task.ResponsePendingReview {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, cerr.NewError(cerr.FailedPrecondition, "no responses are awaiting review", nil)
	}

	// Snapshot the shared count up front; the first shared-proof response in
	// the loop deletes the files for all of them.
	shared, err := w.proofs.ListSharedProofs(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	sharedCount := len(shared)
	sharedDeleted := false

	now := w.clock()
	var userIDs []string
	for _, r := range pending {
		count := sharedCount
		if r.UsesSharedProofs {
			if !sharedDeleted {
				if _, err := w.proofs.DeleteSharedProofs(ctx, t.ID); err != nil {
					return nil, err
				}
				sharedDeleted = true
			}
		} else {
			own, err := w.proofs.ListProofs(ctx, r.ID)
			if err != nil {
				return nil, err
			}
			count = len(own)
			if _, err := w.proofs.DeleteProofs(ctx, r.ID); err != nil {
				return nil, err
			}
		}

		w.markRejected(r, reason, now)
		if err := w.responses.Update(ctx, r); err != nil {
			return nil, err
		}
		if err := w.appendHistory(ctx, r, task.HistoryRejected, actor.UserID, task.ResponsePendingReview, task.ResponseRejected, count, reason); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, r.UserID)
	}

	ev := eventbus.NewEvent(eventbus.TypeTaskRejected, t.ID, userIDs)
	ev.Reason = reason
	w.bus.Publish(ev)
	return pending, nil
}

func (w *Workflow) markRejected(r *task.Response, reason string, now time.Time) {
	r.Status = task.ResponseRejected
	r.RejectionReason = reason
	r.RejectionCount++
	r.UsesSharedProofs = false
	r.VerifiedAt = nil
	r.VerifiedBy = ""
	r.UpdatedAt = now
}

func (w *Workflow) dropProofs(ctx context.Context, t *task.Task, r *task.Response) error {
	if r.UsesSharedProofs {
		_, err := w.proofs.DeleteSharedProofs(ctx, t.ID)
		return err
	}
	_, err := w.proofs.DeleteProofs(ctx, r.ID)
	return err
}

func (w *Workflow) proofCount(ctx context.Context, t *task.Task, r *task.Response) (int, error) {
	if r.UsesSharedProofs {
		shared, err := w.proofs.ListSharedProofs(ctx, t.ID)
		if err != nil {
			return 0, err
		}
		return len(shared), nil
	}
	own, err := w.proofs.ListProofs(ctx, r.ID)
	if err != nil {
		return 0, err
	}
	return len(own), nil
}

// lockResponse resolves a response and its task, authorizes the actor and
// takes the task lock. The response is re-read under the lock so concurrent
// reviewers do not race on a stale row.
func (w *Workflow) lockResponse(ctx context.Context, actor task.Actor, responseID string) (*task.Task, *task.Response, func(), error) {
	if !actor.Elevated {
		return nil, nil, nil, cerr.NewError(cerr.PermissionDenied, "verification requires the manager role", nil)
	}
	r, err := w.responses.Get(ctx, responseID)
	if err != nil {
		return nil, nil, nil, err
	}
	t, err := w.getLiveTask(ctx, actor, r.TaskID)
	if err != nil {
		return nil, nil, nil, err
	}

	unlock := w.locks.Lock(t.ID)
	r, err = w.responses.Get(ctx, responseID)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return t, r, unlock, nil
}

func (w *Workflow) getLiveTask(ctx context.Context, actor task.Actor, taskID string) (*task.Task, error) {
	t, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Deleted() {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if actor.DealershipID != "" && t.DealershipID != "" && actor.DealershipID != t.DealershipID {
		return nil, cerr.NewError(cerr.PermissionDenied, "task belongs to another dealership", nil)
	}
	return t, nil
}

func (w *Workflow) appendHistory(ctx context.Context, r *task.Response, action task.HistoryAction, actorID string, from, to task.ResponseStatus, count int, reason string) error {
	return w.history.Append(ctx, &task.VerificationHistory{
		ID:         ulid.Make().String(),
		TaskID:     r.TaskID,
		ResponseID: r.ID,
		Action:     action,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		ProofCount: count,
		Reason:     reason,
		CreatedAt:  w.clock(),
	})
}
