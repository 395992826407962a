package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/filejob"
	"github.com/dealerops/taskboard/internal/proofstore"
	"github.com/dealerops/taskboard/internal/task"
	taskrepo "github.com/dealerops/taskboard/internal/task/repositoryimpl"
	"github.com/dealerops/taskboard/internal/verification"
	"github.com/dealerops/taskboard/pkg/cerr"
	"github.com/dealerops/taskboard/pkg/storage"
)

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type workflowEnv struct {
	wf        *verification.Workflow
	tasks     *taskrepo.YAMLTaskRepository
	responses *taskrepo.YAMLResponseRepository
	history   *taskrepo.YAMLHistoryRepository
	proofs    *proofstore.Store
	bus       *eventbus.Bus
	now       time.Time
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	bus := eventbus.New()
	worker := filejob.NewWorker(store, 2)
	t.Cleanup(worker.Wait)

	taskRepo := taskrepo.NewYAMLTaskRepository(store)
	responseRepo := taskrepo.NewYAMLResponseRepository(store)
	historyRepo := taskrepo.NewYAMLHistoryRepository(store)
	proofs := proofstore.New(
		taskrepo.NewYAMLProofRepository(store),
		taskrepo.NewYAMLSharedProofRepository(store),
		store, worker,
		proofstore.Limits{MaxFilesPerResponse: 5, MaxBatchBytes: 1 << 20},
		nil,
	).WithClock(clock)

	wf := verification.New(taskRepo, responseRepo, historyRepo, proofs, task.NewLockRegistry(), bus).WithClock(clock)

	return &workflowEnv{
		wf:        wf,
		tasks:     taskRepo,
		responses: responseRepo,
		history:   historyRepo,
		proofs:    proofs,
		bus:       bus,
		now:       now,
	}
}

func (e *workflowEnv) seedTask(t *testing.T) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:           ulid.Make().String(),
		Title:        "Detail the trade-ins",
		DealershipID: "d1",
		Type:         task.TypeGroup,
		ResponseType: task.ResponseTypeCompletionWithProof,
		IsActive:     true,
		CreatedAt:    e.now,
		UpdatedAt:    e.now,
	}
	require.NoError(t, e.tasks.Create(context.Background(), tk))
	return tk
}

func (e *workflowEnv) seedReview(t *testing.T, tk *task.Task, userID string, shared bool) *task.Response {
	t.Helper()
	r := &task.Response{
		ID:               ulid.Make().String(),
		TaskID:           tk.ID,
		UserID:           userID,
		Status:           task.ResponsePendingReview,
		RespondedAt:      e.now,
		UsesSharedProofs: shared,
		CreatedAt:        e.now,
		UpdatedAt:        e.now,
	}
	require.NoError(t, e.responses.Create(context.Background(), r))
	return r
}

func reviewer() task.Actor {
	return task.Actor{UserID: "mgr-1", DealershipID: "d1", Elevated: true}
}

func TestWorkflowApprove(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	r := env.seedReview(t, tk, "u1", false)
	_, err := env.proofs.SaveProofs(ctx, tk, r, []task.Upload{{FileName: "a.png", ContentType: "image/png", Data: pngHeader}})
	require.NoError(t, err)

	subID, ch := env.bus.Subscribe(16)
	defer env.bus.Unsubscribe(subID)

	got, err := env.wf.Approve(ctx, reviewer(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ResponseCompleted, got.Status)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, env.now, *got.VerifiedAt)
	assert.Equal(t, "mgr-1", got.VerifiedBy)

	rows, err := env.history.ListByResponse(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, task.HistoryApproved, rows[0].Action)
	assert.Equal(t, task.ResponsePendingReview, rows[0].FromStatus)
	assert.Equal(t, task.ResponseCompleted, rows[0].ToStatus)
	assert.Equal(t, 1, rows[0].ProofCount)

	ev := <-ch
	assert.Equal(t, eventbus.TypeTaskApproved, ev.Type)
	assert.Equal(t, []string{"u1"}, ev.UserIDs)
	assert.Equal(t, r.ID, ev.ResponseID)

	// Approved proofs survive.
	own, err := env.proofs.ListProofs(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestWorkflowApproveGuards(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	r := env.seedReview(t, tk, "u1", false)

	_, err := env.wf.Approve(ctx, task.Actor{UserID: "u2", DealershipID: "d1"}, r.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	completed := env.seedReview(t, tk, "u2", false)
	completed.Status = task.ResponseCompleted
	require.NoError(t, env.responses.Update(ctx, completed))
	_, err = env.wf.Approve(ctx, reviewer(), completed.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = env.wf.Approve(ctx, task.Actor{UserID: "mgr-9", DealershipID: "d2", Elevated: true}, r.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))
}

func TestWorkflowReject(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	r := env.seedReview(t, tk, "u1", false)
	_, err := env.proofs.SaveProofs(ctx, tk, r, []task.Upload{{FileName: "a.png", ContentType: "image/png", Data: pngHeader}})
	require.NoError(t, err)

	_, err = env.wf.Reject(ctx, reviewer(), r.ID, "")
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	subID, ch := env.bus.Subscribe(16)
	defer env.bus.Unsubscribe(subID)

	got, err := env.wf.Reject(ctx, reviewer(), r.ID, "photo is blurry")
	require.NoError(t, err)
	assert.Equal(t, task.ResponseRejected, got.Status)
	assert.Equal(t, "photo is blurry", got.RejectionReason)
	assert.Equal(t, 1, got.RejectionCount)
	assert.Nil(t, got.VerifiedAt)

	// The turned-down proofs are gone.
	own, err := env.proofs.ListProofs(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, own)

	rows, err := env.history.ListByResponse(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, task.HistoryRejected, rows[0].Action)
	assert.Equal(t, "photo is blurry", rows[0].Reason)
	assert.Equal(t, 1, rows[0].ProofCount)

	ev := <-ch
	assert.Equal(t, eventbus.TypeTaskRejected, ev.Type)
	assert.Equal(t, "photo is blurry", ev.Reason)
}

func TestWorkflowRejectSharedLeavesSiblings(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	r1 := env.seedReview(t, tk, "u1", true)
	r2 := env.seedReview(t, tk, "u2", true)
	r3 := env.seedReview(t, tk, "u3", true)
	_, err := env.proofs.SaveSharedProofs(ctx, tk, []task.Upload{{FileName: "group.png", ContentType: "image/png", Data: pngHeader}})
	require.NoError(t, err)

	got, err := env.wf.Reject(ctx, reviewer(), r1.ID, "wrong angle")
	require.NoError(t, err)
	assert.Equal(t, task.ResponseRejected, got.Status)
	assert.False(t, got.UsesSharedProofs)

	shared, err := env.proofs.ListSharedProofs(ctx, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, shared)

	// Siblings keep their state; only the files are gone.
	for _, id := range []string{r2.ID, r3.ID} {
		sibling, err := env.responses.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, task.ResponsePendingReview, sibling.Status)
		assert.True(t, sibling.UsesSharedProofs)
		assert.Equal(t, 0, sibling.RejectionCount)
	}
}

func TestWorkflowRejectAll(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	r1 := env.seedReview(t, tk, "u1", true)
	r2 := env.seedReview(t, tk, "u2", true)
	r3 := env.seedReview(t, tk, "u3", false)
	_, err := env.proofs.SaveSharedProofs(ctx, tk, []task.Upload{{FileName: "group.png", ContentType: "image/png", Data: pngHeader}})
	require.NoError(t, err)
	_, err = env.proofs.SaveProofs(ctx, tk, r3, []task.Upload{{FileName: "own.png", ContentType: "image/png", Data: pngHeader}})
	require.NoError(t, err)

	subID, ch := env.bus.Subscribe(16)
	defer env.bus.Unsubscribe(subID)

	rejected, err := env.wf.RejectAll(ctx, reviewer(), tk.ID, "start over")
	require.NoError(t, err)
	assert.Len(t, rejected, 3)

	for _, id := range []string{r1.ID, r2.ID, r3.ID} {
		r, err := env.responses.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, task.ResponseRejected, r.Status)
		assert.Equal(t, "start over", r.RejectionReason)
		assert.Equal(t, 1, r.RejectionCount)
		assert.False(t, r.UsesSharedProofs)
	}

	shared, err := env.proofs.ListSharedProofs(ctx, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, shared)
	own, err := env.proofs.ListProofs(ctx, r3.ID)
	require.NoError(t, err)
	assert.Empty(t, own)

	// History snapshots the shared count for every shared-proof response.
	for _, id := range []string{r1.ID, r2.ID} {
		rows, err := env.history.ListByResponse(ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].ProofCount)
	}

	// One aggregated event for the whole bulk action.
	var events []*eventbus.Event
	for len(ch) > 0 {
		events = append(events, <-ch)
	}
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TypeTaskRejected, events[0].Type)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, events[0].UserIDs)
	assert.Equal(t, "start over", events[0].Reason)
}

func TestWorkflowRejectAllWithoutReviews(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	tk := env.seedTask(t)
	env.seedReview(t, tk, "u1", false)

	// Completed rows are not swept up by a bulk reject.
	r, err := env.responses.Get(ctx, env.seedReview(t, tk, "u2", false).ID)
	require.NoError(t, err)
	r.Status = task.ResponseCompleted
	require.NoError(t, env.responses.Update(ctx, r))

	rejected, err := env.wf.RejectAll(ctx, reviewer(), tk.ID, "redo")
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	untouched, err := env.responses.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ResponseCompleted, untouched.Status)

	_, err = env.wf.RejectAll(ctx, reviewer(), tk.ID, "again")
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}
