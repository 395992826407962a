package archival

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/shift"
	shiftrepo "github.com/dealerops/taskboard/internal/shift/repositoryimpl"
	"github.com/dealerops/taskboard/internal/task"
	taskrepo "github.com/dealerops/taskboard/internal/task/repositoryimpl"
	"github.com/dealerops/taskboard/pkg/storage"
)

func TestIsTimeMatch(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		now     time.Time
		trigger string
		want    bool
	}{
		{"exact", at(3, 0), "03:00", true},
		{"five minutes after", at(3, 5), "03:00", true},
		{"six minutes after", at(3, 6), "03:00", false},
		{"five minutes before", at(2, 55), "03:00", true},
		{"midnight wraparound forward", at(0, 2), "23:58", true},
		{"midnight wraparound backward", at(23, 58), "00:02", true},
		{"wraparound outside tolerance", at(0, 6), "23:58", false},
		{"unparseable trigger never matches", at(3, 0), "3am", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTimeMatch(tt.now, tt.trigger))
		})
	}
}

type policyEnv struct {
	policy      *Policy
	tasks       *taskrepo.YAMLTaskRepository
	assignments *taskrepo.YAMLAssignmentRepository
	responses   *taskrepo.YAMLResponseRepository
	shifts      *shiftrepo.YAMLShiftRepository
	bus         *eventbus.Bus
	now         time.Time
}

func newPolicyEnv(t *testing.T) *policyEnv {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	settings := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), Settings{
		CompletedSweepAt:    "03:00",
		OverdueSweepDay:     now.Weekday().String(),
		OverdueSweepAt:      "03:00",
		PostShiftDelayHours: 2,
	})

	taskRepo := taskrepo.NewYAMLTaskRepository(store)
	assignmentRepo := taskrepo.NewYAMLAssignmentRepository(store)
	responseRepo := taskrepo.NewYAMLResponseRepository(store)
	shiftRepo := shiftrepo.NewYAMLShiftRepository(store)
	bus := eventbus.New()

	policy := NewPolicy(taskRepo, assignmentRepo, responseRepo, shiftRepo, settings, task.NewLockRegistry(), bus, 50).
		WithClock(func() time.Time { return now })

	return &policyEnv{
		policy:      policy,
		tasks:       taskRepo,
		assignments: assignmentRepo,
		responses:   responseRepo,
		shifts:      shiftRepo,
		bus:         bus,
		now:         now,
	}
}

func (e *policyEnv) seedTask(t *testing.T, deadline *time.Time) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:           ulid.Make().String(),
		Title:        "Stock check",
		DealershipID: "d1",
		Type:         task.TypeIndividual,
		ResponseType: task.ResponseTypeCompletion,
		Deadline:     deadline,
		IsActive:     true,
		CreatedAt:    e.now.Add(-72 * time.Hour),
		UpdatedAt:    e.now.Add(-72 * time.Hour),
	}
	require.NoError(t, e.tasks.Create(context.Background(), tk))
	require.NoError(t, e.assignments.Create(context.Background(), &task.Assignment{
		ID: ulid.Make().String(), TaskID: tk.ID, UserID: "u1", CreatedAt: tk.CreatedAt,
	}))
	return tk
}

func (e *policyEnv) completeAt(t *testing.T, tk *task.Task, at time.Time) {
	t.Helper()
	require.NoError(t, e.responses.Create(context.Background(), &task.Response{
		ID:          ulid.Make().String(),
		TaskID:      tk.ID,
		UserID:      "u1",
		Status:      task.ResponseCompleted,
		RespondedAt: at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}))
}

func TestSweepCompleted(t *testing.T) {
	env := newPolicyEnv(t)
	ctx := context.Background()

	stale := env.seedTask(t, nil)
	env.completeAt(t, stale, env.now.Add(-25*time.Hour))

	fresh := env.seedTask(t, nil)
	env.completeAt(t, fresh, env.now.Add(-23*time.Hour))

	open := env.seedTask(t, nil)

	subID, ch := env.bus.Subscribe(16)
	defer env.bus.Unsubscribe(subID)

	n, err := env.policy.SweepCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	archived, err := env.tasks.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived())
	assert.False(t, archived.IsActive)
	assert.Equal(t, task.ArchiveReasonCompleted, archived.ArchiveReason)

	for _, id := range []string{fresh.ID, open.ID} {
		tk, err := env.tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, tk.Archived())
	}

	ev := <-ch
	assert.Equal(t, eventbus.TypeTaskArchived, ev.Type)
	assert.Equal(t, stale.ID, ev.TaskID)
	assert.Equal(t, string(task.ArchiveReasonCompleted), ev.Reason)

	// Re-running finds nothing; the archived task left the active set.
	n, err = env.policy.SweepCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepCompletedPagesPastArchivedRows(t *testing.T) {
	env := newPolicyEnv(t)
	env.policy.batchSize = 2
	ctx := context.Background()

	// Five archivable tasks across three pages. Each archived row drops out
	// of the active filter, so a sweep that advanced the offset blindly
	// would skip every other task.
	var ids []string
	for i := 0; i < 5; i++ {
		tk := env.seedTask(t, nil)
		env.completeAt(t, tk, env.now.Add(-25*time.Hour))
		ids = append(ids, tk.ID)
	}

	n, err := env.policy.SweepCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for _, id := range ids {
		tk, err := env.tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, tk.Archived())
	}
}

func TestSweepCompletedOutsideWindow(t *testing.T) {
	env := newPolicyEnv(t)
	env.policy.WithClock(func() time.Time { return env.now.Add(30 * time.Minute) })

	stale := env.seedTask(t, nil)
	env.completeAt(t, stale, env.now.Add(-25*time.Hour))

	n, err := env.policy.SweepCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepOverdue(t *testing.T) {
	env := newPolicyEnv(t)
	ctx := context.Background()

	expired := env.now.Add(-25 * time.Hour)
	recent := env.now.Add(-23 * time.Hour)

	overdue := env.seedTask(t, &expired)
	borderline := env.seedTask(t, &recent)
	rescued := env.seedTask(t, &expired)
	env.completeAt(t, rescued, env.now.Add(-time.Hour))

	n, err := env.policy.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tk, err := env.tasks.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.True(t, tk.Archived())
	assert.Equal(t, task.ArchiveReasonExpired, tk.ArchiveReason)

	for _, id := range []string{borderline.ID, rescued.ID} {
		tk, err := env.tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, tk.Archived())
	}
}

func TestSweepOverdueWrongDay(t *testing.T) {
	env := newPolicyEnv(t)
	env.policy.WithClock(func() time.Time { return env.now.Add(24 * time.Hour) })

	expired := env.now.Add(-25 * time.Hour)
	env.seedTask(t, &expired)

	n, err := env.policy.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepPostShift(t *testing.T) {
	env := newPolicyEnv(t)
	ctx := context.Background()

	opened := env.now.Add(-12 * time.Hour)
	closedLongAgo := env.now.Add(-3 * time.Hour)
	closedRecently := env.now.Add(-time.Hour)

	ripe := &shift.Shift{ID: "s1", UserID: "u1", DealershipID: "d1", OpenedAt: opened, ClosedAt: &closedLongAgo}
	young := &shift.Shift{ID: "s2", UserID: "u2", DealershipID: "d1", OpenedAt: opened, ClosedAt: &closedRecently}
	require.NoError(t, env.shifts.Create(ctx, ripe))
	require.NoError(t, env.shifts.Create(ctx, young))

	inShift := env.now.Add(-6 * time.Hour)
	outOfShift := env.now.Add(-20 * time.Hour)
	covered := env.seedTask(t, &inShift)
	uncovered := env.seedTask(t, &outOfShift)

	n, err := env.policy.SweepPostShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tk, err := env.tasks.Get(ctx, covered.ID)
	require.NoError(t, err)
	assert.True(t, tk.Archived())
	assert.Equal(t, task.ArchiveReasonPostShift, tk.ArchiveReason)

	tk, err = env.tasks.Get(ctx, uncovered.ID)
	require.NoError(t, err)
	assert.False(t, tk.Archived())

	// The inspected shift is consumed; the young one waits for its delay.
	processed, err := env.shifts.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, processed.ArchiveProcessed)
	waiting, err := env.shifts.Get(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, waiting.ArchiveProcessed)

	// A second run never rescans the processed shift.
	n, err = env.policy.SweepPostShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
