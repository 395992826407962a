package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var statusNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func groupTask(deadline *time.Time) *Task {
	return &Task{ID: "t1", Type: TypeGroup, IsActive: true, Deadline: deadline}
}

func individualTask(deadline *time.Time) *Task {
	return &Task{ID: "t1", Type: TypeIndividual, IsActive: true, Deadline: deadline}
}

func assigned(userIDs ...string) []*Assignment {
	var out []*Assignment
	for _, id := range userIDs {
		out = append(out, &Assignment{ID: "a-" + id, TaskID: "t1", UserID: id})
	}
	return out
}

func completedAt(userID string, at time.Time) *Response {
	return &Response{ID: "r-" + userID, TaskID: "t1", UserID: userID, Status: ResponseCompleted, RespondedAt: at}
}

func withStatus(userID string, status ResponseStatus) *Response {
	return &Response{ID: "r-" + userID, TaskID: "t1", UserID: userID, Status: status}
}

func TestComputeStatusGroupCompletion(t *testing.T) {
	tests := []struct {
		name        string
		assignments []*Assignment
		responses   []*Response
		want        Status
	}{
		{
			name:        "all assignees completed",
			assignments: assigned("u1", "u2", "u3"),
			responses: []*Response{
				completedAt("u1", statusNow), completedAt("u2", statusNow), completedAt("u3", statusNow),
			},
			want: StatusCompleted,
		},
		{
			name:        "one assignee missing",
			assignments: assigned("u1", "u2", "u3"),
			responses: []*Response{
				completedAt("u1", statusNow), completedAt("u2", statusNow),
			},
			want: StatusPending,
		},
		{
			name:        "one assignee only acknowledged",
			assignments: assigned("u1", "u2"),
			responses: []*Response{
				completedAt("u1", statusNow), withStatus("u2", ResponseAcknowledged),
			},
			want: StatusAcknowledged,
		},
		{
			name:        "tombstoned assignee does not count against completion",
			assignments: append(assigned("u1", "u2"), &Assignment{ID: "a-u3", TaskID: "t1", UserID: "u3", DeletedAt: &statusNow}),
			responses: []*Response{
				completedAt("u1", statusNow), completedAt("u2", statusNow),
			},
			want: StatusCompleted,
		},
		{
			name:        "non-assignee review does not surface",
			assignments: assigned("u1"),
			responses: []*Response{
				withStatus("outsider", ResponsePendingReview),
			},
			want: StatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(groupTask(nil), tt.assignments, tt.responses, statusNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeStatusLateBoundary(t *testing.T) {
	deadline := statusNow.Add(-time.Hour)

	t.Run("one second after deadline is late", func(t *testing.T) {
		tk := groupTask(&deadline)
		responses := []*Response{
			completedAt("u1", deadline.Add(-time.Second)),
			completedAt("u2", deadline.Add(time.Second)),
		}
		got := ComputeStatus(tk, assigned("u1", "u2"), responses, statusNow)
		assert.Equal(t, StatusCompletedLate, got)
	})

	t.Run("one second before deadline is on time", func(t *testing.T) {
		tk := groupTask(&deadline)
		responses := []*Response{
			completedAt("u1", deadline.Add(-time.Second)),
			completedAt("u2", deadline.Add(-time.Second)),
		}
		got := ComputeStatus(tk, assigned("u1", "u2"), responses, statusNow)
		assert.Equal(t, StatusCompleted, got)
	})

	t.Run("exactly at deadline is on time", func(t *testing.T) {
		tk := individualTask(&deadline)
		got := ComputeStatus(tk, assigned("u1"), []*Response{completedAt("u1", deadline)}, statusNow)
		assert.Equal(t, StatusCompleted, got)
	})
}

func TestComputeStatusIndividual(t *testing.T) {
	t.Run("first completed response completes the task", func(t *testing.T) {
		got := ComputeStatus(individualTask(nil), assigned("u1", "u2"), []*Response{
			withStatus("u1", ResponseAcknowledged),
			completedAt("u2", statusNow),
		}, statusNow)
		assert.Equal(t, StatusCompleted, got)
	})

	t.Run("late completion reported as completed_late", func(t *testing.T) {
		deadline := statusNow.Add(-2 * time.Hour)
		got := ComputeStatus(individualTask(&deadline), assigned("u1"), []*Response{
			completedAt("u1", statusNow),
		}, statusNow)
		assert.Equal(t, StatusCompletedLate, got)
	})
}

func TestComputeStatusPrecedence(t *testing.T) {
	t.Run("pending_review beats acknowledged", func(t *testing.T) {
		got := ComputeStatus(individualTask(nil), assigned("u1", "u2"), []*Response{
			withStatus("u1", ResponseAcknowledged),
			withStatus("u2", ResponsePendingReview),
		}, statusNow)
		assert.Equal(t, StatusPendingReview, got)
	})

	t.Run("active task past deadline is overdue", func(t *testing.T) {
		deadline := statusNow.Add(-time.Minute)
		got := ComputeStatus(individualTask(&deadline), assigned("u1"), nil, statusNow)
		assert.Equal(t, StatusOverdue, got)
	})

	t.Run("inactive task past deadline stays pending", func(t *testing.T) {
		deadline := statusNow.Add(-time.Minute)
		tk := individualTask(&deadline)
		tk.IsActive = false
		got := ComputeStatus(tk, assigned("u1"), nil, statusNow)
		assert.Equal(t, StatusPending, got)
	})

	t.Run("rejected response does not surface as review", func(t *testing.T) {
		got := ComputeStatus(individualTask(nil), assigned("u1"), []*Response{
			withStatus("u1", ResponseRejected),
		}, statusNow)
		assert.Equal(t, StatusPending, got)
	})
}

func TestStatusIsResolved(t *testing.T) {
	assert.True(t, StatusCompleted.IsResolved())
	assert.True(t, StatusCompletedLate.IsResolved())
	assert.False(t, StatusPendingReview.IsResolved())
	assert.False(t, StatusOverdue.IsResolved())
}
