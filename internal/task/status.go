package task

import "time"

// Status is the derived workflow state of a task. It is computed on read and
// never persisted.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAcknowledged  Status = "acknowledged"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusCompletedLate Status = "completed_late"
	StatusOverdue       Status = "overdue"
)

// ComputeStatus derives the task's status from the full assignment and
// response collections. Callers must pass every assignment (tombstones
// included) and every response for the task; computing over a partial fetch
// is a programming error, not an approximation.
//
// Group tasks complete only when every live assignee has a completed
// response. Individual tasks complete on the first completed response.
// Completion is late when a contributing response landed after the deadline.
// Short of completion, any pending_review response wins, then any
// acknowledged one; an active task past its deadline is overdue; everything
// else is pending.
//
// Filtering, reporting and the archival sweeps all recompute status through
// this one function.
func ComputeStatus(t *Task, assignments []*Assignment, responses []*Response, now time.Time) Status {
	assignees := LiveAssignees(assignments)
	assigned := make(map[string]bool, len(assignees))
	for _, id := range assignees {
		assigned[id] = true
	}

	completed := make(map[string]*Response)
	for _, r := range responses {
		if r.Status == ResponseCompleted {
			completed[r.UserID] = r
		}
	}

	switch t.Type {
	case TypeGroup:
		if len(assignees) > 0 {
			full := true
			late := false
			for _, id := range assignees {
				r, ok := completed[id]
				if !ok {
					full = false
					break
				}
				if isLate(t, r.RespondedAt) {
					late = true
				}
			}
			if full {
				if late {
					return StatusCompletedLate
				}
				return StatusCompleted
			}
		}
	default:
		for _, r := range responses {
			if r.Status != ResponseCompleted {
				continue
			}
			if isLate(t, r.RespondedAt) {
				return StatusCompletedLate
			}
			return StatusCompleted
		}
	}

	for _, r := range responses {
		if r.Status != ResponsePendingReview {
			continue
		}
		if t.Type == TypeGroup && !assigned[r.UserID] {
			continue
		}
		return StatusPendingReview
	}
	for _, r := range responses {
		if r.Status != ResponseAcknowledged {
			continue
		}
		if t.Type == TypeGroup && !assigned[r.UserID] {
			continue
		}
		return StatusAcknowledged
	}

	if t.IsActive && t.Deadline != nil && now.After(*t.Deadline) {
		return StatusOverdue
	}
	return StatusPending
}

func isLate(t *Task, respondedAt time.Time) bool {
	return t.Deadline != nil && respondedAt.After(*t.Deadline)
}

// IsResolved reports whether the computed status counts as completion for
// archival purposes.
func (s Status) IsResolved() bool {
	return s == StatusCompleted || s == StatusCompletedLate
}
