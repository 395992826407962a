package task

import "time"

// deadlineJitter is the window within which two deadlines count as the same.
// Creation forms round to the minute; second-level drift between retries must
// not defeat the guard.
const deadlineJitter = time.Minute

// IsDuplicate reports whether candidate duplicates existing. Only active,
// non-deleted tasks can be duplicated against: an archived task with the same
// payload does not block re-creation. The match is exact on title, type,
// dealership and description (empty matches empty, not "any"), and fuzzy on
// the deadline within one minute.
func IsDuplicate(candidate, existing *Task) bool {
	if existing.Deleted() || !existing.IsActive || existing.Archived() {
		return false
	}
	if candidate.Title != existing.Title ||
		candidate.Type != existing.Type ||
		candidate.DealershipID != existing.DealershipID ||
		candidate.Description != existing.Description {
		return false
	}
	return sameDeadline(candidate.Deadline, existing.Deadline)
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff < deadlineJitter
}
