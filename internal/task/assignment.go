package task

import "time"

// Assignment binds a user to a task. Rows are tombstoned instead of removed
// so reassignment history stays recoverable; at most one live row may exist
// per (task, user).
type Assignment struct {
	ID        string     `yaml:"id"`
	TaskID    string     `yaml:"task_id"`
	UserID    string     `yaml:"user_id"`
	CreatedAt time.Time  `yaml:"created_at"`
	DeletedAt *time.Time `yaml:"deleted_at,omitempty"`
}

func (a *Assignment) Deleted() bool {
	return a.DeletedAt != nil
}

// LiveAssignees returns the user ids with a non-tombstoned assignment.
func LiveAssignees(assignments []*Assignment) []string {
	var ids []string
	for _, a := range assignments {
		if !a.Deleted() {
			ids = append(ids, a.UserID)
		}
	}
	return ids
}
