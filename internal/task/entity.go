package task

import "time"

type Type string

const (
	TypeIndividual Type = "individual"
	TypeGroup      Type = "group"
)

type ResponseType string

const (
	ResponseTypeNotification        ResponseType = "notification"
	ResponseTypeCompletion          ResponseType = "completion"
	ResponseTypeCompletionWithProof ResponseType = "completion_with_proof"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type ArchiveReason string

const (
	ArchiveReasonCompleted ArchiveReason = "completed"
	ArchiveReasonExpired   ArchiveReason = "expired"
	ArchiveReasonPostShift ArchiveReason = "post_shift"
	ArchiveReasonDeleted   ArchiveReason = "deleted"
)

// Task is the unit of work handed to one or more assignees. Its workflow
// status is never stored; it is derived from the assignment and response
// collections by ComputeStatus.
type Task struct {
	ID                string        `yaml:"id"`
	Title             string        `yaml:"title"`
	Description       string        `yaml:"description"`
	Comment           string        `yaml:"comment,omitempty"`
	CreatedBy         string        `yaml:"created_by"`
	DealershipID      string        `yaml:"dealership_id,omitempty"` // empty = global
	AppearsAt         time.Time     `yaml:"appears_at"`
	Deadline          *time.Time    `yaml:"deadline,omitempty"`
	Type              Type          `yaml:"type"`
	ResponseType      ResponseType  `yaml:"response_type"`
	Tags              []string      `yaml:"tags,omitempty"`
	Priority          Priority      `yaml:"priority"`
	RequiresOpenShift bool          `yaml:"requires_open_shift"`
	IsActive          bool          `yaml:"is_active"`
	ArchivedAt        *time.Time    `yaml:"archived_at,omitempty"`
	ArchiveReason     ArchiveReason `yaml:"archive_reason,omitempty"`
	PostponeCount     int           `yaml:"postpone_count"`
	TemplateID        string        `yaml:"template_id,omitempty"`
	CreatedAt         time.Time     `yaml:"created_at"`
	UpdatedAt         time.Time     `yaml:"updated_at"`
	DeletedAt         *time.Time    `yaml:"deleted_at,omitempty"`
}

// Archive flips the task to its archived form. ArchivedAt and IsActive are
// never toggled independently; this is the only way either field changes.
func (t *Task) Archive(now time.Time, reason ArchiveReason) {
	if t.ArchivedAt != nil {
		return
	}
	at := now
	t.ArchivedAt = &at
	t.ArchiveReason = reason
	t.IsActive = false
	t.UpdatedAt = now
}

// Archived reports whether the task has been retired by the archival policy.
func (t *Task) Archived() bool {
	return t.ArchivedAt != nil
}

func (t *Task) Deleted() bool {
	return t.DeletedAt != nil
}

// Actor identifies the caller of a mutation. Elevated covers both the manager
// and owner roles; the engine treats them as a single capability.
type Actor struct {
	UserID       string
	DealershipID string
	Elevated     bool
}
