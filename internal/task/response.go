package task

import "time"

type ResponseStatus string

const (
	ResponsePending       ResponseStatus = "pending"
	ResponseAcknowledged  ResponseStatus = "acknowledged"
	ResponsePendingReview ResponseStatus = "pending_review"
	ResponseCompleted     ResponseStatus = "completed"
	ResponseRejected      ResponseStatus = "rejected"
)

type SubmissionSource string

const (
	SourceIndividual  SubmissionSource = "individual"
	SourceShared      SubmissionSource = "shared"
	SourceResubmitted SubmissionSource = "resubmitted"
)

// Response tracks one assignee's progress on a task. There is exactly one row
// per (task, user); it is created lazily on the first status change and
// updated in place afterwards.
type Response struct {
	ID               string           `yaml:"id"`
	TaskID           string           `yaml:"task_id"`
	UserID           string           `yaml:"user_id"`
	Status           ResponseStatus   `yaml:"status"`
	RespondedAt      time.Time        `yaml:"responded_at"`
	ShiftID          string           `yaml:"shift_id,omitempty"`
	DuringShift      bool             `yaml:"during_shift"`
	VerifiedAt       *time.Time       `yaml:"verified_at,omitempty"`
	VerifiedBy       string           `yaml:"verified_by,omitempty"`
	RejectionReason  string           `yaml:"rejection_reason,omitempty"`
	RejectionCount   int              `yaml:"rejection_count"`
	SubmissionSource SubmissionSource `yaml:"submission_source,omitempty"`
	UsesSharedProofs bool             `yaml:"uses_shared_proofs"`
	CreatedAt        time.Time        `yaml:"created_at"`
	UpdatedAt        time.Time        `yaml:"updated_at"`
}

func (r *Response) clearVerification() {
	r.VerifiedAt = nil
	r.VerifiedBy = ""
}
