package task

import "time"

type HistoryAction string

const (
	HistorySubmitted   HistoryAction = "submitted"
	HistoryResubmitted HistoryAction = "resubmitted"
	HistoryApproved    HistoryAction = "approved"
	HistoryRejected    HistoryAction = "rejected"
)

// VerificationHistory is an append-only ledger entry describing a verification
// action against a response. Rows are never mutated after insert.
type VerificationHistory struct {
	ID         string         `yaml:"id"`
	TaskID     string         `yaml:"task_id"`
	ResponseID string         `yaml:"response_id"`
	Action     HistoryAction  `yaml:"action"`
	ActorID    string         `yaml:"actor_id"`
	FromStatus ResponseStatus `yaml:"from_status"`
	ToStatus   ResponseStatus `yaml:"to_status"`
	ProofCount int            `yaml:"proof_count"`
	Reason     string         `yaml:"reason,omitempty"`
	CreatedAt  time.Time      `yaml:"created_at"`
}
