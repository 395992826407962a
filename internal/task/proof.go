package task

import "time"

// Proof is a file evidencing one user's completion, owned by a single
// response. SharedProof is owned by the task itself and stands in for every
// assignee's individual proof when an elevated actor completes on their
// behalf. A response uses one class or the other, never both; the
// UsesSharedProofs flag on the response is the discriminator.
type Proof struct {
	ID          string    `yaml:"id"`
	ResponseID  string    `yaml:"response_id"`
	FileName    string    `yaml:"file_name"`
	ContentType string    `yaml:"content_type"`
	Size        int64     `yaml:"size"`
	StoragePath string    `yaml:"storage_path"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type SharedProof struct {
	ID          string    `yaml:"id"`
	TaskID      string    `yaml:"task_id"`
	FileName    string    `yaml:"file_name"`
	ContentType string    `yaml:"content_type"`
	Size        int64     `yaml:"size"`
	StoragePath string    `yaml:"storage_path"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Upload is an inbound proof file prior to validation and persistence.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}
