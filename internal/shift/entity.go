package shift

import "time"

// Shift is a user's working interval. The engine consults it in two places:
// the open-shift gate on task completion, and the post-shift archival sweep.
// ArchiveProcessed marks shifts the sweep has already consumed so a shift
// never triggers archival twice.
type Shift struct {
	ID               string     `yaml:"id"`
	UserID           string     `yaml:"user_id"`
	DealershipID     string     `yaml:"dealership_id,omitempty"`
	OpenedAt         time.Time  `yaml:"opened_at"`
	ClosedAt         *time.Time `yaml:"closed_at,omitempty"`
	ArchiveProcessed bool       `yaml:"archive_processed"`
}

func (s *Shift) Open() bool {
	return s.ClosedAt == nil
}
