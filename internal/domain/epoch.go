package domain

import "time"

// EpochStatus tracks the lifecycle of one pipeline run.
type EpochStatus string

const (
	EpochRunning   EpochStatus = "running"
	EpochPublished EpochStatus = "published"
	EpochFailed    EpochStatus = "failed"
	EpochAborted   EpochStatus = "aborted"
)

// Epoch is one full run of the scoring pipeline over a pinned graph snapshot.
// Only a published epoch's trust records are visible to consumers; a failed
// or aborted epoch leaves the previously published records authoritative.
type Epoch struct {
	ID           string      `json:"id"`
	Status       EpochStatus `json:"status"`
	GraphVersion int64       `json:"graphVersion"`
	ModelVersion string      `json:"modelVersion"`
	Seed         int64       `json:"seed"`
	StartedAt    time.Time   `json:"startedAt"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`

	UsersScored   int `json:"usersScored"`
	RingsDetected int `json:"ringsDetected"`

	Exceptions ExceptionsReport `json:"exceptions"`

	// Error holds the fatal condition for failed epochs.
	Error string `json:"error,omitempty"`
}

// ExceptionsReport aggregates the per-user failures isolated during an epoch.
// These users still get a trust record where the contract allows it
// (EmbeddingUnavailable fuses with a zero graph signal); FeatureIncomplete
// users are skipped entirely and listed here.
type ExceptionsReport struct {
	FeatureIncomplete    []string `json:"featureIncomplete,omitempty"`
	EmbeddingUnavailable []string `json:"embeddingUnavailable,omitempty"`
}

// Count returns the total number of users in the report.
func (r *ExceptionsReport) Count() int {
	return len(r.FeatureIncomplete) + len(r.EmbeddingUnavailable)
}
