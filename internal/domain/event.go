package domain

import (
	"time"
)

// ResourceType identifies the kind of shared infrastructure a user touched.
type ResourceType string

const (
	ResourceDevice  ResourceType = "device"
	ResourceIP      ResourceType = "ip"
	ResourceAddress ResourceType = "address"
)

// ValidResourceType reports whether t is one of the known resource kinds.
func ValidResourceType(t ResourceType) bool {
	switch t {
	case ResourceDevice, ResourceIP, ResourceAddress:
		return true
	}
	return false
}

// BehaviorEvent is a single observation of a user using a shared resource.
// Events arrive from the ETL collaborator in batches via POST /events.
type BehaviorEvent struct {
	UserID       string       `json:"userId"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Validate checks the event for structural problems. A non-nil error wraps
// ErrMalformedInput and names the offending field.
func (e *BehaviorEvent) Validate() error {
	if e.UserID == "" {
		return wrapMalformed("userId is required")
	}
	if e.ResourceID == "" {
		return wrapMalformed("resourceId is required")
	}
	if !ValidResourceType(e.ResourceType) {
		return wrapMalformed("unknown resourceType %q", string(e.ResourceType))
	}
	if e.Timestamp.IsZero() || e.Timestamp.Unix() < 0 {
		return wrapMalformed("timestamp is missing or negative")
	}
	return nil
}

// Resource is a piece of shared infrastructure. Immutable once observed.
type Resource struct {
	ID        string       `json:"id"`
	Type      ResourceType `json:"type"`
	FirstSeen time.Time    `json:"firstSeen"`
}

// AssociationEdge links a user to a resource they used. Edges are append-only:
// occurrence counts only grow and the first-seen timestamp never changes.
type AssociationEdge struct {
	UserID       string       `json:"userId"`
	ResourceID   string       `json:"resourceId"`
	ResourceType ResourceType `json:"resourceType"`
	FirstSeen    time.Time    `json:"firstSeen"`
	Occurrences  int64        `json:"occurrences"`
}

// RejectedEvent records one malformed event from an ingestion batch.
type RejectedEvent struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestReport summarizes the outcome of one ingestion batch. A batch never
// fails wholesale: bad records are listed here and the rest are committed.
type IngestReport struct {
	Accepted     int             `json:"accepted"`
	Rejected     []RejectedEvent `json:"rejected,omitempty"`
	GraphVersion int64           `json:"graphVersion"`
}
