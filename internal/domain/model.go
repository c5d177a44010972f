package domain

import "time"

// ModelArtifact is a versioned, opaque trained-classifier artifact. The
// payload format is owned by the classifier package; the domain only tracks
// identity, the declared feature schema, and activation state.
type ModelArtifact struct {
	Version       string    `json:"version"`
	Kind          string    `json:"kind"` // "gbdt"
	FeatureSchema []string  `json:"featureSchema"`
	SchemaVersion string    `json:"schemaVersion"`
	Payload       []byte    `json:"-"`
	Active        bool      `json:"active"`
	UploadedAt    time.Time `json:"uploadedAt"`
}
