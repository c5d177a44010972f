package domain

import "time"

// FeatureSchemaVersion is the current feature store schema. Classifier
// artifacts declare the schema they were trained against; a mismatch with
// this version is fatal to the epoch.
const FeatureSchemaVersion = "v1"

// Feature names, in canonical order. The classifier artifact must declare
// exactly this set (order-independent).
const (
	FeatureReturnCount        = "return_count"
	FeatureReturnFrequency    = "return_frequency"
	FeatureAvgReturnValue     = "avg_return_value"
	FeatureMaxReturnValue     = "max_return_value"
	FeatureAccountAgeDays     = "account_age_days"
	FeatureSharedDeviceCount  = "shared_device_count"
	FeatureSharedIPCount      = "shared_ip_count"
	FeatureSharedAddressCount = "shared_address_count"
)

// FeatureSchema returns the canonical ordered feature names.
func FeatureSchema() []string {
	return []string{
		FeatureReturnCount,
		FeatureReturnFrequency,
		FeatureAvgReturnValue,
		FeatureMaxReturnValue,
		FeatureAccountAgeDays,
		FeatureSharedDeviceCount,
		FeatureSharedIPCount,
		FeatureSharedAddressCount,
	}
}

// BehaviorProfile holds the per-user behavioral aggregates supplied by the
// ETL collaborator. The graph-derived sharing counts are NOT part of this
// record; they are joined in at scoring time from the pinned graph snapshot.
type BehaviorProfile struct {
	UserID          string    `json:"userId"`
	CreatedAt       time.Time `json:"createdAt"` // account creation; age derives from this
	ReturnCount     float64   `json:"returnCount"`
	ReturnFrequency float64   `json:"returnFrequency"` // returns per 30 days
	AvgReturnValue  float64   `json:"avgReturnValue"`
	MaxReturnValue  float64   `json:"maxReturnValue"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Validate checks the profile for structural problems.
func (p *BehaviorProfile) Validate() error {
	if p.UserID == "" {
		return wrapMalformed("userId is required")
	}
	if p.CreatedAt.IsZero() {
		return wrapMalformed("createdAt is required")
	}
	if p.ReturnCount < 0 || p.AvgReturnValue < 0 || p.MaxReturnValue < 0 {
		return wrapMalformed("return aggregates must be non-negative")
	}
	return nil
}

// FeatureVector is the complete, fixed-schema input to the classifier for one
// user. Values is keyed by the names in FeatureSchema. A missing key means
// the feature is unavailable; the scorer rejects such vectors rather than
// imputing zeros.
type FeatureVector struct {
	UserID        string             `json:"userId"`
	SchemaVersion string             `json:"schemaVersion"`
	Values        map[string]float64 `json:"values"`
}

// Missing returns the schema features absent from the vector.
func (fv *FeatureVector) Missing() []string {
	var missing []string
	for _, name := range FeatureSchema() {
		if _, ok := fv.Values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
