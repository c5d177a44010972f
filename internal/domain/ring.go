package domain

import "time"

// RiskLevel classifies a detected ring.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// RingMember is one user clustered around a ring center, annotated with the
// evidence that placed it there. Similarity is measured against the center,
// not against other members.
type RingMember struct {
	UserID          string  `json:"userId"`
	Similarity      float64 `json:"similarity"`
	SharedResources int     `json:"sharedResources"`
}

// Ring is a candidate fraud ring: a center user plus the neighbors whose
// embeddings and shared infrastructure both corroborate collusion. Rings are
// recomputed wholesale each epoch and may overlap; overlap is itself a
// signal and is never collapsed.
type Ring struct {
	ID            string       `json:"id"`
	EpochID       string       `json:"epochId"`
	CenterUserID  string       `json:"centerUserId"`
	Members       []RingMember `json:"members"`
	RiskLevel     RiskLevel    `json:"riskLevel"`
	AvgSimilarity float64      `json:"avgSimilarity"`

	// TotalExposure is the aggregate monetary exposure of center + members
	// (sum of return_count * avg_return_value per user).
	TotalExposure float64 `json:"totalExposure"`

	// Shared-infrastructure corroboration counts across the whole ring.
	SharedDevices   int `json:"sharedDevices"`
	SharedIPs       int `json:"sharedIPs"`
	SharedAddresses int `json:"sharedAddresses"`

	DetectedAt time.Time `json:"detectedAt"`
}

// Size is the member count including the center.
func (r *Ring) Size() int {
	return len(r.Members) + 1
}

// RiskPolicyConfig holds the CEL expressions that classify a ring. The
// expressions see `size`, `exposure` and `avg_similarity`; the first match
// wins, checked High then Medium, defaulting to Low.
type RiskPolicyConfig struct {
	HighExpression   string `json:"highExpression"`
	MediumExpression string `json:"mediumExpression"`
}

// DefaultRiskPolicy mirrors the standard thresholds: five or more members or
// more than $1000 of exposure is High; three members or $500 is Medium.
func DefaultRiskPolicy() RiskPolicyConfig {
	return RiskPolicyConfig{
		HighExpression:   "size >= 5 || exposure > 1000.0",
		MediumExpression: "size >= 3 || exposure > 500.0",
	}
}
