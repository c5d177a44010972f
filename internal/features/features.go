// Package features assembles classifier feature vectors by joining
// per-user behavioral aggregates with graph-derived sharing counts.
package features

import (
	"fmt"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
)

// Assemble builds the complete feature vector for one user at a point in
// time. The behavioral aggregates come from the user's profile; the
// sharing counts come from the pinned graph snapshot, so every user in an
// epoch is measured against the same graph state.
//
// A nil profile yields a vector with the behavioral features absent, which
// the scorer will reject as FeatureIncomplete. That is deliberate: a user
// seen only in graph events has no return history to score.
func Assemble(userID string, profile *domain.BehaviorProfile, snapshot *graph.Snapshot, now time.Time) *domain.FeatureVector {
	values := make(map[string]float64, 8)

	if profile != nil {
		values[domain.FeatureReturnCount] = profile.ReturnCount
		values[domain.FeatureReturnFrequency] = profile.ReturnFrequency
		values[domain.FeatureAvgReturnValue] = profile.AvgReturnValue
		values[domain.FeatureMaxReturnValue] = profile.MaxReturnValue
		values[domain.FeatureAccountAgeDays] = now.Sub(profile.CreatedAt).Hours() / 24
	}

	shared := snapshot.SharedCounts(userID)
	values[domain.FeatureSharedDeviceCount] = float64(shared[domain.ResourceDevice])
	values[domain.FeatureSharedIPCount] = float64(shared[domain.ResourceIP])
	values[domain.FeatureSharedAddressCount] = float64(shared[domain.ResourceAddress])

	return &domain.FeatureVector{
		UserID:        userID,
		SchemaVersion: domain.FeatureSchemaVersion,
		Values:        values,
	}
}

// Risk factor thresholds for the assessment surface. These mirror the
// heuristics analysts already use when reading a profile by hand.
const (
	highReturnFrequency = 5.0  // returns per 30 days
	highAvgReturnValue  = 200.0
	shortAccountAgeDays = 30.0
	multiSharedDevices  = 2.0
	multiSharedIPs      = 3.0
)

// RiskFactors derives human-readable risk factor strings from a feature
// vector. The derivation is deterministic and model-free; it exists so the
// assessment consumer can explain a score without touching the classifier.
func RiskFactors(fv *domain.FeatureVector) []string {
	var factors []string

	if v, ok := fv.Values[domain.FeatureReturnFrequency]; ok && v >= highReturnFrequency {
		factors = append(factors, "High return frequency")
	}
	if v, ok := fv.Values[domain.FeatureAvgReturnValue]; ok && v >= highAvgReturnValue {
		factors = append(factors, fmt.Sprintf("High average return value ($%.0f)", v))
	}
	if v, ok := fv.Values[domain.FeatureAccountAgeDays]; ok && v >= 0 && v < shortAccountAgeDays {
		factors = append(factors, "Short account age")
	}
	if v, ok := fv.Values[domain.FeatureSharedDeviceCount]; ok && v >= multiSharedDevices {
		factors = append(factors, "Multiple shared devices")
	}
	if v, ok := fv.Values[domain.FeatureSharedIPCount]; ok && v >= multiSharedIPs {
		factors = append(factors, "Multiple shared IP addresses")
	}
	if v, ok := fv.Values[domain.FeatureSharedAddressCount]; ok && v >= 1 {
		factors = append(factors, "Shared physical address")
	}

	return factors
}
