package domain

import (
	"fmt"
	"sort"
	"time"
)

// Tier is the discrete trust bucket derived from a fused trust score.
type Tier string

const (
	TierHighlyTrusted Tier = "Highly Trusted"
	TierTrusted       Tier = "Trusted"
	TierWatchlist     Tier = "Watchlist"
	TierHighRisk      Tier = "High Risk"
	TierBanned        Tier = "Banned"
)

// TierBoundary maps a tier to its inclusive lower score bound.
type TierBoundary struct {
	Tier  Tier    `json:"tier"`
	Floor float64 `json:"floor"` // score >= Floor selects this tier
}

// TierTable is an ordered, non-overlapping partition of [0,1]. The lowest
// boundary must have Floor 0 so every score lands in exactly one tier.
type TierTable []TierBoundary

// DefaultTierTable returns the standard five-tier partition.
func DefaultTierTable() TierTable {
	return TierTable{
		{Tier: TierHighlyTrusted, Floor: 0.85},
		{Tier: TierTrusted, Floor: 0.65},
		{Tier: TierWatchlist, Floor: 0.45},
		{Tier: TierHighRisk, Floor: 0.25},
		{Tier: TierBanned, Floor: 0},
	}
}

// Validate checks that the table covers [0,1] without gaps or overlaps.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: tier table is empty", ErrInvalidInput)
	}
	sorted := make(TierTable, len(t))
	copy(sorted, t)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Floor > sorted[j].Floor })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Floor == sorted[i-1].Floor {
			return fmt.Errorf("%w: duplicate tier floor %.4f", ErrInvalidInput, sorted[i].Floor)
		}
	}
	last := sorted[len(sorted)-1]
	if last.Floor != 0 {
		return fmt.Errorf("%w: lowest tier floor must be 0, got %.4f", ErrInvalidInput, last.Floor)
	}
	for _, b := range sorted {
		if b.Floor < 0 || b.Floor > 1 {
			return fmt.Errorf("%w: tier floor %.4f outside [0,1]", ErrInvalidInput, b.Floor)
		}
	}
	return nil
}

// TierFor returns the tier containing score. Boundaries are inclusive at the
// floor: a score of exactly 0.85 is Highly Trusted under the default table.
func (t TierTable) TierFor(score float64) Tier {
	sorted := make(TierTable, len(t))
	copy(sorted, t)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Floor > sorted[j].Floor })
	for _, b := range sorted {
		if score >= b.Floor {
			return b.Tier
		}
	}
	return sorted[len(sorted)-1].Tier
}

// TrustRecord is one fused scoring result for one user in one epoch. Records
// are append-only; exactly one record per user is marked current, and the
// current set is swapped atomically when an epoch publishes.
type TrustRecord struct {
	UserID           string    `json:"userId"`
	EpochID          string    `json:"epochId"`
	FraudProbability float64   `json:"fraudProbability"`
	GraphSignal      float64   `json:"graphSignal"` // max similarity to a high-risk ring center
	TrustScore       float64   `json:"trustScore"`
	Tier             Tier      `json:"tier"`
	ComputedAt       time.Time `json:"computedAt"`
}

// TierSummary is one row of the tier distribution report.
type TierSummary struct {
	Tier       Tier    `json:"tier"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}
