// Package fusion combines the classifier probability and the graph
// similarity signal into a single trust score and tier.
package fusion

import (
	"fmt"
	"math"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
)

// Fuser computes trust scores. It holds only validated configuration, so
// fusing is pure and idempotent: identical inputs always produce an
// identical score and tier.
type Fuser struct {
	config domain.FusionConfig
}

// NewFuser validates the fusion weights and tier table up front so a
// misconfigured deployment fails at startup, not mid-epoch.
func NewFuser(cfg domain.FusionConfig) (*Fuser, error) {
	if cfg.FraudWeight < 0 || cfg.GraphWeight < 0 {
		return nil, fmt.Errorf("%w: fusion weights must be non-negative", domain.ErrInvalidInput)
	}
	if math.Abs(cfg.FraudWeight+cfg.GraphWeight-1.0) > 1e-9 {
		return nil, fmt.Errorf("%w: fusion weights must sum to 1, got %.4f",
			domain.ErrInvalidInput, cfg.FraudWeight+cfg.GraphWeight)
	}
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, err
	}
	return &Fuser{config: cfg}, nil
}

// Fuse computes trust = 1 - (wf*p + wg*(1-g)) where p is the fraud
// probability and g the graph similarity signal, then maps the score onto
// the tier table. Both inputs must already be in [0,1].
func (f *Fuser) Fuse(fraudProbability, graphSignal float64) (float64, domain.Tier, error) {
	if fraudProbability < 0 || fraudProbability > 1 {
		return 0, "", fmt.Errorf("%w: fraud probability %.4f outside [0,1]",
			domain.ErrInvalidInput, fraudProbability)
	}
	if graphSignal < 0 || graphSignal > 1 {
		return 0, "", fmt.Errorf("%w: graph signal %.4f outside [0,1]",
			domain.ErrInvalidInput, graphSignal)
	}

	score := 1 - (f.config.FraudWeight*fraudProbability + f.config.GraphWeight*(1-graphSignal))
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, f.config.Tiers.TierFor(score), nil
}

// Record builds a full trust record for one user in one epoch.
func (f *Fuser) Record(userID, epochID string, fraudProbability, graphSignal float64, at time.Time) (*domain.TrustRecord, error) {
	score, tier, err := f.Fuse(fraudProbability, graphSignal)
	if err != nil {
		return nil, fmt.Errorf("fusing user %s: %w", userID, err)
	}
	return &domain.TrustRecord{
		UserID:           userID,
		EpochID:          epochID,
		FraudProbability: fraudProbability,
		GraphSignal:      graphSignal,
		TrustScore:       score,
		Tier:             tier,
		ComputedAt:       at,
	}, nil
}

// GraphSignal derives a user's graph similarity signal from one epoch's
// ring set: the maximum similarity to any High-risk ring center, or zero
// when the user sits in no High-risk ring. Ring centers themselves carry
// their ring's average similarity.
func GraphSignal(userID string, rings []*domain.Ring) float64 {
	signal := 0.0
	for _, ring := range rings {
		if ring.RiskLevel != domain.RiskHigh {
			continue
		}
		if ring.CenterUserID == userID && ring.AvgSimilarity > signal {
			signal = ring.AvgSimilarity
		}
		for _, m := range ring.Members {
			if m.UserID == userID && m.Similarity > signal {
				signal = m.Similarity
			}
		}
	}
	if signal > 1 {
		signal = 1
	}
	return signal
}
