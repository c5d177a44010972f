// Package assessment exposes the handoff contract consumed by the
// downstream narrative-assessment service. Consumers get scores, ring
// membership and the raw feature vector; they never touch the graph or
// the similarity index directly.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/features"
	"github.com/trustlab/kestrel/internal/graph"
)

// Handoff is the complete assessment payload for one user.
//
// Score, tier and ring membership come from the last published epoch;
// ComputedAt dates them. The feature vector and risk factors are assembled
// from the live graph and profile at request time, so they describe the
// user's current state and can run ahead of the score when events or
// profile updates arrive between epochs.
type Handoff struct {
	UserID           string                `json:"user_id"`
	TrustScore       float64               `json:"trust_score"`
	Tier             domain.Tier           `json:"tier"`
	FraudProbability float64               `json:"fraud_probability"`
	RingIDs          []string              `json:"ring_ids"`
	FeatureVector    *domain.FeatureVector `json:"feature_vector"`
	RiskFactors      []string              `json:"risk_factors"`
	ComputedAt       time.Time             `json:"computed_at"`
}

// Orchestrator assembles handoff payloads from published epoch output.
type Orchestrator struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewOrchestrator creates an orchestrator. The cache is optional.
func NewOrchestrator(repo domain.Repository, cache domain.Cache) *Orchestrator {
	return &Orchestrator{repo: repo, cache: cache}
}

// Assess builds the handoff payload for one user from the current trust
// record, the current epoch's rings and a freshly assembled feature
// vector (see the staleness note on Handoff). Users with no published
// record return ErrNotFound.
func (o *Orchestrator) Assess(ctx context.Context, userID string) (*Handoff, error) {
	record, err := o.currentRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	ringIDs, err := o.ringMembership(ctx, userID)
	if err != nil {
		return nil, err
	}

	fv, err := o.featureVector(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Handoff{
		UserID:           userID,
		TrustScore:       record.TrustScore,
		Tier:             record.Tier,
		FraudProbability: record.FraudProbability,
		RingIDs:          ringIDs,
		FeatureVector:    fv,
		RiskFactors:      features.RiskFactors(fv),
		ComputedAt:       record.ComputedAt,
	}, nil
}

func (o *Orchestrator) currentRecord(ctx context.Context, userID string) (*domain.TrustRecord, error) {
	if o.cache != nil {
		if record, err := o.cache.GetTrustRecord(ctx, userID); err == nil && record != nil {
			return record, nil
		}
	}

	record, err := o.repo.GetCurrentTrustRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		if err := o.cache.SetTrustRecord(ctx, userID, record, 0); err != nil {
			return record, nil
		}
	}
	return record, nil
}

func (o *Orchestrator) ringMembership(ctx context.Context, userID string) ([]string, error) {
	epoch, err := o.repo.CurrentEpoch(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current epoch: %w", err)
	}

	rings, err := o.repo.ListRings(ctx, epoch.ID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list rings: %w", err)
	}

	var ids []string
	for _, ring := range rings {
		if ring.CenterUserID == userID {
			ids = append(ids, ring.ID)
			continue
		}
		for _, m := range ring.Members {
			if m.UserID == userID {
				ids = append(ids, ring.ID)
				break
			}
		}
	}
	return ids, nil
}

func (o *Orchestrator) featureVector(ctx context.Context, userID string) (*domain.FeatureVector, error) {
	profile, err := o.repo.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	snapshot, err := graph.Load(ctx, o.repo)
	if err != nil {
		return nil, err
	}

	return features.Assemble(userID, profile, snapshot, time.Now().UTC()), nil
}
