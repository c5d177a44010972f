package assessment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "assessment-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func publishRecord(t *testing.T, repo domain.Repository, record *domain.TrustRecord) {
	t.Helper()
	ctx := context.Background()

	epoch := &domain.Epoch{
		ID:           record.EpochID,
		Status:       domain.EpochRunning,
		GraphVersion: 1,
		ModelVersion: "assess-test-v1",
		Seed:         42,
		StartedAt:    record.ComputedAt,
	}
	if err := repo.SaveEpoch(ctx, epoch); err != nil {
		t.Fatalf("failed to save epoch: %v", err)
	}
	if err := repo.SaveTrustRecords(ctx, []*domain.TrustRecord{record}); err != nil {
		t.Fatalf("failed to stage record: %v", err)
	}
	epoch.UsersScored = 1
	if err := repo.PublishEpoch(ctx, epoch); err != nil {
		t.Fatalf("failed to publish epoch: %v", err)
	}
}

func TestAssess(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

	profile := &domain.BehaviorProfile{
		UserID:          "u1",
		CreatedAt:       now.AddDate(-1, 0, 0),
		ReturnCount:     2,
		ReturnFrequency: 0.5,
		AvgReturnValue:  40,
		MaxReturnValue:  90,
	}
	if err := repo.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("failed to save profile: %v", err)
	}

	record := &domain.TrustRecord{
		UserID:           "u1",
		EpochID:          "epoch-assess-1",
		FraudProbability: 0.2,
		GraphSignal:      0,
		TrustScore:       0.48,
		Tier:             domain.TierWatchlist,
		ComputedAt:       now,
	}
	publishRecord(t, repo, record)

	orch := NewOrchestrator(repo, nil)

	handoff, err := orch.Assess(ctx, "u1")
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if handoff.UserID != "u1" || handoff.TrustScore != 0.48 || handoff.Tier != domain.TierWatchlist {
		t.Errorf("score fields not carried from record: %+v", handoff)
	}
	if !handoff.ComputedAt.Equal(now) {
		t.Errorf("expected computed_at %v, got %v", now, handoff.ComputedAt)
	}
	if missing := handoff.FeatureVector.Missing(); len(missing) != 0 {
		t.Fatalf("expected complete vector, missing %v", missing)
	}
	if got := handoff.FeatureVector.Values[domain.FeatureReturnFrequency]; got != 0.5 {
		t.Errorf("expected return frequency 0.5, got %f", got)
	}
	if len(handoff.RiskFactors) != 0 {
		t.Errorf("expected no factors for a quiet profile, got %v", handoff.RiskFactors)
	}
}

func TestAssessVectorTracksLiveStateScoreStaysPinned(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	profile := &domain.BehaviorProfile{
		UserID:          "u1",
		CreatedAt:       now.AddDate(-1, 0, 0),
		ReturnCount:     2,
		ReturnFrequency: 0.5,
		AvgReturnValue:  40,
		MaxReturnValue:  90,
	}
	if err := repo.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("failed to save profile: %v", err)
	}

	computedAt := now.Add(-6 * time.Hour)
	publishRecord(t, repo, &domain.TrustRecord{
		UserID:           "u1",
		EpochID:          "epoch-assess-2",
		FraudProbability: 0.1,
		GraphSignal:      0,
		TrustScore:       0.54,
		Tier:             domain.TierWatchlist,
		ComputedAt:       computedAt,
	})

	orch := NewOrchestrator(repo, nil)

	// The profile turns hot after the epoch published. The vector and
	// factors follow the live state; the score stays pinned to the epoch
	// until the next recompute.
	profile.ReturnFrequency = 6
	profile.AvgReturnValue = 250
	if err := repo.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("failed to update profile: %v", err)
	}

	handoff, err := orch.Assess(ctx, "u1")
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if handoff.TrustScore != 0.54 || handoff.Tier != domain.TierWatchlist {
		t.Errorf("score should stay pinned to the published epoch: %+v", handoff)
	}
	if !handoff.ComputedAt.Equal(computedAt) {
		t.Errorf("computed_at should date the published score, got %v", handoff.ComputedAt)
	}
	if got := handoff.FeatureVector.Values[domain.FeatureReturnFrequency]; got != 6 {
		t.Errorf("expected live return frequency 6, got %f", got)
	}
	if len(handoff.RiskFactors) == 0 {
		t.Error("expected factors for the hot live profile")
	}
}

func TestAssessUnknownUser(t *testing.T) {
	repo := newTestRepo(t)
	orch := NewOrchestrator(repo, nil)

	if _, err := orch.Assess(context.Background(), "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
