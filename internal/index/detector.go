package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
)

// Detector clusters similar users into candidate fraud rings. Similarity
// alone is not enough for membership: each neighbor must also share at
// least MinSharedResources graph resources with the center, so embedding
// noise cannot produce a ring on its own.
type Detector struct {
	index    *Index
	snapshot *graph.Snapshot
	policy   *RiskPolicy
	config   domain.DetectionConfig
	k        int
}

// Detection is the result of one full ring detection pass. Excluded lists
// users that had no embedding and therefore never appear in any ring.
type Detection struct {
	Rings    []*domain.Ring
	Excluded []string
}

// NewDetector wires a detector over a built index and the snapshot the
// index's embeddings were trained from.
func NewDetector(idx *Index, snapshot *graph.Snapshot, policy *RiskPolicy, cfg domain.DetectionConfig, k int) *Detector {
	if k <= 0 {
		k = 10
	}
	return &Detector{index: idx, snapshot: snapshot, policy: policy, config: cfg, k: k}
}

// Detect runs one detection pass over every user in the snapshot. Each
// user with at least one qualifying neighbor becomes the center of its own
// ring; overlapping membership across rings is preserved, never collapsed.
// Profiles supply the per-user monetary exposure.
func (d *Detector) Detect(ctx context.Context, epochID string, profiles map[string]*domain.BehaviorProfile) (*Detection, error) {
	start := time.Now()
	result := &Detection{}
	now := time.Now().UTC()

	for _, center := range d.snapshot.Users() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !d.index.Has(center) {
			result.Excluded = append(result.Excluded, center)
			continue
		}

		ring, err := d.detectOne(epochID, center, profiles, now)
		if err != nil {
			return nil, fmt.Errorf("ring detection for user %s: %w", center, err)
		}
		if ring != nil {
			result.Rings = append(result.Rings, ring)
		}
	}

	slog.Info("ring detection complete",
		"epoch_id", epochID,
		"rings", len(result.Rings),
		"excluded", len(result.Excluded),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (d *Detector) detectOne(epochID, center string, profiles map[string]*domain.BehaviorProfile, now time.Time) (*domain.Ring, error) {
	neighbors, err := d.index.Query(center, d.k)
	if err != nil {
		return nil, err
	}

	var members []domain.RingMember
	simSum := 0.0
	for _, n := range neighbors {
		if n.Similarity < d.config.MinSimilarity {
			break // descending order, nothing further qualifies
		}
		shared := d.snapshot.SharedResources(center, n.UserID)
		if shared < d.config.MinSharedResources {
			continue
		}
		members = append(members, domain.RingMember{
			UserID:          n.UserID,
			Similarity:      n.Similarity,
			SharedResources: shared,
		})
		simSum += n.Similarity
	}

	if len(members) == 0 {
		return nil, nil
	}

	ringUsers := make([]string, 0, len(members)+1)
	ringUsers = append(ringUsers, center)
	exposure := userExposure(profiles, center)
	for _, m := range members {
		ringUsers = append(ringUsers, m.UserID)
		exposure += userExposure(profiles, m.UserID)
	}

	shared := d.snapshot.SharedByType(ringUsers)

	ring := &domain.Ring{
		ID:              uuid.New().String(),
		EpochID:         epochID,
		CenterUserID:    center,
		Members:         members,
		AvgSimilarity:   simSum / float64(len(members)),
		TotalExposure:   exposure,
		SharedDevices:   shared[domain.ResourceDevice],
		SharedIPs:       shared[domain.ResourceIP],
		SharedAddresses: shared[domain.ResourceAddress],
		DetectedAt:      now,
	}

	level, err := d.policy.Classify(RingStats{
		Size:          ring.Size(),
		Exposure:      ring.TotalExposure,
		AvgSimilarity: ring.AvgSimilarity,
	})
	if err != nil {
		return nil, err
	}
	ring.RiskLevel = level

	return ring, nil
}

// userExposure is the total value a user has pushed through returns.
func userExposure(profiles map[string]*domain.BehaviorProfile, userID string) float64 {
	p, ok := profiles[userID]
	if !ok {
		return 0
	}
	return float64(p.ReturnCount) * p.AvgReturnValue
}
