// Package pipeline runs scoring epochs: snapshot pinning, embedding,
// ring detection, per-user scoring fan-out and the atomic publish.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trustlab/kestrel/internal/classifier"
	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/embedding"
	"github.com/trustlab/kestrel/internal/features"
	"github.com/trustlab/kestrel/internal/fusion"
	"github.com/trustlab/kestrel/internal/graph"
	"github.com/trustlab/kestrel/internal/index"
)

// ErrEpochInProgress is returned when a run is requested while another
// epoch is still executing. Epochs never overlap.
var ErrEpochInProgress = errors.New("an epoch is already in progress")

// Runner executes one scoring epoch at a time. A failed or aborted epoch
// never calls PublishEpoch, so the previously published trust records stay
// authoritative throughout.
type Runner struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	config domain.PipelineConfig

	embedder *embedding.Engine
	fuser    *fusion.Fuser
	policy   *index.RiskPolicy
	tracer   trace.Tracer

	running atomic.Bool
}

// NewRunner validates the pipeline configuration and compiles the risk
// policy so bad expressions or weights surface at startup.
func NewRunner(repo domain.Repository, cache domain.Cache, bus domain.EventBus, cfg domain.PipelineConfig) (*Runner, error) {
	fuser, err := fusion.NewFuser(cfg.Fusion)
	if err != nil {
		return nil, err
	}
	policy, err := index.NewRiskPolicy(cfg.Detection.RiskPolicy)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	return &Runner{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		config:   cfg,
		embedder: embedding.NewEngine(cfg.Embedding),
		fuser:    fuser,
		policy:   policy,
		tracer:   otel.Tracer("kestrel/pipeline"),
	}, nil
}

// Run executes a full scoring epoch. Per-user problems land in the epoch's
// exceptions report; anything pipeline-wide fails the epoch.
func (r *Runner) Run(ctx context.Context) (*domain.Epoch, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrEpochInProgress
	}
	defer r.running.Store(false)

	ctx, span := r.tracer.Start(ctx, "pipeline.epoch")
	defer span.End()

	seed := r.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	epoch := &domain.Epoch{
		ID:        uuid.New().String(),
		Status:    domain.EpochRunning,
		Seed:      seed,
		StartedAt: time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("epoch.id", epoch.ID))

	slog.Info("epoch started", "epoch_id", epoch.ID, "seed", seed)

	artifact, err := r.repo.ActiveModelArtifact(ctx)
	if err != nil {
		return r.fail(ctx, epoch, fmt.Errorf("no active classifier artifact: %w", err))
	}
	model, err := classifier.Load(artifact)
	if err != nil {
		return r.fail(ctx, epoch, fmt.Errorf("loading classifier artifact: %w", err))
	}
	epoch.ModelVersion = model.Version

	if err := r.repo.SaveEpoch(ctx, epoch); err != nil {
		return nil, fmt.Errorf("failed to save epoch: %w", err)
	}

	snapshot, err := graph.Load(ctx, r.repo)
	if err != nil {
		return r.fail(ctx, epoch, err)
	}
	epoch.GraphVersion = snapshot.Version

	profiles, err := r.loadProfiles(ctx)
	if err != nil {
		return r.fail(ctx, epoch, err)
	}

	trained, err := r.trainEmbeddings(ctx, snapshot, seed)
	if err != nil {
		return r.fail(ctx, epoch, err)
	}

	idx, detection, err := r.detectRings(ctx, epoch, snapshot, trained, profiles, seed)
	if err != nil {
		return r.fail(ctx, epoch, err)
	}

	records, err := r.scoreUsers(ctx, epoch, model, snapshot, idx, detection, profiles)
	if err != nil {
		return r.fail(ctx, epoch, err)
	}

	if err := r.publish(ctx, epoch, records, detection.Rings); err != nil {
		return r.fail(ctx, epoch, err)
	}

	slog.Info("epoch published",
		"epoch_id", epoch.ID,
		"graph_version", epoch.GraphVersion,
		"model_version", epoch.ModelVersion,
		"users_scored", epoch.UsersScored,
		"rings", epoch.RingsDetected,
		"exceptions", epoch.Exceptions.Count(),
	)

	return epoch, nil
}

func (r *Runner) loadProfiles(ctx context.Context) (map[string]*domain.BehaviorProfile, error) {
	list, err := r.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list behavior profiles: %w", err)
	}
	profiles := make(map[string]*domain.BehaviorProfile, len(list))
	for _, p := range list {
		profiles[p.UserID] = p
	}
	return profiles, nil
}

func (r *Runner) trainEmbeddings(ctx context.Context, snapshot *graph.Snapshot, seed int64) (*embedding.Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.embed")
	defer span.End()

	trained, err := r.embedder.Train(ctx, snapshot, seed)
	if err != nil {
		return nil, err
	}
	if len(trained.Embeddings) > 0 {
		if err := r.repo.SaveEmbeddings(ctx, trained.Embeddings); err != nil {
			return nil, fmt.Errorf("failed to save embeddings: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("embeddings", len(trained.Embeddings)))
	return trained, nil
}

func (r *Runner) detectRings(ctx context.Context, epoch *domain.Epoch, snapshot *graph.Snapshot, trained *embedding.Result, profiles map[string]*domain.BehaviorProfile, seed int64) (*index.Index, *index.Detection, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.detect")
	defer span.End()

	idx, err := index.Build(trained.Embeddings, r.config.Index, seed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build similarity index: %w", err)
	}

	detector := index.NewDetector(idx, snapshot, r.policy, r.config.Detection, r.config.Index.K)
	detection, err := detector.Detect(ctx, epoch.ID, profiles)
	if err != nil {
		return nil, nil, err
	}

	if err := r.repo.SaveRings(ctx, epoch.ID, detection.Rings); err != nil {
		return nil, nil, fmt.Errorf("failed to save rings: %w", err)
	}

	epoch.RingsDetected = len(detection.Rings)
	span.SetAttributes(attribute.Int("rings", len(detection.Rings)))
	return idx, detection, nil
}

// scoreUsers fans the per-user work out over a bounded worker pool. Users
// are independent: each reads the shared snapshot, index and ring set and
// produces one record. The wait is the barrier before fusion output is
// persisted.
func (r *Runner) scoreUsers(ctx context.Context, epoch *domain.Epoch, model *classifier.Model, snapshot *graph.Snapshot, idx *index.Index, detection *index.Detection, profiles map[string]*domain.BehaviorProfile) ([]*domain.TrustRecord, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.score")
	defer span.End()

	users := scoringUniverse(snapshot, profiles)
	now := time.Now().UTC()

	var (
		mu       sync.Mutex
		records  []*domain.TrustRecord
		fatalErr error
	)

	sem := make(chan struct{}, r.config.Workers)
	var wg sync.WaitGroup

	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fv := features.Assemble(userID, profiles[userID], snapshot, now)

			p, err := model.Score(fv)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, domain.ErrFeatureIncomplete):
					epoch.Exceptions.FeatureIncomplete = append(epoch.Exceptions.FeatureIncomplete, userID)
				case fatalErr == nil:
					fatalErr = fmt.Errorf("scoring user %s: %w", userID, err)
				}
				return
			}

			g := fusion.GraphSignal(userID, detection.Rings)

			record, err := r.fuser.Record(userID, epoch.ID, p, g, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatalErr == nil {
					fatalErr = err
				}
				return
			}
			if !idx.Has(userID) {
				epoch.Exceptions.EmbeddingUnavailable = append(epoch.Exceptions.EmbeddingUnavailable, userID)
			}
			records = append(records, record)
		}(userID)
	}

	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Strings(epoch.Exceptions.FeatureIncomplete)
	sort.Strings(epoch.Exceptions.EmbeddingUnavailable)
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })

	epoch.UsersScored = len(records)
	span.SetAttributes(
		attribute.Int("users_scored", len(records)),
		attribute.Int("exceptions", epoch.Exceptions.Count()),
	)
	return records, nil
}

// publish persists the epoch's output and swaps the current record set in
// one repository transaction, then refreshes the cache and announces the
// epoch on the bus.
func (r *Runner) publish(ctx context.Context, epoch *domain.Epoch, records []*domain.TrustRecord, rings []*domain.Ring) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.publish")
	defer span.End()

	if err := r.repo.SaveTrustRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to save trust records: %w", err)
	}

	completed := time.Now().UTC()
	epoch.CompletedAt = &completed
	epoch.Status = domain.EpochPublished

	if err := r.repo.PublishEpoch(ctx, epoch); err != nil {
		return fmt.Errorf("failed to publish epoch: %w", err)
	}

	if r.cache != nil {
		for _, record := range records {
			if err := r.cache.SetTrustRecord(ctx, record.UserID, record, 0); err != nil {
				slog.Warn("failed to refresh cached trust record",
					"user_id", record.UserID, "error", err)
				break
			}
		}
	}

	r.announce(ctx, epoch, rings)
	return nil
}

func (r *Runner) announce(ctx context.Context, epoch *domain.Epoch, rings []*domain.Ring) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(epoch)
	if err == nil {
		if err := r.bus.Publish(ctx, domain.TopicEpochPublished, payload); err != nil {
			slog.Warn("failed to publish epoch event", "error", err)
		}
	}

	for _, ring := range rings {
		if ring.RiskLevel != domain.RiskHigh {
			continue
		}
		alert, err := json.Marshal(ring)
		if err != nil {
			continue
		}
		if err := r.bus.Publish(ctx, domain.TopicRingAlert, alert); err != nil {
			slog.Warn("failed to publish ring alert", "ring_id", ring.ID, "error", err)
			break
		}
	}
}

// fail records a fatal epoch outcome. Published records from previous
// epochs are untouched; only the epoch row itself is updated.
func (r *Runner) fail(ctx context.Context, epoch *domain.Epoch, cause error) (*domain.Epoch, error) {
	if errors.Is(cause, context.Canceled) {
		epoch.Status = domain.EpochAborted
	} else {
		epoch.Status = domain.EpochFailed
	}
	epoch.Error = cause.Error()
	completed := time.Now().UTC()
	epoch.CompletedAt = &completed

	// Save with a fresh context so cancellation does not lose the record.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.repo.SaveEpoch(saveCtx, epoch); err != nil {
		slog.Error("failed to record epoch failure", "epoch_id", epoch.ID, "error", err)
	}

	if r.bus != nil {
		if payload, err := json.Marshal(epoch); err == nil {
			if err := r.bus.Publish(saveCtx, domain.TopicEpochFailed, payload); err != nil {
				slog.Warn("failed to publish epoch failure event", "error", err)
			}
		}
	}

	slog.Error("epoch failed", "epoch_id", epoch.ID, "status", epoch.Status, "error", cause)
	return epoch, cause
}

// scoringUniverse is every user visible to this epoch: graph users plus
// profile-only users that have no events yet.
func scoringUniverse(snapshot *graph.Snapshot, profiles map[string]*domain.BehaviorProfile) []string {
	seen := make(map[string]bool)
	var users []string
	for _, u := range snapshot.Users() {
		seen[u] = true
		users = append(users, u)
	}
	for u := range profiles {
		if !seen[u] {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}
