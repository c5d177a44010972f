package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
)

// Engine turns a pinned graph snapshot into per-user embedding vectors.
type Engine struct {
	config domain.EmbeddingConfig
}

// Result holds the outcome of one training run. Isolated users have no
// edges in the snapshot and receive no vector; downstream stages must not
// fabricate one for them.
type Result struct {
	Embeddings []*domain.Embedding
	Isolated   []string
}

// NewEngine creates an embedding engine with the given configuration.
func NewEngine(config domain.EmbeddingConfig) *Engine {
	return &Engine{config: config}
}

// Train generates biased walks over the snapshot and fits skip-gram vectors.
// The same snapshot, seed and configuration always produce identical
// vectors: walk generation and SGD both run sequentially off seeded sources.
func (e *Engine) Train(ctx context.Context, snapshot *graph.Snapshot, seed int64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.config.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrInvalidInput)
	}

	start := time.Now()
	result := &Result{}

	users := snapshot.Users()
	for _, u := range users {
		if snapshot.Degree(u) == 0 {
			result.Isolated = append(result.Isolated, u)
		}
	}

	w := newWalker(snapshot, seed,
		e.config.WalksPerNode, e.config.WalkLength,
		e.config.ReturnParam, e.config.ExploreParam)
	corpus := w.corpus()

	if len(corpus) == 0 {
		slog.Info("embedding training skipped, no connected users",
			"graph_version", snapshot.Version,
			"isolated", len(result.Isolated),
		)
		return result, nil
	}

	sg := newSkipGram(corpus,
		e.config.Dimensions, e.config.WindowSize, e.config.NegativeSamples,
		e.config.TrainingEpochs, e.config.LearningRate, seed)
	sg.train(corpus)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, u := range users {
		vec := sg.vector(u)
		if vec == nil {
			continue
		}
		result.Embeddings = append(result.Embeddings, &domain.Embedding{
			UserID:       u,
			ModelVersion: e.config.ModelVersion,
			Vector:       vec,
			Seed:         seed,
			CreatedAt:    now,
		})
	}

	slog.Info("embedding training complete",
		"model_version", e.config.ModelVersion,
		"users", len(result.Embeddings),
		"isolated", len(result.Isolated),
		"walks", len(corpus),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
