package domain

import "time"

// Embedding is one user's learned vector for a specific model version.
// Vectors from different model versions are never compared; re-embedding
// under a new version invalidates any similarity index built on the old one.
type Embedding struct {
	UserID       string    `json:"userId"`
	ModelVersion string    `json:"modelVersion"`
	Vector       []float32 `json:"vector"`
	Seed         int64     `json:"seed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EmbeddingConfig holds the node2vec parameters for one model version.
// Walk generation is bit-reproducible for a fixed graph snapshot, seed and
// parameter set; the skip-gram training step is also seeded, but its
// determinism additionally depends on single-threaded updates, which the
// trainer reports explicitly rather than assuming.
type EmbeddingConfig struct {
	ModelVersion string `json:"modelVersion"`

	Dimensions   int     `json:"dimensions"` // fixed per model version
	WalksPerNode int     `json:"walksPerNode"`
	WalkLength   int     `json:"walkLength"`
	ReturnParam  float64 `json:"returnParam"`  // p: likelihood of revisiting the previous node
	ExploreParam float64 `json:"exploreParam"` // q: inward/outward bias

	WindowSize      int     `json:"windowSize"`
	NegativeSamples int     `json:"negativeSamples"`
	LearningRate    float64 `json:"learningRate"`
	TrainingEpochs  int     `json:"trainingEpochs"`
}

// DefaultEmbeddingConfig returns the standard v1 configuration.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		ModelVersion:    "node2vec-v1",
		Dimensions:      64,
		WalksPerNode:    10,
		WalkLength:      40,
		ReturnParam:     1.0,
		ExploreParam:    0.5,
		WindowSize:      5,
		NegativeSamples: 5,
		LearningRate:    0.025,
		TrainingEpochs:  3,
	}
}
