package classifier

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/trustlab/kestrel/internal/domain"
)

func leafNode(v float64) node {
	return node{Leaf: &v}
}

func testArtifact(t *testing.T, payload artifactPayload) *domain.ModelArtifact {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return &domain.ModelArtifact{
		Version:       "test-model",
		Kind:          "gbdt",
		SchemaVersion: domain.FeatureSchemaVersion,
		FeatureSchema: domain.FeatureSchema(),
		Payload:       body,
	}
}

func fullVector(userID string) *domain.FeatureVector {
	values := make(map[string]float64)
	for _, name := range domain.FeatureSchema() {
		values[name] = 0
	}
	return &domain.FeatureVector{
		UserID:        userID,
		SchemaVersion: domain.FeatureSchemaVersion,
		Values:        values,
	}
}

func TestLoadValidatesArtifact(t *testing.T) {
	valid := artifactPayload{
		Trees: []tree{{Nodes: []node{
			{Feature: domain.FeatureReturnFrequency, Threshold: 4, Left: 1, Right: 2},
			leafNode(-1),
			leafNode(1),
		}}},
		Calibration: calibration{A: -1, B: 0},
	}

	t.Run("AcceptsValid", func(t *testing.T) {
		model, err := Load(testArtifact(t, valid))
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if model.Version != "test-model" {
			t.Errorf("unexpected version %s", model.Version)
		}
	})

	t.Run("SchemaOrderIsIrrelevant", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		schema := artifact.FeatureSchema
		schema[0], schema[len(schema)-1] = schema[len(schema)-1], schema[0]
		if _, err := Load(artifact); err != nil {
			t.Errorf("shuffled schema should load: %v", err)
		}
	})

	t.Run("RejectsWrongKind", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		artifact.Kind = "linear"
		if _, err := Load(artifact); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("RejectsSchemaVersionMismatch", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		artifact.SchemaVersion = "v0"
		if _, err := Load(artifact); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("RejectsMissingFeature", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		artifact.FeatureSchema = append(artifact.FeatureSchema[:1], artifact.FeatureSchema[2:]...)
		if _, err := Load(artifact); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("RejectsRenamedFeature", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		artifact.FeatureSchema[0] = "credit_score"
		if _, err := Load(artifact); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("RejectsUndeclaredSplitFeature", func(t *testing.T) {
		bad := valid
		bad.Trees = []tree{{Nodes: []node{
			{Feature: "credit_score", Threshold: 4, Left: 1, Right: 2},
			leafNode(-1),
			leafNode(1),
		}}}
		if _, err := Load(testArtifact(t, bad)); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("RejectsOutOfRangeChildren", func(t *testing.T) {
		bad := valid
		bad.Trees = []tree{{Nodes: []node{
			{Feature: domain.FeatureReturnCount, Threshold: 4, Left: 1, Right: 9},
			leafNode(-1),
		}}}
		if _, err := Load(testArtifact(t, bad)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsCyclicTree", func(t *testing.T) {
		// Two splits pointing at each other would loop forever in Score.
		bad := valid
		bad.Trees = []tree{{Nodes: []node{
			{Feature: domain.FeatureReturnCount, Threshold: 1, Left: 1, Right: 1},
			{Feature: domain.FeatureReturnCount, Threshold: 2, Left: 0, Right: 0},
		}}}
		if _, err := Load(testArtifact(t, bad)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsSelfPointingNode", func(t *testing.T) {
		bad := valid
		bad.Trees = []tree{{Nodes: []node{
			{Feature: domain.FeatureReturnCount, Threshold: 1, Left: 0, Right: 1},
			leafNode(1),
		}}}
		if _, err := Load(testArtifact(t, bad)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsEmptyTrees", func(t *testing.T) {
		bad := valid
		bad.Trees = nil
		if _, err := Load(testArtifact(t, bad)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsMalformedPayload", func(t *testing.T) {
		artifact := testArtifact(t, valid)
		artifact.Payload = []byte("not json")
		if _, err := Load(artifact); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RejectsNil", func(t *testing.T) {
		if _, err := Load(nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestScore(t *testing.T) {
	// Two trees: +1.4 when return_frequency >= 4, +1.1 when
	// shared_device_count >= 2; otherwise negative leaves.
	payload := artifactPayload{
		BaseScore: 0,
		Trees: []tree{
			{Nodes: []node{
				{Feature: domain.FeatureReturnFrequency, Threshold: 4, Left: 1, Right: 2},
				leafNode(-1.2),
				leafNode(1.4),
			}},
			{Nodes: []node{
				{Feature: domain.FeatureSharedDeviceCount, Threshold: 2, Left: 1, Right: 2},
				leafNode(-0.8),
				leafNode(1.1),
			}},
		},
		Calibration: calibration{A: -1, B: 0},
	}
	model, err := Load(testArtifact(t, payload))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	sigmoidOf := func(margin float64) float64 {
		return 1 / (1 + math.Exp(-margin))
	}

	t.Run("RiskyUser", func(t *testing.T) {
		fv := fullVector("risky")
		fv.Values[domain.FeatureReturnFrequency] = 8
		fv.Values[domain.FeatureSharedDeviceCount] = 3

		p, err := model.Score(fv)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		want := sigmoidOf(1.4 + 1.1)
		if math.Abs(p-want) > 1e-9 {
			t.Errorf("expected %f, got %f", want, p)
		}
		if p < 0.9 {
			t.Errorf("expected high fraud probability, got %f", p)
		}
	})

	t.Run("CleanUser", func(t *testing.T) {
		p, err := model.Score(fullVector("clean"))
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		want := sigmoidOf(-1.2 - 0.8)
		if math.Abs(p-want) > 1e-9 {
			t.Errorf("expected %f, got %f", want, p)
		}
		if p > 0.2 {
			t.Errorf("expected low fraud probability, got %f", p)
		}
	})

	t.Run("ThresholdIsExclusiveBelow", func(t *testing.T) {
		// A value exactly at the threshold routes right.
		fv := fullVector("edge")
		fv.Values[domain.FeatureReturnFrequency] = 4

		p, err := model.Score(fv)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		want := sigmoidOf(1.4 - 0.8)
		if math.Abs(p-want) > 1e-9 {
			t.Errorf("expected %f, got %f", want, p)
		}
	})

	t.Run("MissingFeatureIsRejected", func(t *testing.T) {
		fv := fullVector("partial")
		delete(fv.Values, domain.FeatureAccountAgeDays)

		if _, err := model.Score(fv); !errors.Is(err, domain.ErrFeatureIncomplete) {
			t.Errorf("expected ErrFeatureIncomplete, got %v", err)
		}
	})

	t.Run("SchemaVersionMismatch", func(t *testing.T) {
		fv := fullVector("stale")
		fv.SchemaVersion = "v0"

		if _, err := model.Score(fv); !errors.Is(err, domain.ErrModelSchemaMismatch) {
			t.Errorf("expected ErrModelSchemaMismatch, got %v", err)
		}
	})

	t.Run("NilVector", func(t *testing.T) {
		if _, err := model.Score(nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCalibrationBounds(t *testing.T) {
	// Extreme calibration still yields probabilities in [0,1].
	payload := artifactPayload{
		BaseScore: 100,
		Trees: []tree{{Nodes: []node{
			leafNode(100),
		}}},
		Calibration: calibration{A: -5, B: 2},
	}
	model, err := Load(testArtifact(t, payload))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	p, err := model.Score(fullVector("extreme"))
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if p < 0 || p > 1 {
		t.Errorf("probability %f outside [0,1]", p)
	}
}
