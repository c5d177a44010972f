// Package classifier evaluates a pretrained gradient-boosted tree model
// over per-user feature vectors. Models are trained offline and shipped as
// opaque, versioned JSON artifacts; this package only consumes them.
package classifier

import (
	"encoding/json"
	"fmt"

	"github.com/trustlab/kestrel/internal/domain"
)

// artifactPayload is the wire format of the model artifact body.
type artifactPayload struct {
	BaseScore        float64     `json:"baseScore"`
	Trees            []tree      `json:"trees"`
	Calibration      calibration `json:"calibration"`
	OptimalThreshold float64     `json:"optimalThreshold"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// node is one split or leaf. Leaf nodes set Leaf and ignore the rest;
// split nodes route to Left when the feature value is below Threshold.
// Children must point forward in the node array (topological layout), so
// every root-to-leaf walk terminates.
type node struct {
	Feature   string   `json:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Left      int      `json:"left,omitempty"`
	Right     int      `json:"right,omitempty"`
	Leaf      *float64 `json:"leaf,omitempty"`
}

// calibration holds Platt scaling coefficients fitted offline:
// p = 1 / (1 + exp(a*margin + b)).
type calibration struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Model is a loaded, schema-validated classifier ready for scoring.
type Model struct {
	Version          string
	OptimalThreshold float64

	schema  []string
	payload artifactPayload
}

// Load parses and validates a model artifact against the current feature
// store schema. Any disagreement in schema version, feature count or
// feature names is a ModelSchemaMismatch, which is fatal to an epoch
// rather than silently rescoring against the wrong inputs.
func Load(artifact *domain.ModelArtifact) (*Model, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: nil model artifact", domain.ErrInvalidInput)
	}
	if artifact.Kind != "gbdt" {
		return nil, fmt.Errorf("%w: unsupported model kind %q", domain.ErrModelSchemaMismatch, artifact.Kind)
	}

	if err := validateSchema(artifact); err != nil {
		return nil, err
	}

	var payload artifactPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed model payload: %v", domain.ErrInvalidInput, err)
	}
	if len(payload.Trees) == 0 {
		return nil, fmt.Errorf("%w: model artifact has no trees", domain.ErrInvalidInput)
	}

	for ti, t := range payload.Trees {
		if err := validateTree(t, artifact.FeatureSchema); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
	}

	return &Model{
		Version:          artifact.Version,
		OptimalThreshold: payload.OptimalThreshold,
		schema:           artifact.FeatureSchema,
		payload:          payload,
	}, nil
}

func validateSchema(artifact *domain.ModelArtifact) error {
	if artifact.SchemaVersion != domain.FeatureSchemaVersion {
		return fmt.Errorf("%w: artifact schema version %q, feature store has %q",
			domain.ErrModelSchemaMismatch, artifact.SchemaVersion, domain.FeatureSchemaVersion)
	}

	current := domain.FeatureSchema()
	if len(artifact.FeatureSchema) != len(current) {
		return fmt.Errorf("%w: artifact declares %d features, feature store has %d",
			domain.ErrModelSchemaMismatch, len(artifact.FeatureSchema), len(current))
	}
	declared := make(map[string]bool, len(artifact.FeatureSchema))
	for _, name := range artifact.FeatureSchema {
		declared[name] = true
	}
	for _, name := range current {
		if !declared[name] {
			return fmt.Errorf("%w: artifact does not declare feature %q",
				domain.ErrModelSchemaMismatch, name)
		}
	}
	return nil
}

func validateTree(t tree, schema []string) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", domain.ErrInvalidInput)
	}

	known := make(map[string]bool, len(schema))
	for _, name := range schema {
		known[name] = true
	}

	for i, n := range t.Nodes {
		if n.Leaf != nil {
			continue
		}
		if !known[n.Feature] {
			return fmt.Errorf("%w: split on undeclared feature %q", domain.ErrModelSchemaMismatch, n.Feature)
		}
		if n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has out-of-range children", domain.ErrInvalidInput, i)
		}
		// Children must point forward; a backward or self edge would make
		// the tree walk loop and wedge the scoring fan-out.
		if n.Left <= i || n.Right <= i {
			return fmt.Errorf("%w: node %d has non-forward children", domain.ErrInvalidInput, i)
		}
	}
	return nil
}
