package classifier

import (
	"fmt"
	"math"

	"github.com/trustlab/kestrel/internal/domain"
)

// Score evaluates the model over one feature vector and returns a
// calibrated fraud probability in [0,1].
//
// Missing features fail the call with FeatureIncomplete instead of being
// imputed as zero. Zero imputation would read a brand-new account as "zero
// returns, zero shared devices" and systematically push fraudulent new
// accounts toward low probabilities.
func (m *Model) Score(features *domain.FeatureVector) (float64, error) {
	if features == nil {
		return 0, fmt.Errorf("%w: nil feature vector", domain.ErrInvalidInput)
	}
	if features.SchemaVersion != domain.FeatureSchemaVersion {
		return 0, fmt.Errorf("%w: feature vector schema %q, model expects %q",
			domain.ErrModelSchemaMismatch, features.SchemaVersion, domain.FeatureSchemaVersion)
	}
	if missing := features.Missing(); len(missing) > 0 {
		return 0, fmt.Errorf("%w: user %s missing features %v",
			domain.ErrFeatureIncomplete, features.UserID, missing)
	}

	margin := m.payload.BaseScore
	for _, t := range m.payload.Trees {
		margin += evalTree(t, features.Values)
	}

	return m.calibrate(margin), nil
}

// evalTree walks from the root to a leaf. Load guarantees children point
// forward in the node array, so the walk always terminates.
func evalTree(t tree, values map[string]float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		if values[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// calibrate applies Platt scaling to the raw boosting margin.
func (m *Model) calibrate(margin float64) float64 {
	p := 1.0 / (1.0 + math.Exp(m.payload.Calibration.A*margin+m.payload.Calibration.B))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
