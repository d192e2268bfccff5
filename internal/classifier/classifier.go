// Package classifier runs credibility models over feature vectors.
package classifier

import (
	"context"
	"fmt"

	"github.com/example/ml-gateway/internal/features"
)

// Verdict labels reported per model.
const (
	Credible    = "Credible"
	NotCredible = "Not Credible"
)

// Classifier is a trained binary model. Predict returns the predicted class
// label; 1 marks the positive ("not credible") class.
type Classifier interface {
	Predict(ctx context.Context, vec features.FeatureVector) (int, error)
}

// VerdictFor maps a class label to its verdict.
func VerdictFor(label int) string {
	if label == 1 {
		return NotCredible
	}
	return Credible
}

// DimensionError reports a model fed a vector of the wrong length.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: model expects %d, got %d", e.Want, e.Got)
}
