package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ml-gateway/internal/features"
)

// Linear is a linear decision function, as fitted by logistic regression or
// a linear SVM: class 1 when coef·x + intercept > 0.
type Linear struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Classes   []int     `json:"classes"`
}

func (m *Linear) validate() error {
	if len(m.Coef) == 0 {
		return errors.New("linear model has no coefficients")
	}
	if len(m.Classes) == 0 {
		m.Classes = []int{0, 1}
	}
	if len(m.Classes) != 2 {
		return fmt.Errorf("linear model must be binary, got classes %v", m.Classes)
	}
	return nil
}

// Decision returns the signed distance of vec from the separating hyperplane.
func (m *Linear) Decision(vec features.FeatureVector) (float64, error) {
	x := vec.Dense()
	if len(x) != len(m.Coef) {
		return 0, &DimensionError{Want: len(m.Coef), Got: len(x)}
	}
	score := m.Intercept
	for i, w := range m.Coef {
		score += w * x[i]
	}
	return score, nil
}

// Predict implements Classifier.
func (m *Linear) Predict(_ context.Context, vec features.FeatureVector) (int, error) {
	score, err := m.Decision(vec)
	if err != nil {
		return 0, err
	}
	if score > 0 {
		return m.Classes[1], nil
	}
	return m.Classes[0], nil
}
