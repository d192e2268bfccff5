package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ml-gateway/internal/features"
)

// NaiveBayes is a multinomial naive Bayes model: the predicted class maximizes
// log prior + x·log P(feature|class).
type NaiveBayes struct {
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	Classes        []int       `json:"classes"`
}

func (m *NaiveBayes) validate() error {
	if len(m.ClassLogPrior) == 0 {
		return errors.New("naive bayes model has no classes")
	}
	if len(m.FeatureLogProb) != len(m.ClassLogPrior) {
		return fmt.Errorf("naive bayes has %d priors but %d likelihood rows", len(m.ClassLogPrior), len(m.FeatureLogProb))
	}
	width := len(m.FeatureLogProb[0])
	for i, row := range m.FeatureLogProb {
		if len(row) != width {
			return fmt.Errorf("likelihood row %d has %d columns, want %d", i, len(row), width)
		}
	}
	if len(m.Classes) == 0 {
		m.Classes = make([]int, len(m.ClassLogPrior))
		for i := range m.Classes {
			m.Classes[i] = i
		}
	}
	if len(m.Classes) != len(m.ClassLogPrior) {
		return fmt.Errorf("naive bayes has %d classes but %d priors", len(m.Classes), len(m.ClassLogPrior))
	}
	return nil
}

// Predict implements Classifier.
func (m *NaiveBayes) Predict(_ context.Context, vec features.FeatureVector) (int, error) {
	x := vec.Dense()
	if want := len(m.FeatureLogProb[0]); len(x) != want {
		return 0, &DimensionError{Want: want, Got: len(x)}
	}
	best, bestScore := 0, 0.0
	for c, prior := range m.ClassLogPrior {
		score := prior
		for i, lp := range m.FeatureLogProb[c] {
			if x[i] != 0 {
				score += x[i] * lp
			}
		}
		if c == 0 || score > bestScore {
			best, bestScore = c, score
		}
	}
	return m.Classes[best], nil
}
