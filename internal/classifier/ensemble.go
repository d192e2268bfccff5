package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/features"
)

// ErrorPrefix starts the verdict of a model that failed.
const ErrorPrefix = "Error: "

// Member is one named model of an ensemble.
type Member struct {
	Name  string
	Model Classifier
}

// Verdicts maps model name to its verdict.
type Verdicts map[string]string

// Failed reports whether any entry is an error verdict.
func (v Verdicts) Failed() bool {
	for _, verdict := range v {
		if strings.HasPrefix(verdict, ErrorPrefix) {
			return true
		}
	}
	return false
}

// Ensemble runs a fixed set of classifiers over the same vector and reports
// each verdict on its own. No vote is taken.
type Ensemble struct {
	members []Member
	logger  *zap.Logger
}

// NewEnsemble validates member names and builds an ensemble.
func NewEnsemble(members []Member, logger *zap.Logger) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble needs at least one model")
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.Name == "" {
			return nil, errors.New("ensemble model without a name")
		}
		if m.Model == nil {
			return nil, fmt.Errorf("model %q is nil", m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensemble{
		members: append([]Member(nil), members...),
		logger:  logger.Named("ensemble"),
	}, nil
}

// Names lists the model names in their configured order.
func (e *Ensemble) Names() []string {
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.Name
	}
	return names
}

// Predict invokes every model. A model that errors or panics only degrades
// its own entry to an error verdict.
func (e *Ensemble) Predict(ctx context.Context, vec features.FeatureVector) Verdicts {
	out := make(Verdicts, len(e.members))
	for _, m := range e.members {
		label, err := invoke(ctx, m.Model, vec)
		if err != nil {
			e.logger.Error("model prediction failed", zap.String("model", m.Name), zap.Error(err))
			out[m.Name] = ErrorPrefix + err.Error()
			continue
		}
		out[m.Name] = VerdictFor(label)
	}
	return out
}

// Close releases models that hold native resources.
func (e *Ensemble) Close() error {
	var errs []error
	for _, m := range e.members {
		if c, ok := m.Model.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", m.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, model Classifier, vec features.FeatureVector) (label int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return model.Predict(ctx, vec)
}
