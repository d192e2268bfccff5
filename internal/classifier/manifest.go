package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/features"
	"github.com/example/ml-gateway/internal/onnxrt"
)

// Model artifact formats.
const (
	FormatLinear     = "linear"
	FormatNaiveBayes = "naive_bayes"
	FormatONNX       = "onnx"
)

// ModelSpec describes one ensemble member on disk.
type ModelSpec struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Path   string `json:"path"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// Manifest lists the text artifacts produced at training time. Relative paths
// are resolved against the manifest's directory.
type Manifest struct {
	Vectorizer   string      `json:"vectorizer"`
	BrandColumns string      `json:"brand_columns"`
	Layout       []string    `json:"layout"`
	Models       []ModelSpec `json:"models"`

	dir string
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Vectorizer == "" || m.BrandColumns == "" {
		return nil, fmt.Errorf("manifest %s must name a vectorizer and brand columns", path)
	}
	if len(m.Models) == 0 {
		return nil, fmt.Errorf("manifest %s lists no models", path)
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

// Extractor loads the vectorizer and brand columns.
func (m *Manifest) Extractor() (*features.Extractor, error) {
	vec, err := features.LoadVectorizer(m.resolve(m.Vectorizer))
	if err != nil {
		return nil, err
	}
	cols, err := features.LoadBrandColumns(m.resolve(m.BrandColumns))
	if err != nil {
		return nil, err
	}
	layout, err := features.ParseLayout(m.Layout)
	if err != nil {
		return nil, err
	}
	return features.NewExtractor(vec, cols, layout)
}

// Ensemble loads every listed model, checking each against the feature
// dimension dim. Already opened models are released when a later one fails.
func (m *Manifest) Ensemble(dim int, logger *zap.Logger) (*Ensemble, error) {
	members := make([]Member, 0, len(m.Models))
	closeAll := func() {
		_ = (&Ensemble{members: members}).Close()
	}
	for _, spec := range m.Models {
		model, err := m.loadModel(spec, dim)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("load model %q: %w", spec.Name, err)
		}
		members = append(members, Member{Name: spec.Name, Model: model})
	}
	ens, err := NewEnsemble(members, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	return ens, nil
}

func (m *Manifest) loadModel(spec ModelSpec, dim int) (Classifier, error) {
	path := m.resolve(spec.Path)
	switch spec.Format {
	case FormatLinear:
		var lin Linear
		if err := readJSON(path, &lin); err != nil {
			return nil, err
		}
		if err := lin.validate(); err != nil {
			return nil, err
		}
		if len(lin.Coef) != dim {
			return nil, &DimensionError{Want: len(lin.Coef), Got: dim}
		}
		return &lin, nil
	case FormatNaiveBayes:
		var nb NaiveBayes
		if err := readJSON(path, &nb); err != nil {
			return nil, err
		}
		if err := nb.validate(); err != nil {
			return nil, err
		}
		if width := len(nb.FeatureLogProb[0]); width != dim {
			return nil, &DimensionError{Want: width, Got: dim}
		}
		return &nb, nil
	case FormatONNX:
		if !onnxrt.Ready() {
			return nil, errors.New("onnxruntime is not initialized")
		}
		return NewONNX(path, dim, spec.Input, spec.Output)
	default:
		return nil, fmt.Errorf("unknown model format %q", spec.Format)
	}
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
