package classifier

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/ml-gateway/internal/features"
)

// ONNX runs a classifier exported to ONNX (for example a gradient boosted
// ensemble). The graph takes a float32 [1, dim] input and emits an int64 label.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	dim        int
	inputName  string
	outputName string
}

// NewONNX opens the model at path. The onnxruntime environment must already
// be initialized.
func NewONNX(path string, dim int, inputName, outputName string) (*ONNX, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("onnx classifier needs a positive input dimension, got %d", dim)
	}
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "label"
	}
	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("open onnx classifier %s: %w", path, err)
	}
	return &ONNX{session: session, dim: dim, inputName: inputName, outputName: outputName}, nil
}

// Predict implements Classifier.
func (m *ONNX) Predict(_ context.Context, vec features.FeatureVector) (int, error) {
	x := vec.Dense32()
	if len(x) != m.dim {
		return 0, &DimensionError{Want: m.dim, Got: len(x)}
	}
	input, err := ort.NewTensor(ort.NewShape(1, int64(m.dim)), x)
	if err != nil {
		return 0, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := m.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return 0, fmt.Errorf("run onnx classifier: %w", err)
	}
	return int(output.GetData()[0]), nil
}

// Close destroys the session.
func (m *ONNX) Close() error {
	if m == nil || m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
