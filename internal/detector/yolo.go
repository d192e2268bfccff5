package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/imageprocessor"
)

// Thresholds applied when YOLOConfig leaves them unset. They match the
// ultralytics predict defaults the models were validated with.
const (
	DefaultConfidence float32 = 0.25
	DefaultIoU        float32 = 0.7
)

// YOLOConfig configures a YOLOv8 detector exported to ONNX.
type YOLOConfig struct {
	ModelPath  string
	Names      Names
	InputSize  int
	Confidence float32
	IoU        float32
	InputName  string
	OutputName string
}

// YOLO runs a YOLOv8 ONNX graph. Sessions are shared; tensors are allocated
// per call so concurrent Detect calls do not share buffers.
type YOLO struct {
	session *ort.DynamicAdvancedSession
	cfg     YOLOConfig
	anchors int
	logger  *zap.Logger
}

// NewYOLO opens the model. The onnxruntime environment must be initialized.
func NewYOLO(cfg YOLOConfig, logger *zap.Logger) (*YOLO, error) {
	if len(cfg.Names) == 0 {
		return nil, errors.New("detector needs class names")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.IoU <= 0 {
		cfg.IoU = DefaultIoU
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("open detector %s: %w", cfg.ModelPath, err)
	}
	return &YOLO{
		session: session,
		cfg:     cfg,
		anchors: anchorCount(cfg.InputSize),
		logger:  logger.Named("yolo"),
	}, nil
}

// Detect resizes img to the network input, runs inference and returns the
// boxes surviving the confidence threshold and NMS, in source coordinates.
func (y *YOLO) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := y.cfg.InputSize
	resized := imageprocessor.ResizeSquare(img, size)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), imageprocessor.CHWTensor(resized))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	classes := len(y.cfg.Names)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+classes), int64(y.anchors)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := y.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	dets := nms(decodeYOLO(output.GetData(), classes, y.anchors, y.cfg.Confidence), y.cfg.IoU)
	b := img.Bounds()
	rescale(dets, size, b.Dx(), b.Dy())
	for i := range dets {
		dets[i].Label = y.cfg.Names.Name(dets[i].ClassID)
	}
	y.logger.Debug("detection finished", zap.Int("boxes", len(dets)))
	return dets, nil
}

// Close destroys the session.
func (y *YOLO) Close() error {
	if y == nil || y.session == nil {
		return nil
	}
	err := y.session.Destroy()
	y.session = nil
	return err
}
