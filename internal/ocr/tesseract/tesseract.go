// Package tesseract recognizes text in-process with libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/imageprocessor"
)

// Engine runs Tesseract. Each call gets its own client because gosseract
// clients are not safe for concurrent use.
type Engine struct {
	languages []string
	logger    *zap.Logger
}

// New returns an engine for the given languages (e.g. "eng", "pol").
func New(languages []string, logger *zap.Logger) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{languages: languages, logger: logger.Named("tesseract")}
}

// Version reports the linked libtesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := imageprocessor.EncodePNG(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set tesseract languages: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("load image into tesseract: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognition: %w", err)
	}
	e.logger.Debug("recognized text", zap.Int("chars", len(text)))
	return text, nil
}

// Close implements ocr.Engine.
func (e *Engine) Close() error { return nil }
