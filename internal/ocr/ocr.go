// Package ocr extracts text from images through a pluggable recognition engine.
package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/example/ml-gateway/internal/imageprocessor"
)

// Engine recognizes text in an already binarized image.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
	Close() error
}

// Pipeline binarizes images before handing them to an engine.
type Pipeline struct {
	engine Engine
}

// NewPipeline wraps engine.
func NewPipeline(engine Engine) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("ocr engine is required")
	}
	return &Pipeline{engine: engine}, nil
}

// Read grayscales img, binarizes it at its Otsu threshold and recognizes
// the text.
func (p *Pipeline) Read(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.engine.Recognize(ctx, imageprocessor.PrepareForOCR(img))
}

// Close releases the engine.
func (p *Pipeline) Close() error {
	return p.engine.Close()
}
