// Package detector runs YOLO-family object detection networks.
package detector

import (
	"context"
	"image"
)

// Box is an axis-aligned rectangle in source image pixels.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (b Box) area() float32 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU is the intersection over union of two boxes.
func IoU(a, b Box) float32 {
	inter := Box{
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2),
		Y2: min(a.Y2, b.Y2),
	}.area()
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one box reported by a detector.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detector finds objects in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Labels returns the label of every detection in order.
func Labels(dets []Detection) []string {
	out := make([]string, len(dets))
	for i, d := range dets {
		out[i] = d.Label
	}
	return out
}

// UniqueLabels returns the distinct labels in first-seen order.
func UniqueLabels(dets []Detection) []string {
	seen := make(map[string]bool, len(dets))
	out := make([]string, 0, len(dets))
	for _, d := range dets {
		if !seen[d.Label] {
			seen[d.Label] = true
			out = append(out, d.Label)
		}
	}
	return out
}
