package ocr

import (
	"context"
	"image"
	"image/color"
	"testing"
)

type recordingEngine struct {
	got  *image.Gray
	text string
}

func (r *recordingEngine) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	r.got = img
	return r.text, nil
}

func (r *recordingEngine) Close() error { return nil }

func TestPipelineFeedsBinarizedImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(240)
			if y == 0 {
				v = 15
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	engine := &recordingEngine{text: "HELLO"}
	p, err := NewPipeline(engine)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	text, err := p.Read(context.Background(), img)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "HELLO" {
		t.Fatalf("unexpected text %q", text)
	}
	for _, px := range engine.got.Pix {
		if px != 0 && px != 255 {
			t.Fatalf("engine received non-binary pixel %d", px)
		}
	}
	if engine.got.GrayAt(0, 0).Y != 0 || engine.got.GrayAt(0, 3).Y != 255 {
		t.Fatal("expected dark first row on white background")
	}
}

func TestPipelineHonorsCancellation(t *testing.T) {
	engine := &recordingEngine{}
	p, _ := NewPipeline(engine)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Read(ctx, image.NewGray(image.Rect(0, 0, 1, 1))); err == nil {
		t.Fatal("expected cancellation error")
	}
	if engine.got != nil {
		t.Fatal("engine should not run after cancellation")
	}
}

func TestNewPipelineRequiresEngine(t *testing.T) {
	if _, err := NewPipeline(nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}
