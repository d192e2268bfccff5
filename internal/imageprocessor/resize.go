package imageprocessor

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// ResizeSquare stretches img to size x size with bilinear interpolation,
// ignoring aspect ratio.
func ResizeSquare(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// CHWTensor lays out the RGB channels of img as planar float32 values in
// [0,1], the input layout of the detection networks.
func CHWTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			out[i] = float32(px[0]) / 255
			out[plane+i] = float32(px[1]) / 255
			out[2*plane+i] = float32(px[2]) / 255
		}
	}
	return out
}
