package imageprocessor

import (
	"image"
	"image/color"
)

// Grayscale converts img to 8-bit luma with the BT.601 weights
// (0.299 R + 0.587 G + 0.114 B).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return gray
	}
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// 16-bit channels; fixed point weights sum to 1<<16.
			l := (19595*r + 38470*g + 7471*bl + 1<<15) >> 24
			row[x] = uint8(l)
		}
	}
	return gray
}

// OtsuThreshold picks the global threshold that maximizes the between-class
// variance of the histogram of gray.
func OtsuThreshold(gray *image.Gray) uint8 {
	var hist [256]float64
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := gray.PixOffset(b.Min.X, y)
		for _, p := range gray.Pix[off : off+b.Dx()] {
			hist[p]++
		}
	}
	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return 0
	}

	var mu float64
	for i, n := range hist {
		mu += float64(i) * n
	}
	mu /= total

	const eps = 1.1920929e-07
	var (
		q1, mu1  float64
		maxSigma float64
		best     int
	)
	for i, n := range hist {
		p := n / total
		mu1 *= q1
		q1 += p
		q2 := 1 - q1
		if min(q1, q2) < eps || max(q1, q2) > 1-eps {
			continue
		}
		mu1 = (mu1 + float64(i)*p) / q1
		mu2 := (mu - q1*mu1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			best = i
		}
	}
	return uint8(best)
}

// Binarize maps pixels above t to white and the rest to black.
func Binarize(gray *image.Gray, t uint8) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y > t {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// PrepareForOCR grayscales img and binarizes it at its Otsu threshold.
func PrepareForOCR(img image.Image) *image.Gray {
	gray := Grayscale(img)
	return Binarize(gray, OtsuThreshold(gray))
}
