package detector

import "sort"

// anchorCount is the number of predictions a YOLOv8 head emits for a square
// input: one per cell of the stride 8, 16 and 32 grids.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// decodeYOLO reads a [4+classes, anchors] row-major output. Each anchor
// carries cx, cy, w, h followed by one score per class; anchors whose best
// score does not exceed threshold are dropped.
func decodeYOLO(out []float32, classes, anchors int, threshold float32) []Detection {
	var dets []Detection
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, threshold
		for c := 0; c < classes; c++ {
			if s := out[(4+c)*anchors+a]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 {
			continue
		}
		cx, cy := out[a], out[anchors+a]
		w, h := out[2*anchors+a], out[3*anchors+a]
		dets = append(dets, Detection{
			ClassID:    best,
			Confidence: bestScore,
			Box:        Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
		})
	}
	return dets
}

// nms keeps the highest scoring box of every same-class cluster whose overlap
// exceeds iou. The result is ordered by descending confidence.
func nms(dets []Detection, iou float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && IoU(k.Box, d.Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// rescale maps boxes from the square network input back onto a srcW x srcH
// image, clamping to its bounds.
func rescale(dets []Detection, size, srcW, srcH int) {
	sx := float32(srcW) / float32(size)
	sy := float32(srcH) / float32(size)
	for i := range dets {
		b := &dets[i].Box
		b.X1 = clamp(b.X1*sx, float32(srcW))
		b.X2 = clamp(b.X2*sx, float32(srcW))
		b.Y1 = clamp(b.Y1*sy, float32(srcH))
		b.Y2 = clamp(b.Y2*sy, float32(srcH))
	}
}

func clamp(v, hi float32) float32 {
	return min(max(v, 0), hi)
}
