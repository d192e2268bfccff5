package detector

import (
	"testing"
)

func TestAnchorCount(t *testing.T) {
	if got := anchorCount(640); got != 8400 {
		t.Fatalf("expected 8400 anchors for 640, got %d", got)
	}
	if got := anchorCount(320); got != 2100 {
		t.Fatalf("expected 2100 anchors for 320, got %d", got)
	}
}

func TestDecodeYOLOAppliesThreshold(t *testing.T) {
	const anchors, classes = 3, 2
	out := make([]float32, (4+classes)*anchors)
	set := func(row, a int, v float32) { out[row*anchors+a] = v }

	// anchor 0: class 1 at 0.9, box centered at (50,50) 20x10
	set(0, 0, 50)
	set(1, 0, 50)
	set(2, 0, 20)
	set(3, 0, 10)
	set(5, 0, 0.9)
	// anchor 1: below threshold
	set(4, 1, 0.1)
	// anchor 2: class 0 at 0.3
	set(2, 2, 4)
	set(3, 2, 4)
	set(4, 2, 0.3)

	dets := decodeYOLO(out, classes, anchors, 0.25)
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %+v", dets)
	}
	d := dets[0]
	if d.ClassID != 1 || d.Confidence != 0.9 {
		t.Fatalf("unexpected detection %+v", d)
	}
	if d.Box != (Box{X1: 40, Y1: 45, X2: 60, Y2: 55}) {
		t.Fatalf("unexpected box %+v", d.Box)
	}
}

func TestNMSSuppressesSameClassOverlap(t *testing.T) {
	dets := []Detection{
		{ClassID: 0, Confidence: 0.6, Box: Box{0, 0, 10, 10}},
		{ClassID: 0, Confidence: 0.9, Box: Box{1, 1, 11, 11}},
		{ClassID: 1, Confidence: 0.5, Box: Box{1, 1, 11, 11}},
		{ClassID: 0, Confidence: 0.4, Box: Box{50, 50, 60, 60}},
	}
	kept := nms(dets, 0.45)
	if len(kept) != 3 {
		t.Fatalf("expected 3 boxes, got %+v", kept)
	}
	if kept[0].Confidence != 0.9 || kept[1].ClassID != 1 || kept[2].Box.X1 != 50 {
		t.Fatalf("unexpected survivors %+v", kept)
	}
}

func TestNMSKeepsModerateOverlapAtDefaultIoU(t *testing.T) {
	a := Box{0, 0, 10, 10}
	b := Box{0, 0, 10, 6}
	if got := IoU(a, b); got < 0.59 || got > 0.61 {
		t.Fatalf("expected IoU 0.6, got %v", got)
	}
	dets := []Detection{
		{ClassID: 0, Confidence: 0.9, Box: a},
		{ClassID: 0, Confidence: 0.8, Box: b},
	}
	if kept := nms(dets, DefaultIoU); len(kept) != 2 {
		t.Fatalf("expected both boxes to survive, got %+v", kept)
	}
	if kept := nms(dets, 0.5); len(kept) != 1 {
		t.Fatalf("expected suppression below the overlap, got %+v", kept)
	}
}

func TestDecodeYOLODropsScoreEqualToThreshold(t *testing.T) {
	const anchors, classes = 2, 1
	out := make([]float32, (4+classes)*anchors)
	out[4*anchors+0] = DefaultConfidence
	out[4*anchors+1] = DefaultConfidence + 0.01

	dets := decodeYOLO(out, classes, anchors, DefaultConfidence)
	if len(dets) != 1 || dets[0].Confidence != DefaultConfidence+0.01 {
		t.Fatalf("expected only the score above threshold, got %+v", dets)
	}
}

func TestIoU(t *testing.T) {
	if got := IoU(Box{0, 0, 10, 10}, Box{0, 0, 10, 10}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := IoU(Box{0, 0, 10, 10}, Box{20, 20, 30, 30}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := IoU(Box{0, 0, 10, 10}, Box{5, 0, 15, 10}); got < 0.333 || got > 0.334 {
		t.Fatalf("expected 1/3, got %v", got)
	}
}

func TestRescaleMapsToSourceAndClamps(t *testing.T) {
	dets := []Detection{{Box: Box{X1: -5, Y1: 320, X2: 320, Y2: 700}}}
	rescale(dets, 640, 1280, 320)
	want := Box{X1: 0, Y1: 160, X2: 640, Y2: 320}
	if dets[0].Box != want {
		t.Fatalf("expected %+v, got %+v", want, dets[0].Box)
	}
}

func TestParseNamesForms(t *testing.T) {
	cases := map[string]string{
		"list":      "names: [Otarcie, Siniak]\n",
		"map":       "path: data\nnames:\n  0: Otarcie\n  1: Siniak\n",
		"bare list": "- Otarcie\n- Siniak\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			names, err := ParseNames([]byte(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(names) != 2 || names.Name(0) != "Otarcie" || names.Name(1) != "Siniak" {
				t.Fatalf("unexpected names %v", names)
			}
		})
	}
}

func TestParseNamesRejectsGaps(t *testing.T) {
	if _, err := ParseNames([]byte("names:\n  0: a\n  2: c\n")); err == nil {
		t.Fatal("expected error for non-contiguous indices")
	}
	if _, err := ParseNames([]byte("nc: 2\n")); err == nil {
		t.Fatal("expected error when names key is missing")
	}
}

func TestNameFallsBackForUnknownIndex(t *testing.T) {
	names := Names{"person"}
	if got := names.Name(7); got != "class_7" {
		t.Fatalf("unexpected fallback %q", got)
	}
}

func TestUniqueLabelsKeepsFirstSeenOrder(t *testing.T) {
	dets := []Detection{{Label: "cut"}, {Label: "burn"}, {Label: "cut"}}
	got := UniqueLabels(dets)
	if len(got) != 2 || got[0] != "cut" || got[1] != "burn" {
		t.Fatalf("unexpected labels %v", got)
	}
	if all := Labels(dets); len(all) != 3 {
		t.Fatalf("expected all labels, got %v", all)
	}
}
