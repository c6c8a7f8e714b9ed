package detector

import (
	"image"
	"math"
	"testing"

	pigo "github.com/esimov/pigo/core"

	"github.com/dudu/pumpkinface/internal/mapper"
)

func TestFaceNormalizeRoundTrip(t *testing.T) {
	face := Face{BoundingBox: BoundingBox{X1: 100, Y1: 60, X2: 300, Y2: 260}, Score: 0.9}

	box := face.Normalize(640, 480)

	if math.Abs(box.Y-(1-260.0/480)) > 1e-9 {
		t.Fatalf("Y = %v, want bottom-left origin", box.Y)
	}
	got := mapper.MapToPixel(box, 640, 480).Rect().Image()
	if got != face.BoundingBox.Rect() {
		t.Fatalf("round trip = %v, want %v", got, face.BoundingBox.Rect())
	}
}

func TestNormalizeKeepsOrder(t *testing.T) {
	faces := []Face{
		{BoundingBox: BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		{BoundingBox: BoundingBox{X1: 50, Y1: 50, X2: 60, Y2: 60}},
	}

	boxes := Normalize(faces, 100, 100)

	if len(boxes) != 2 || boxes[0].X != 0 || boxes[1].X != 0.5 {
		t.Fatalf("Normalize() = %+v", boxes)
	}
	if got := Normalize(nil, 100, 100); got == nil || len(got) != 0 {
		t.Fatalf("Normalize(nil) = %#v, want empty slice", got)
	}
}

func TestNormalizeZeroFrame(t *testing.T) {
	face := Face{BoundingBox: BoundingBox{X2: 10, Y2: 10}}
	if got := face.Normalize(0, 0); got != (mapper.NormalizedBox{}) {
		t.Fatalf("Normalize on zero frame = %+v", got)
	}
}

func TestNMS(t *testing.T) {
	faces := []Face{
		{BoundingBox: BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.6},
		{BoundingBox: BoundingBox{X1: 1, Y1: 1, X2: 11, Y2: 11}, Score: 0.9},
		{BoundingBox: BoundingBox{X1: 50, Y1: 50, X2: 60, Y2: 60}, Score: 0.7},
	}

	kept := NMS(faces, 0.4)

	if len(kept) != 2 {
		t.Fatalf("kept %d faces, want 2", len(kept))
	}
	if kept[0].Score != 0.9 || kept[1].Score != 0.7 {
		t.Fatalf("kept scores %v, %v; want 0.9, 0.7", kept[0].Score, kept[1].Score)
	}
	if faces[0].Score != 0.6 || faces[1].Score != 0.9 || faces[2].Score != 0.7 {
		t.Fatal("NMS reordered the caller's slice")
	}
}

func TestRankIsStableOnEqualScores(t *testing.T) {
	faces := []Face{
		{BoundingBox: BoundingBox{X1: 0, X2: 10, Y2: 10}, Score: 0.5},
		{BoundingBox: BoundingBox{X1: 20, X2: 30, Y2: 10}, Score: 0.8},
		{BoundingBox: BoundingBox{X1: 40, X2: 50, Y2: 10}, Score: 0.5},
		{BoundingBox: BoundingBox{X1: 60, X2: 70, Y2: 10}, Score: 0.5},
	}

	for i := 0; i < 20; i++ {
		ranked := Rank(faces)
		got := []float32{ranked[0].BoundingBox.X1, ranked[1].BoundingBox.X1, ranked[2].BoundingBox.X1, ranked[3].BoundingBox.X1}
		want := []float32{20, 0, 40, 60}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("Rank() order = %v, want %v", got, want)
			}
		}
	}
	if faces[0].BoundingBox.X1 != 0 || faces[1].BoundingBox.X1 != 20 {
		t.Fatal("Rank() modified its input")
	}
}

func TestIoU(t *testing.T) {
	a := BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	if got := a.IoU(a); got != 1 {
		t.Errorf("IoU(self) = %v, want 1", got)
	}
	if got := a.IoU(BoundingBox{X1: 5, Y1: 0, X2: 15, Y2: 10}); got < 0.333 || got > 0.334 {
		t.Errorf("IoU(half overlap) = %v, want 1/3", got)
	}
	if got := a.IoU(BoundingBox{X1: 10, Y1: 10, X2: 20, Y2: 20}); got != 0 {
		t.Errorf("IoU(touching) = %v, want 0", got)
	}
}

func TestBoundingBoxRect(t *testing.T) {
	b := BoundingBox{X1: 1.4, Y1: 2.6, X2: 10.5, Y2: 20.2}
	if got, want := b.Rect(), image.Rect(1, 3, 11, 20); got != want {
		t.Fatalf("Rect() = %v, want %v", got, want)
	}
}

func TestPigoToFacesFiltersAndClamps(t *testing.T) {
	p := &Pigo{params: DefaultPigoParams()}
	dets := []pigo.Detection{
		{Row: 50, Col: 50, Scale: 40, Q: 12},
		{Row: 10, Col: 5, Scale: 30, Q: 8},
		{Row: 80, Col: 80, Scale: 20, Q: 1},
	}

	faces := p.toFaces(dets, 100, 100)

	if len(faces) != 2 {
		t.Fatalf("got %d faces, want 2 above quality threshold", len(faces))
	}
	if got, want := faces[0].BoundingBox, (BoundingBox{X1: 30, Y1: 30, X2: 70, Y2: 70}); got != want {
		t.Errorf("face 0 = %+v, want %+v", got, want)
	}
	if got := faces[1].BoundingBox; got.X1 != 0 || got.Y1 != 0 {
		t.Errorf("face 1 not clamped to frame: %+v", got)
	}
}
