package pipeline

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dudu/pumpkinface/internal/detector"
	"github.com/dudu/pumpkinface/internal/mapper"
)

type fakeDetector struct {
	faces  []detector.Face
	err    error
	calls  int
	closed bool
}

func (f *fakeDetector) Detect(img image.Image) ([]detector.Face, error) {
	f.calls++
	return f.faces, f.err
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)
	return img
}

func decoration() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 255, G: 128, A: 255}}, image.Point{}, draw.Src)
	return img
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func twoFaces() []detector.Face {
	return []detector.Face{
		{BoundingBox: detector.BoundingBox{X1: 10, Y1: 10, X2: 30, Y2: 30}, Score: 0.9},
		{BoundingBox: detector.BoundingBox{X1: 60, Y1: 50, X2: 90, Y2: 80}, Score: 0.8},
	}
}

func TestNewValidates(t *testing.T) {
	det := &fakeDetector{}
	tests := []struct {
		name   string
		config Config
		det    FaceDetector
		deco   image.Image
	}{
		{"nil detector", Config{Mode: ModeOverlay}, nil, decoration()},
		{"nil decoration", Config{Mode: ModeOverlay}, det, nil},
		{"bad mode", Config{Mode: "hologram"}, det, decoration()},
		{"negative max faces", Config{Mode: ModeComposite, MaxFaces: -1}, det, decoration()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config, tt.det, tt.deco, quietLogger()); err == nil {
				t.Fatal("New() succeeded, want error")
			}
		})
	}
}

func TestProcessOverlayMode(t *testing.T) {
	det := &fakeDetector{faces: twoFaces()}
	p, err := New(Config{Mode: ModeOverlay, DisplayWidth: 390, DisplayHeight: 844}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(100, 100))

	if out.Err != nil {
		t.Fatalf("Process() err = %v", out.Err)
	}
	if len(out.Placements) != 2 || len(out.Boxes) != 2 {
		t.Fatalf("got %d placements for %d boxes, want 2", len(out.Placements), len(out.Boxes))
	}
	if out.Composite != nil {
		t.Fatal("overlay mode produced a composite")
	}
	want := mapper.MapToDisplay(out.Boxes[0], 390, 844)
	if out.Placements[0].Rect != want {
		t.Fatalf("placement = %+v, want %+v", out.Placements[0].Rect, want)
	}
	if out.ScreenWidth != 390 || out.ScreenHeight != 844 {
		t.Fatalf("screen = %vx%v, want 390x844", out.ScreenWidth, out.ScreenHeight)
	}
}

func TestPlacementParamsAcceptZero(t *testing.T) {
	det := &fakeDetector{faces: twoFaces()}
	zero := mapper.Params{}
	p, err := New(Config{Mode: ModeOverlay, DisplayWidth: 390, DisplayHeight: 844, Placement: &zero}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(100, 100))

	want := zero.MapToDisplay(out.Boxes[0], 390, 844)
	if out.Placements[0].Rect != want {
		t.Fatalf("placement = %+v, want unpadded %+v", out.Placements[0].Rect, want)
	}
	if padded := mapper.MapToDisplay(out.Boxes[0], 390, 844); out.Placements[0].Rect == padded {
		t.Fatal("zero placement params fell back to the defaults")
	}
}

func TestProcessOverlayDefaultsScreenToFrame(t *testing.T) {
	p, err := New(Config{Mode: ModeOverlay}, &fakeDetector{}, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(640, 480))

	if out.ScreenWidth != 640 || out.ScreenHeight != 480 {
		t.Fatalf("screen = %vx%v, want frame size", out.ScreenWidth, out.ScreenHeight)
	}
	if out.Placements == nil || len(out.Placements) != 0 {
		t.Fatalf("placements = %#v, want empty", out.Placements)
	}
}

func TestProcessCompositeModeSingleFace(t *testing.T) {
	det := &fakeDetector{faces: twoFaces()}
	p, err := New(Config{Mode: ModeComposite, MaxFaces: 1}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(100, 100))

	if out.Err != nil {
		t.Fatalf("Process() err = %v", out.Err)
	}
	if out.Composite == nil {
		t.Fatal("composite mode produced no image")
	}
	r, g, _, _ := out.Composite.At(20, 20).RGBA()
	if r>>8 < 200 || g>>8 < 100 {
		t.Errorf("first face not decorated: %v", out.Composite.At(20, 20))
	}
	_, _, b, _ := out.Composite.At(75, 65).RGBA()
	if b>>8 < 200 {
		t.Errorf("second face decorated with MaxFaces=1: %v", out.Composite.At(75, 65))
	}
}

func TestProcessCompositeModeNoFaces(t *testing.T) {
	p, err := New(Config{Mode: ModeComposite, MaxFaces: 1}, &fakeDetector{}, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(100, 100))

	if out.Err != nil || out.Composite != nil {
		t.Fatalf("Process() = (composite %v, err %v), want nothing", out.Composite != nil, out.Err)
	}
}

func TestProcessDetectorFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("malformed pixel buffer")}
	p, err := New(Config{Mode: ModeComposite}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(10, 10))

	if !errors.Is(out.Err, ErrDetect) {
		t.Fatalf("err = %v, want ErrDetect", out.Err)
	}
	if out.Composite != nil || out.Boxes != nil {
		t.Fatal("failed detection produced output")
	}

	out = p.Process(nil)
	if !errors.Is(out.Err, ErrDetect) {
		t.Fatalf("nil frame err = %v, want ErrDetect", out.Err)
	}
}

func TestProcessCompositeFailure(t *testing.T) {
	// a zero-area box cannot be composited
	det := &fakeDetector{faces: []detector.Face{{BoundingBox: detector.BoundingBox{X1: 5, Y1: 5, X2: 5, Y2: 5}}}}
	p, err := New(Config{Mode: ModeComposite}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out := p.Process(frame(10, 10))

	if !errors.Is(out.Err, ErrComposite) {
		t.Fatalf("err = %v, want ErrComposite", out.Err)
	}
}

func TestCloseClosesDetector(t *testing.T) {
	det := &fakeDetector{}
	p, err := New(Config{Mode: ModeOverlay}, det, decoration(), quietLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := p.Close(); err != nil || !det.closed {
		t.Fatalf("Close() = %v, detector closed = %v", err, det.closed)
	}
}

func TestParseBackendAndMode(t *testing.T) {
	if _, err := ParseBackend("onnx"); err != nil {
		t.Errorf("ParseBackend(onnx) = %v", err)
	}
	if _, err := ParseBackend("coreml"); err == nil {
		t.Error("ParseBackend(coreml) succeeded")
	}
	if m, err := ParseMode("composite"); err != nil || m != ModeComposite {
		t.Errorf("ParseMode(composite) = %v, %v", m, err)
	}
}
