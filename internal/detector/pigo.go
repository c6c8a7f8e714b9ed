package detector

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// PigoParams holds cascade detection parameters
type PigoParams struct {
	MinSize          int     // minimum face size in pixels
	MaxSize          int     // maximum face size in pixels
	ShiftFactor      float64 // detection window shift
	ScaleFactor      float64 // image pyramid scale step
	IoUThreshold     float64 // clustering threshold
	QualityThreshold float32 // minimum detection quality
	Angle            float64 // 0.0 is 0 radians and 1.0 is 2*pi radians
}

// DefaultPigoParams returns parameters tuned for webcam frames
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:          20,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// Pigo is a pure Go cascade face detector
type Pigo struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// NewPigo loads a facefinder cascade file
func NewPigo(cascadePath string, params PigoParams) (*Pigo, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewPigoFromCascade(data, params)
}

// NewPigoFromCascade unpacks an in-memory cascade
func NewPigoFromCascade(cascade []byte, params PigoParams) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &Pigo{classifier: classifier, params: params}, nil
}

// Detect finds faces in an image. Results are ordered by quality.
func (p *Pigo) Detect(img image.Image) ([]Face, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	src := pigo.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	cParams := pigo.CascadeParams{
		MinSize:     p.params.MinSize,
		MaxSize:     p.params.MaxSize,
		ShiftFactor: p.params.ShiftFactor,
		ScaleFactor: p.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(cParams, p.params.Angle)
	// clustering already merges overlaps; clusters come back in scan order
	dets = p.classifier.ClusterDetections(dets, p.params.IoUThreshold)

	return Rank(p.toFaces(dets, cols, rows)), nil
}

// toFaces converts center/scale detections to clamped boxes
func (p *Pigo) toFaces(dets []pigo.Detection, cols, rows int) []Face {
	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < p.params.QualityThreshold {
			continue
		}
		half := float32(det.Scale) / 2
		cx, cy := float32(det.Col), float32(det.Row)
		faces = append(faces, Face{
			BoundingBox: BoundingBox{
				X1: clamp(cx-half, 0, float32(cols)),
				Y1: clamp(cy-half, 0, float32(rows)),
				X2: clamp(cx+half, 0, float32(cols)),
				Y2: clamp(cy+half, 0, float32(rows)),
			},
			Score: det.Q,
		})
	}
	return faces
}

// Close is a no-op, the cascade lives in Go memory
func (p *Pigo) Close() error {
	return nil
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
