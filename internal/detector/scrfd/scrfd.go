// Package scrfd runs the SCRFD face detection model through ONNX Runtime.
package scrfd

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/pumpkinface/internal/detector"
	"github.com/dudu/pumpkinface/internal/inference"
)

var (
	inputNames  = []string{"input.1"}
	outputNames = []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}
	strides = []int{8, 16, 32}
)

const anchorsPerCell = 2

// Options configures the detector
type Options struct {
	ModelPath     string
	InputSize     int     // square network input, default 640
	ConfThreshold float32 // default 0.5
	NMSThreshold  float32 // default 0.4
}

// Detector implements the SCRFD face detector
type Detector struct {
	session *inference.Session
	opts    Options
}

// New loads the SCRFD model. inference.Initialize must have been called.
func New(opts Options) (*Detector, error) {
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.ConfThreshold <= 0 {
		opts.ConfThreshold = 0.5
	}
	if opts.NMSThreshold <= 0 {
		opts.NMSThreshold = 0.4
	}

	session, err := inference.NewSession(opts.ModelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &Detector{session: session, opts: opts}, nil
}

// Detect finds faces in an image
func (d *Detector) Detect(img image.Image) ([]detector.Face, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	return d.DetectMat(mat)
}

// DetectMat finds faces in a BGR Mat
func (d *Detector) DetectMat(img gocv.Mat) ([]detector.Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	blob, scale := d.preprocess(img)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read input blob: %w", err)
	}

	size := int64(d.opts.InputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs, err := d.allocOutputs()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, t := range outputs {
			t.Destroy()
		}
	}()

	values := make([]ort.Value, len(outputs))
	for i, t := range outputs {
		values[i] = t
	}
	if err := d.session.Run([]ort.Value{input}, values); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	var faces []detector.Face
	for level, stride := range strides {
		faces = append(faces, d.decodeLevel(
			stride,
			outputs[level].GetData(),
			outputs[level+3].GetData(),
			outputs[level+6].GetData(),
			scale, img.Cols(), img.Rows(),
		)...)
	}

	return detector.NMS(faces, d.opts.NMSThreshold), nil
}

// allocOutputs creates the nine score/bbox/kps output tensors
func (d *Detector) allocOutputs() ([]*ort.Tensor[float32], error) {
	widths := []int64{1, 4, 10}
	outputs := make([]*ort.Tensor[float32], 0, len(outputNames))
	for _, width := range widths {
		for _, stride := range strides {
			cells := d.opts.InputSize / stride
			anchors := int64(cells * cells * anchorsPerCell)
			t, err := inference.CreateEmptyTensor[float32]([]int64{anchors, width})
			if err != nil {
				for _, o := range outputs {
					o.Destroy()
				}
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs = append(outputs, t)
		}
	}
	return outputs, nil
}

// preprocess letterboxes the frame into the top-left of the network input
// and returns an NCHW blob normalized to (x - 127.5) / 128 in RGB order
func (d *Detector) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	size := d.opts.InputSize
	scale := float32(size) / float32(max(img.Rows(), img.Cols()))
	newWidth := int(float32(img.Cols()) * scale)
	newHeight := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size, size, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// decodeLevel turns one stride level of raw outputs into faces in frame pixels
func (d *Detector) decodeLevel(stride int, scores, bboxes, kps []float32, scale float32, width, height int) []detector.Face {
	var faces []detector.Face
	cells := d.opts.InputSize / stride
	s := float32(stride)

	anchor := 0
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			for a := 0; a < anchorsPerCell; a, anchor = a+1, anchor+1 {
				score := sigmoid(scores[anchor])
				if score <= d.opts.ConfThreshold {
					continue
				}

				cx := (float32(x) + 0.5) * s
				cy := (float32(y) + 0.5) * s

				b := bboxes[anchor*4 : anchor*4+4]
				box := detector.BoundingBox{
					X1: clamp((cx-b[0]*s)/scale, 0, float32(width)),
					Y1: clamp((cy-b[1]*s)/scale, 0, float32(height)),
					X2: clamp((cx+b[2]*s)/scale, 0, float32(width)),
					Y2: clamp((cy+b[3]*s)/scale, 0, float32(height)),
				}

				k := kps[anchor*10 : anchor*10+10]
				pt := func(i int) detector.Point {
					return detector.Point{X: (cx + k[i]*s) / scale, Y: (cy + k[i+1]*s) / scale}
				}

				faces = append(faces, detector.Face{
					BoundingBox: box,
					Landmarks: detector.Landmarks{
						LeftEye:    pt(0),
						RightEye:   pt(2),
						Nose:       pt(4),
						LeftMouth:  pt(6),
						RightMouth: pt(8),
					},
					Score: score,
				})
			}
		}
	}
	return faces
}

// Close releases detector resources
func (d *Detector) Close() error {
	return d.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
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
