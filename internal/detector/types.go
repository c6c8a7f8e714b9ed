package detector

import (
	"image"
	"math"

	"github.com/dudu/pumpkinface/internal/mapper"
)

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box in pixels
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect rounds the box to an integer rectangle
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(float64(b.X1))),
		int(math.Round(float64(b.Y1))),
		int(math.Round(float64(b.X2))),
		int(math.Round(float64(b.Y2))),
	)
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Face represents a detected face
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks // zero for detectors without keypoints
	Score       float32
}

// Normalize converts the pixel box of a frame of the given size into the
// normalized, bottom-left origin box the overlay core works with.
func (f Face) Normalize(frameWidth, frameHeight int) mapper.NormalizedBox {
	if frameWidth <= 0 || frameHeight <= 0 {
		return mapper.NormalizedBox{}
	}
	w := float64(frameWidth)
	h := float64(frameHeight)
	b := f.BoundingBox
	return mapper.NormalizedBox{
		X:      float64(b.X1) / w,
		Y:      1 - float64(b.Y2)/h,
		Width:  float64(b.Width()) / w,
		Height: float64(b.Height()) / h,
	}
}

// Normalize converts faces in detector order
func Normalize(faces []Face, frameWidth, frameHeight int) []mapper.NormalizedBox {
	boxes := make([]mapper.NormalizedBox, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, f.Normalize(frameWidth, frameHeight))
	}
	return boxes
}
