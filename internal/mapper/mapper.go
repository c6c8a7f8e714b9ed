package mapper

import (
	"image"
	"math"
)

const (
	// DefaultPad enlarges display placements so the decoration overflows the face box
	DefaultPad = 100.0
	// DefaultVOffset shifts display placements up by a fraction of the screen height
	DefaultVOffset = 0.1
)

// NormalizedBox is a face bounding box as reported by a detector.
// All fields are fractions of the frame size and the origin is the
// bottom-left corner of the frame.
type NormalizedBox struct {
	X, Y          float64
	Width, Height float64
}

// Valid reports whether the box lies entirely inside the unit square
func (b NormalizedBox) Valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 && !math.IsNaN(v) }
	return in(b.X) && in(b.Y) && in(b.Width) && in(b.Height) &&
		b.X+b.Width <= 1 && b.Y+b.Height <= 1
}

// Rect is an axis-aligned rectangle with a top-left origin
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Center returns the rectangle center point
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Image rounds the rectangle to integer pixel coordinates
func (r Rect) Image() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// Scale multiplies every coordinate by sx horizontally and sy vertically
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// DisplayRect is a placement rectangle in display points
type DisplayRect Rect

// Rect returns the underlying rectangle
func (d DisplayRect) Rect() Rect { return Rect(d) }

// PixelRect is a rectangle in raw frame pixels
type PixelRect Rect

// Rect returns the underlying rectangle
func (p PixelRect) Rect() Rect { return Rect(p) }

// Params holds the cosmetic constants of display placement
type Params struct {
	Pad     float64 // added to width and height independently
	VOffset float64 // vertical bias as a fraction of screen height
}

// DefaultParams returns the standard pumpkin placement constants
func DefaultParams() Params {
	return Params{Pad: DefaultPad, VOffset: DefaultVOffset}
}

// MapToDisplay maps a box to a display placement using DefaultParams
func MapToDisplay(box NormalizedBox, screenWidth, screenHeight float64) DisplayRect {
	return DefaultParams().MapToDisplay(box, screenWidth, screenHeight)
}

// MapToDisplay maps a normalized box to a padded placement rectangle on a
// screen of the given size. Out-of-range boxes are not rejected.
func (p Params) MapToDisplay(box NormalizedBox, screenWidth, screenHeight float64) DisplayRect {
	faceW := box.Width * screenWidth
	faceH := box.Height * screenHeight

	width := faceW + p.Pad
	height := faceH + p.Pad

	cx := box.X*screenWidth + faceW/2
	cy := (1-box.Y-p.VOffset)*screenHeight - faceH/2

	return DisplayRect{
		X:      cx - width/2,
		Y:      cy - height/2,
		Width:  width,
		Height: height,
	}
}

// MapToPixel maps a normalized box to the top-left pixel space of an image
func MapToPixel(box NormalizedBox, imageWidth, imageHeight int) PixelRect {
	w := float64(imageWidth)
	h := float64(imageHeight)
	return PixelRect{
		X:      box.X * w,
		Y:      (1 - box.Y - box.Height) * h,
		Width:  box.Width * w,
		Height: box.Height * h,
	}
}

// FromPixels converts a top-left pixel rectangle back to a normalized box
func FromPixels(r image.Rectangle, frameWidth, frameHeight int) NormalizedBox {
	if frameWidth <= 0 || frameHeight <= 0 {
		return NormalizedBox{}
	}
	w := float64(frameWidth)
	h := float64(frameHeight)
	return NormalizedBox{
		X:      float64(r.Min.X) / w,
		Y:      1 - float64(r.Max.Y)/h,
		Width:  float64(r.Dx()) / w,
		Height: float64(r.Dy()) / h,
	}
}
