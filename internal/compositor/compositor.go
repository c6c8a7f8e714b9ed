package compositor

import (
	"errors"
	"image"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"

	"github.com/dudu/pumpkinface/internal/mapper"
)

var (
	// ErrNoDecoration is returned when the compositor has no image to draw
	ErrNoDecoration = errors.New("compositor: no decoration image")
	// ErrEmptyFrame is returned for a nil or zero-sized base frame
	ErrEmptyFrame = errors.New("compositor: empty base frame")
	// ErrEmptyRect is returned when no target rectangle has any area
	ErrEmptyRect = errors.New("compositor: empty target rectangle")
)

// Placement tells a presentation surface where to draw an image
type Placement struct {
	Image image.Image
	Rect  mapper.DisplayRect
}

// Compositor places a decorative image over detected faces
type Compositor struct {
	Decoration image.Image
	Params     mapper.Params
	// MaxFaces caps the faces handled per frame, 0 means unbounded
	MaxFaces int

	mu     sync.Mutex
	scaled image.Image
	size   image.Point
}

// New creates a compositor with default placement params
func New(decoration image.Image, maxFaces int) *Compositor {
	return &Compositor{
		Decoration: decoration,
		Params:     mapper.DefaultParams(),
		MaxFaces:   maxFaces,
	}
}

// limit returns the boxes this compositor is allowed to handle
func (c *Compositor) limit(boxes []mapper.NormalizedBox) []mapper.NormalizedBox {
	if c.MaxFaces > 0 && len(boxes) > c.MaxFaces {
		return boxes[:c.MaxFaces]
	}
	return boxes
}

// CompositeOnLiveOverlay emits one placement per face, in detector order.
// Nothing is rasterized; the presentation surface draws the placements.
func (c *Compositor) CompositeOnLiveOverlay(boxes []mapper.NormalizedBox, screenWidth, screenHeight float64) []Placement {
	boxes = c.limit(boxes)
	placements := make([]Placement, 0, len(boxes))
	for _, box := range boxes {
		placements = append(placements, Placement{
			Image: c.Decoration,
			Rect:  c.Params.MapToDisplay(box, screenWidth, screenHeight),
		})
	}
	return placements
}

// CompositeOnFrame draws the decoration over a single face of a copy of base
func (c *Compositor) CompositeOnFrame(base image.Image, box mapper.NormalizedBox) (*image.RGBA, error) {
	return c.CompositeFacesOnFrame(base, []mapper.NormalizedBox{box})
}

// CompositeFacesOnFrame draws the decoration over every allowed face of a
// copy of base and returns the flattened result. base is not modified.
func (c *Compositor) CompositeFacesOnFrame(base image.Image, boxes []mapper.NormalizedBox) (*image.RGBA, error) {
	if c.Decoration == nil {
		return nil, ErrNoDecoration
	}
	if base == nil || base.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	b := base.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), base, b.Min, draw.Src)

	dc := gg.NewContextForRGBA(canvas)
	drawn := 0
	for _, box := range c.limit(boxes) {
		r := mapper.MapToPixel(box, b.Dx(), b.Dy()).Rect().Image()
		if r.Empty() {
			continue
		}
		dc.DrawImage(c.scaledTo(r.Size()), r.Min.X, r.Min.Y)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrEmptyRect
	}

	return canvas, nil
}

// scaledTo returns the decoration resized to size, reusing the last result
func (c *Compositor) scaledTo(size image.Point) image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scaled != nil && c.size == size {
		return c.scaled
	}
	c.scaled = fit(c.Decoration, size)
	c.size = size
	return c.scaled
}

// Rasterize draws placements computed for a surfaceWidth x surfaceHeight
// display onto dst, scaling display space to dst's size.
func Rasterize(dst *image.RGBA, placements []Placement, surfaceWidth, surfaceHeight float64) {
	if dst == nil || len(placements) == 0 || surfaceWidth <= 0 || surfaceHeight <= 0 {
		return
	}

	b := dst.Bounds()
	sx := float64(b.Dx()) / surfaceWidth
	sy := float64(b.Dy()) / surfaceHeight

	dc := gg.NewContextForRGBA(dst)
	for _, p := range placements {
		if p.Image == nil {
			continue
		}
		r := p.Rect.Rect().Scale(sx, sy).Image()
		if r.Empty() {
			continue
		}
		dc.DrawImage(fit(p.Image, r.Size()), b.Min.X+r.Min.X, b.Min.Y+r.Min.Y)
	}
}

func fit(img image.Image, size image.Point) image.Image {
	if img.Bounds().Size() == size {
		return img
	}
	return resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
}
