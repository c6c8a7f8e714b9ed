package session

import (
	"context"
	"image"
	"image/draw"

	"github.com/dudu/pumpkinface/internal/compositor"
	"github.com/dudu/pumpkinface/internal/pipeline"
)

// Render returns the image a raster presentation surface should show.
// Composite mode yields the latest composite; overlay mode copies the
// latest raw frame and rasterizes the current placements over it. version
// is the render version WaitRender reports; it advances on every frame,
// overlay or composite publish. The returned image must not be modified.
// ok is false before anything can be shown.
func (s *Session) Render() (img *image.RGBA, version uint64, ok bool) {
	if s.mode == pipeline.ModeComposite {
		c, v := s.composite.LoadVersion()
		if c == nil {
			return nil, v, false
		}
		return c.Image, v, true
	}

	// load the version first so a concurrent publish is seen again later
	_, version = s.view.LoadVersion()
	f := s.frame.Load()
	if f == nil || f.Image == nil {
		return nil, version, false
	}
	b := f.Image.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), f.Image, b.Min, draw.Src)

	if o := s.overlay.Load(); o != nil {
		compositor.Rasterize(dst, o.Placements, o.ScreenWidth, o.ScreenHeight)
	}
	return dst, version, true
}

// WaitRender blocks until the render version moves past version and
// returns the new one
func (s *Session) WaitRender(ctx context.Context, version uint64) (uint64, error) {
	var err error
	if s.mode == pipeline.ModeComposite {
		_, version, err = s.composite.Wait(ctx, version)
	} else {
		_, version, err = s.view.Wait(ctx, version)
	}
	return version, err
}
