package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/pumpkinface/internal/session"
)

// Window manages the preview display
type Window struct {
	window      *gocv.Window
	name        string
	lastFrame   time.Time
	frameCount  int
	fps         float64
	lastVersion uint64
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Present shows the session's current presentation image, if it changed
// since the last call. It returns false when there was nothing new.
func (w *Window) Present(s *session.Session) (bool, error) {
	img, version, ok := s.Render()
	if !ok || version == w.lastVersion {
		return false, nil
	}
	w.lastVersion = version

	stats := s.Stats()
	status := fmt.Sprintf("D:%.0fms C:%.0fms T:%.0fms",
		float64(stats.LastTiming.Detection.Milliseconds()),
		float64(stats.LastTiming.Composite.Milliseconds()),
		float64(stats.LastTiming.Total.Milliseconds()))
	return true, w.Show(img, status)
}

// Show displays a frame and updates FPS counter
func (w *Window) Show(img image.Image, status string) error {
	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer frame.Close()

	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	green := color.RGBA{R: 0, G: 255, B: 0, A: 255}
	gocv.PutText(&frame, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, green, 2)
	if status != "" {
		gocv.PutText(&frame, status, image.Pt(10, 60),
			gocv.FontHersheyPlain, 1.5, green, 2)
	}

	w.window.IMShow(frame)
	return nil
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
