package pipeline

import (
	"fmt"
	"image"

	"github.com/dudu/pumpkinface/internal/detector"
)

// Backend represents the face detection backend to use
type Backend string

const (
	BackendPigo Backend = "pigo"
	BackendONNX Backend = "onnx"
)

// ParseBackend validates a backend name
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendPigo, BackendONNX:
		return b, nil
	}
	return "", fmt.Errorf("invalid backend: %s (use 'pigo' or 'onnx')", s)
}

// Mode selects how decorations reach the screen
type Mode string

const (
	// ModeOverlay emits display placements over the live feed
	ModeOverlay Mode = "overlay"
	// ModeComposite draws decorations into a copy of the captured frame
	ModeComposite Mode = "composite"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverlay, ModeComposite:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode: %s (use 'overlay' or 'composite')", s)
}

// FaceDetector interface for face detection
type FaceDetector interface {
	Detect(img image.Image) ([]detector.Face, error)
	Close() error
}
