package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/pumpkinface/internal/session"
)

// ErrReadFailed is returned when the device delivers no frame
var ErrReadFailed = errors.New("camera read failed")

// Capture manages webcam capture
type Capture struct {
	webcam    *gocv.VideoCapture
	deviceID  int
	targetFPS int
	width     int
	height    int

	orientation Orientation
	mirror      bool

	raw      gocv.Mat
	oriented gocv.Mat
	mu       sync.Mutex
}

// NewCapture creates a new camera capture from device with default 720p resolution
func NewCapture(deviceID int, targetFPS int) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1280, 720)
}

// NewCaptureWithResolution creates a new camera capture with specified resolution
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	// Get actual dimensions (camera may not support requested resolution)
	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
		raw:       gocv.NewMat(),
		oriented:  gocv.NewMat(),
	}, nil
}

// SetOrientation fixes the rotation and mirroring applied to every frame
func (c *Capture) SetOrientation(o Orientation, mirror bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = o
	c.mirror = mirror
}

// Read captures one oriented frame. It returns session.ErrSourceClosed
// once the capture has been closed.
func (c *Capture) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil, session.ErrSourceClosed
	}
	if !c.webcam.Read(&c.raw) || c.raw.Empty() {
		return nil, fmt.Errorf("%w: device %d", ErrReadFailed, c.deviceID)
	}

	frame := c.orient()
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// orient applies rotation then mirroring, returning the Mat to convert
func (c *Capture) orient() *gocv.Mat {
	src := &c.raw
	if flag, ok := c.orientation.rotateFlag(); ok {
		gocv.Rotate(*src, &c.oriented, flag)
		src = &c.oriented
	}
	if c.mirror {
		// Flip in place is supported by OpenCV
		gocv.Flip(*src, &c.oriented, 1)
		src = &c.oriented
	}
	return src
}

// Width returns frame width after orientation
func (c *Capture) Width() int {
	if c.orientation.swapsAxes() {
		return c.height
	}
	return c.width
}

// Height returns frame height after orientation
func (c *Capture) Height() int {
	if c.orientation.swapsAxes() {
		return c.width
	}
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		c.raw.Close()
		c.oriented.Close()
		return err
	}
	return nil
}
