package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudu/pumpkinface/internal/compositor"
	"github.com/dudu/pumpkinface/internal/detector"
	"github.com/dudu/pumpkinface/internal/mapper"
)

var (
	// ErrDetect marks a failed detector invocation
	ErrDetect = errors.New("detection failed")
	// ErrComposite marks a failed rasterization
	ErrComposite = errors.New("composite failed")
)

// Config holds pipeline configuration
type Config struct {
	Mode Mode
	// MaxFaces caps faces handled per frame, 0 means unbounded
	MaxFaces int
	// Display size in points for overlay placements, 0 uses the frame size
	DisplayWidth  float64
	DisplayHeight float64
	// Placement overrides mapper.DefaultParams when set
	Placement *mapper.Params
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Composite time.Duration
	Total     time.Duration
}

// Output is the result of processing one frame. Every box, placement and
// composite in it comes from the same detection call.
type Output struct {
	Frame        image.Image
	Boxes        []mapper.NormalizedBox
	Placements   []compositor.Placement // overlay mode
	Composite    *image.RGBA            // composite mode, nil without faces
	ScreenWidth  float64
	ScreenHeight float64
	Timing       Timing
	Err          error
}

// Pipeline runs detection, mapping and compositing for single frames
type Pipeline struct {
	config     Config
	detector   FaceDetector
	compositor *compositor.Compositor
	log        logrus.FieldLogger

	mu         sync.Mutex
	lastTiming Timing
}

// New creates a pipeline around a detector and a decoration image
func New(config Config, det FaceDetector, decoration image.Image, logger logrus.FieldLogger) (*Pipeline, error) {
	if det == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if decoration == nil || decoration.Bounds().Empty() {
		return nil, fmt.Errorf("decoration image is required")
	}
	if _, err := ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}
	if config.MaxFaces < 0 {
		return nil, fmt.Errorf("max faces must be >= 0, got %d", config.MaxFaces)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	comp := compositor.New(decoration, config.MaxFaces)
	if config.Placement != nil {
		comp.Params = *config.Placement
	}

	logger.WithFields(logrus.Fields{
		"mode":      config.Mode,
		"max_faces": config.MaxFaces,
	}).Debug("pipeline ready")

	return &Pipeline{
		config:     config,
		detector:   det,
		compositor: comp,
		log:        logger,
	}, nil
}

// Mode returns the configured mode
func (p *Pipeline) Mode() Mode {
	return p.config.Mode
}

// Process detects faces on a frame and produces placements or a composite
func (p *Pipeline) Process(frame image.Image) Output {
	totalStart := time.Now()
	out := Output{Frame: frame}

	if frame == nil || frame.Bounds().Empty() {
		out.Err = fmt.Errorf("%w: empty frame", ErrDetect)
		return out
	}
	size := frame.Bounds().Size()
	out.ScreenWidth, out.ScreenHeight = p.screenSize(size)

	detectStart := time.Now()
	faces, err := p.detector.Detect(frame)
	out.Timing.Detection = time.Since(detectStart)
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrDetect, err)
		return out
	}
	out.Boxes = detector.Normalize(faces, size.X, size.Y)

	compositeStart := time.Now()
	switch p.config.Mode {
	case ModeOverlay:
		out.Placements = p.compositor.CompositeOnLiveOverlay(out.Boxes, out.ScreenWidth, out.ScreenHeight)
	case ModeComposite:
		if len(out.Boxes) > 0 {
			out.Composite, err = p.compositor.CompositeFacesOnFrame(frame, out.Boxes)
			if err != nil {
				out.Err = fmt.Errorf("%w: %v", ErrComposite, err)
			}
		}
	}
	out.Timing.Composite = time.Since(compositeStart)
	out.Timing.Total = time.Since(totalStart)

	p.mu.Lock()
	p.lastTiming = out.Timing
	p.mu.Unlock()

	return out
}

func (p *Pipeline) screenSize(frame image.Point) (float64, float64) {
	if p.config.DisplayWidth > 0 && p.config.DisplayHeight > 0 {
		return p.config.DisplayWidth, p.config.DisplayHeight
	}
	return float64(frame.X), float64(frame.Y)
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	if p.detector == nil {
		return nil
	}
	if err := p.detector.Close(); err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}
