package session

import (
	"image"
	"time"

	"github.com/dudu/pumpkinface/internal/compositor"
	"github.com/dudu/pumpkinface/internal/pipeline"
)

// NoFacePolicy decides what happens to the published state when a
// detection cycle finds no face
type NoFacePolicy string

const (
	// RetainLast keeps the previously published value on screen
	RetainLast NoFacePolicy = "retain_last"
	// Clear removes decorations
	Clear NoFacePolicy = "clear"
)

// ParseNoFacePolicy validates a policy name, empty means the mode default
func ParseNoFacePolicy(s string) (NoFacePolicy, error) {
	switch p := NoFacePolicy(s); p {
	case "", RetainLast, Clear:
		return p, nil
	}
	return "", &PolicyError{Value: s}
}

// PolicyError reports an unknown no-face policy
type PolicyError struct {
	Value string
}

func (e *PolicyError) Error() string {
	return "invalid no-face policy: " + e.Value + " (use 'retain_last' or 'clear')"
}

// DefaultNoFacePolicy returns the policy each mode had originally:
// overlays disappear, composites stay
func DefaultNoFacePolicy(mode pipeline.Mode) NoFacePolicy {
	if mode == pipeline.ModeComposite {
		return RetainLast
	}
	return Clear
}

// Overlay is one published set of display placements
type Overlay struct {
	Seq          uint64
	Placements   []compositor.Placement
	ScreenWidth  float64
	ScreenHeight float64
	At           time.Time
}

// Composite is one published composited frame
type Composite struct {
	Seq   uint64
	Image *image.RGBA
	Faces int
	At    time.Time
}

// Frame is the most recent raw frame handed to the detector
type Frame struct {
	Seq   uint64
	Image image.Image
	At    time.Time
}

// Outcome of one detection cycle
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeCleared   Outcome = "cleared"
	OutcomeSkipped   Outcome = "skipped"
)

// Reason explains a skipped or cleared cycle
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoFace          Reason = "no_face"
	ReasonDetectFailed    Reason = "detect_failed"
	ReasonCompositeFailed Reason = "composite_failed"
	ReasonInactive        Reason = "inactive"
	ReasonSourceError     Reason = "source_error"
)

// Result describes what one detection cycle did to the published state
type Result struct {
	Seq     uint64
	Outcome Outcome
	Reason  Reason
	Faces   int
	Timing  pipeline.Timing
	Err     error
}

// DiagnosticsHook receives every Result on the worker goroutine.
// It must not block.
type DiagnosticsHook func(Result)

// Stats is a snapshot of session counters
type Stats struct {
	Frames     uint64            `json:"frames"`
	Published  uint64            `json:"published"`
	Cleared    uint64            `json:"cleared"`
	Skipped    map[Reason]uint64 `json:"skipped"`
	Overwrites uint64            `json:"overwrites"`
	LastTiming pipeline.Timing   `json:"-"`
}
