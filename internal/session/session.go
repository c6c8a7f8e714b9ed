// Package session runs the detection worker and owns the published
// overlay state.
//
// One worker goroutine reads frames serially from a Source, hands each one
// to the pipeline and publishes the outcome into single-slot cells that
// presentation surfaces read concurrently. A session is explicitly started
// and stopped; every publish checks that the session is still active, so a
// result that arrives after Stop never reaches the presentation side.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/pumpkinface/internal/pipeline"
	"github.com/dudu/pumpkinface/internal/slot"
)

var (
	// ErrSourceClosed is returned by a Source that has no more frames
	ErrSourceClosed = errors.New("frame source closed")
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("session already started")
)

// Source delivers frames to the worker. Read blocks until a frame is
// available, the context ends, or the source is exhausted.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
}

// Processor turns one frame into a pipeline output
type Processor interface {
	Process(frame image.Image) pipeline.Output
	Mode() pipeline.Mode
}

// Options configures a session
type Options struct {
	// NoFace overrides the mode's default no-face policy
	NoFace      NoFacePolicy
	Diagnostics DiagnosticsHook
	Logger      logrus.FieldLogger
	// RetryDelay is the pause after a failed source read
	RetryDelay time.Duration
}

// Session is an explicit handle over one detection worker
type Session struct {
	id     string
	proc   Processor
	mode   pipeline.Mode
	noFace NoFacePolicy
	hook   DiagnosticsHook
	log    logrus.FieldLogger
	retry  time.Duration

	overlay   slot.Slot[Overlay]
	composite slot.Slot[Composite]
	frame     slot.Slot[Frame]
	// view changes whenever the overlay-mode raster would
	view slot.Slot[struct{}]

	// pubMu orders publishes against Stop
	pubMu  sync.RWMutex
	active bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a stopped session
func New(proc Processor, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	policy := opts.NoFace
	if policy == "" {
		policy = DefaultNoFacePolicy(proc.Mode())
	}
	retry := opts.RetryDelay
	if retry <= 0 {
		retry = 10 * time.Millisecond
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		proc:   proc,
		mode:   proc.Mode(),
		noFace: policy,
		hook:   opts.Diagnostics,
		log:    logger.WithField("session", id),
		retry:  retry,
		done:   make(chan struct{}),
		stats:  Stats{Skipped: make(map[Reason]uint64)},
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Mode returns the pipeline mode of the session
func (s *Session) Mode() pipeline.Mode { return s.mode }

// NoFacePolicy returns the effective no-face policy
func (s *Session) NoFacePolicy() NoFacePolicy { return s.noFace }

// Start launches the worker. The session stays active until Stop is
// called, ctx is cancelled or the source is exhausted.
func (s *Session) Start(ctx context.Context, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.pubMu.Lock()
	s.active = true
	s.pubMu.Unlock()

	go s.run(ctx, src)

	s.log.WithFields(logrus.Fields{
		"mode":    s.mode,
		"no_face": s.noFace,
	}).Info("session started")
	return nil
}

// Stop deactivates the session and waits for the worker to exit.
// It is safe to call more than once and before Start.
func (s *Session) Stop() {
	s.deactivate()

	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
}

// Done is closed when the worker has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Active reports whether results are still being published
func (s *Session) Active() bool {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	return s.active
}

func (s *Session) deactivate() {
	s.pubMu.Lock()
	wasActive := s.active
	s.active = false
	s.pubMu.Unlock()

	if wasActive {
		s.log.Info("session stopped")
	}
}

func (s *Session) run(ctx context.Context, src Source) {
	defer close(s.done)
	defer s.deactivate()

	var seq uint64
	for ctx.Err() == nil {
		img, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || ctx.Err() != nil {
				return
			}
			s.report(Result{Seq: seq, Outcome: OutcomeSkipped, Reason: ReasonSourceError, Err: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
			continue
		}

		seq++
		s.countFrame()
		s.publishFrame(seq, img)

		s.Publish(seq, s.proc.Process(img))
	}
}

func (s *Session) publishFrame(seq uint64, img image.Image) {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	if s.active {
		s.frame.Store(&Frame{Seq: seq, Image: img, At: time.Now()})
		if s.mode == pipeline.ModeOverlay {
			s.view.Store(&struct{}{})
		}
	}
}

// Publish applies one pipeline output to the published state. The worker
// calls it for every frame; detectors that complete asynchronously may
// call it from their own goroutine. Nothing is published once the session
// is inactive.
func (s *Session) Publish(seq uint64, out pipeline.Output) Result {
	res := s.apply(seq, out)
	s.report(res)
	return res
}

func (s *Session) apply(seq uint64, out pipeline.Output) Result {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()

	res := Result{Seq: seq, Faces: len(out.Boxes), Timing: out.Timing, Err: out.Err}

	switch {
	case !s.active:
		res.Outcome, res.Reason = OutcomeSkipped, ReasonInactive
	case errors.Is(out.Err, pipeline.ErrDetect):
		res.Outcome, res.Reason = OutcomeSkipped, ReasonDetectFailed
	case out.Err != nil:
		res.Outcome, res.Reason = OutcomeSkipped, ReasonCompositeFailed
	case s.mode == pipeline.ModeOverlay:
		s.applyOverlay(&res, out)
	default:
		s.applyComposite(&res, out)
	}
	return res
}

func (s *Session) applyOverlay(res *Result, out pipeline.Output) {
	if len(out.Placements) == 0 {
		res.Reason = ReasonNoFace
		if s.noFace == RetainLast {
			res.Outcome = OutcomeSkipped
			return
		}
	}
	s.overlay.Store(&Overlay{
		Seq:          res.Seq,
		Placements:   out.Placements,
		ScreenWidth:  out.ScreenWidth,
		ScreenHeight: out.ScreenHeight,
		At:           time.Now(),
	})
	s.view.Store(&struct{}{})
	res.Outcome = OutcomePublished
}

func (s *Session) applyComposite(res *Result, out pipeline.Output) {
	if out.Composite == nil {
		res.Reason = ReasonNoFace
		if s.noFace == Clear {
			s.composite.Clear()
			res.Outcome = OutcomeCleared
			return
		}
		res.Outcome = OutcomeSkipped
		return
	}
	s.composite.Store(&Composite{
		Seq:   res.Seq,
		Image: out.Composite,
		Faces: len(out.Boxes),
		At:    time.Now(),
	})
	res.Outcome = OutcomePublished
}

func (s *Session) report(res Result) {
	s.statsMu.Lock()
	switch res.Outcome {
	case OutcomePublished:
		s.stats.Published++
	case OutcomeCleared:
		s.stats.Cleared++
	case OutcomeSkipped:
		s.stats.Skipped[res.Reason]++
	}
	if res.Timing != (pipeline.Timing{}) {
		s.stats.LastTiming = res.Timing
	}
	s.statsMu.Unlock()

	if res.Outcome == OutcomeSkipped && res.Reason != ReasonNoFace {
		entry := s.log.WithFields(logrus.Fields{"seq": res.Seq, "reason": res.Reason})
		if res.Err != nil {
			entry = entry.WithError(res.Err)
		}
		entry.Debug("frame skipped")
	}

	if s.hook != nil {
		s.hook(res)
	}
}

func (s *Session) countFrame() {
	s.statsMu.Lock()
	s.stats.Frames++
	s.statsMu.Unlock()
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	snapshot := s.stats
	snapshot.Skipped = make(map[Reason]uint64, len(s.stats.Skipped))
	for k, v := range s.stats.Skipped {
		snapshot.Skipped[k] = v
	}
	snapshot.Overwrites = s.overlay.Overwrites() + s.composite.Overwrites()
	return snapshot
}

// LatestOverlay returns the current placements, nil before the first publish
func (s *Session) LatestOverlay() *Overlay {
	return s.overlay.Load()
}

// LatestComposite returns the current composite, nil if none
func (s *Session) LatestComposite() *Composite {
	return s.composite.Load()
}

// LatestFrame returns the last raw frame read by the worker
func (s *Session) LatestFrame() *Frame {
	return s.frame.Load()
}

// WaitOverlay blocks until an overlay newer than version is published
func (s *Session) WaitOverlay(ctx context.Context, version uint64) (*Overlay, uint64, error) {
	return s.overlay.Wait(ctx, version)
}

// WaitComposite blocks until the composite slot changes after version
func (s *Session) WaitComposite(ctx context.Context, version uint64) (*Composite, uint64, error) {
	return s.composite.Wait(ctx, version)
}

// WaitFrame blocks until a raw frame newer than version is read
func (s *Session) WaitFrame(ctx context.Context, version uint64) (*Frame, uint64, error) {
	return s.frame.Wait(ctx, version)
}
