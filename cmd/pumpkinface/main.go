package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dudu/pumpkinface/internal/camera"
	"github.com/dudu/pumpkinface/internal/camera/replay"
	"github.com/dudu/pumpkinface/internal/config"
	"github.com/dudu/pumpkinface/internal/detector"
	"github.com/dudu/pumpkinface/internal/detector/scrfd"
	"github.com/dudu/pumpkinface/internal/inference"
	"github.com/dudu/pumpkinface/internal/logging"
	"github.com/dudu/pumpkinface/internal/mapper"
	"github.com/dudu/pumpkinface/internal/pipeline"
	"github.com/dudu/pumpkinface/internal/server"
	"github.com/dudu/pumpkinface/internal/session"
	"github.com/dudu/pumpkinface/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

func main() {
	cfg, _, err := config.Parse("pumpkinface", os.Args[1:], nil, usage)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("pumpkinface failed")
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "PumpkinFace - Put a pumpkin on every face in the camera feed\n\n")
	fmt.Fprintf(os.Stderr, "Usage: pumpkinface [options]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables prefixed with %s override the config file.\n", config.EnvPrefix)
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  pumpkinface -d pumpkin.png\n")
	fmt.Fprintf(os.Stderr, "  pumpkinface -d pumpkin.png -mode composite -max-faces 1 -mirror\n")
	fmt.Fprintf(os.Stderr, "  pumpkinface -d pumpkin.png -backend onnx -model models/scrfd_10g.onnx\n")
	fmt.Fprintf(os.Stderr, "  pumpkinface -d pumpkin.png -replay frames/ -preview=false -http :8080\n")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"mode":    cfg.Mode,
		"backend": cfg.Backend,
	}).Info("PumpkinFace starting")

	decoration, err := loadImage(cfg.Decoration)
	if err != nil {
		return err
	}

	det, err := newDetector(cfg, logger)
	if err != nil {
		return err
	}

	mode, err := pipeline.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	p, err := pipeline.New(pipeline.Config{
		Mode:          mode,
		MaxFaces:      cfg.MaxFaces,
		DisplayWidth:  cfg.Display.Width,
		DisplayHeight: cfg.Display.Height,
		Placement:     &mapper.Params{Pad: cfg.Display.Pad, VOffset: cfg.Display.VOffset},
	}, det, decoration, logger)
	if err != nil {
		det.Close()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	src, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	policy, err := session.ParseNoFacePolicy(cfg.NoFace)
	if err != nil {
		return err
	}
	sess := session.New(p, session.Options{
		NoFace:      policy,
		Logger:      logger,
		Diagnostics: traceResult(logger),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx, src); err != nil {
		return err
	}
	defer sess.Stop()

	httpErr := make(chan error, 1)
	if cfg.Server.Addr != "" {
		srv := server.New(sess, server.Options{Addr: cfg.Server.Addr, Logger: logger})
		go func() { httpErr <- srv.Run(ctx) }()
	}

	if cfg.Display.Preview {
		return previewLoop(ctx, sess, cfg, httpErr, logger)
	}

	logger.Info("Running headless... Press Ctrl+C to quit")
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case <-sess.Done():
		logger.Info("Frame source finished")
	case err := <-httpErr:
		return err
	}
	return nil
}

func previewLoop(ctx context.Context, sess *session.Session, cfg *config.Config, httpErr <-chan error, logger *logrus.Logger) error {
	window := ui.NewWindow("PumpkinFace", cfg.Camera.Width, cfg.Camera.Height)
	defer window.Close()

	logger.Info("Running... Press 'q' to quit")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down...")
			return nil
		case <-sess.Done():
			logger.Info("Frame source finished")
			return nil
		case err := <-httpErr:
			return err
		default:
		}

		if _, err := window.Present(sess); err != nil {
			logger.WithError(err).Warn("preview frame dropped")
		}

		// WaitKey must be called to process window events on macOS
		key := window.WaitKey(10)
		if key == 'q' || key == 27 { // 'q' or ESC
			logger.WithField("fps", window.FPS()).Info("Quitting...")
			return nil
		}
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open decoration: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode decoration %s: %w", path, err)
	}
	return img, nil
}

func newDetector(cfg *config.Config, logger *logrus.Logger) (pipeline.FaceDetector, error) {
	backend, err := pipeline.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{"backend": backend, "model": cfg.Detector.Model}).Info("Loading detector")

	switch backend {
	case pipeline.BackendONNX:
		if err := inference.Initialize(cfg.Detector.ORTLibrary, logger); err != nil {
			return nil, err
		}
		det, err := scrfd.New(scrfd.Options{
			ModelPath:     cfg.Detector.Model,
			InputSize:     cfg.Detector.InputSize,
			ConfThreshold: float32(cfg.Detector.Confidence),
			NMSThreshold:  float32(cfg.Detector.NMS),
		})
		if err != nil {
			inference.Shutdown()
			return nil, err
		}
		return onnxDetector{det}, nil
	default:
		params := detector.DefaultPigoParams()
		params.MinSize = cfg.Detector.MinSize
		params.MaxSize = cfg.Detector.MaxSize
		det, err := detector.NewPigo(cfg.Detector.Model, params)
		if err != nil {
			return nil, err
		}
		return det, nil
	}
}

// onnxDetector shuts the runtime down with the detector
type onnxDetector struct {
	*scrfd.Detector
}

func (d onnxDetector) Close() error {
	err := d.Detector.Close()
	if serr := inference.Shutdown(); err == nil {
		err = serr
	}
	return err
}

func openSource(cfg *config.Config, logger *logrus.Logger) (session.Source, func(), error) {
	if cfg.Camera.ReplayDir != "" {
		files, err := replay.Open(cfg.Camera.ReplayDir, replay.Options{FPS: cfg.Camera.FPS, Loop: cfg.Camera.Loop})
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{"dir": cfg.Camera.ReplayDir, "frames": files.Len()}).Info("Replaying images")
		return files, func() {}, nil
	}

	orientation, err := camera.ParseOrientation(cfg.Camera.Orientation)
	if err != nil {
		return nil, nil, err
	}

	logger.WithField("camera", cfg.Camera.Index).Info("Opening camera")
	cam, err := camera.NewCaptureWithResolution(cfg.Camera.Index, cfg.Camera.FPS, cfg.Camera.Width, cfg.Camera.Height)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open camera: %w", err)
	}
	cam.SetOrientation(orientation, cfg.Camera.Mirror)
	logger.Infof("Camera opened: %dx%d", cam.Width(), cam.Height())

	return cam, func() { cam.Close() }, nil
}

// traceResult prints per-frame timing at trace level
func traceResult(logger *logrus.Logger) session.DiagnosticsHook {
	return func(r session.Result) {
		if !logger.IsLevelEnabled(logrus.TraceLevel) {
			return
		}
		logger.WithFields(logrus.Fields{
			"seq":     r.Seq,
			"outcome": r.Outcome,
			"reason":  r.Reason,
			"faces":   r.Faces,
			"detect":  r.Timing.Detection,
			"total":   r.Timing.Total,
		}).Trace("frame")
	}
}
