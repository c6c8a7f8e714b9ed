package config

import (
	"flag"
	"fmt"
	"io"
)

// Sources names the files a configuration was read from
type Sources struct {
	File   string
	DotEnv string
}

func bind(fs *flag.FlagSet, cfg *Config, src *Sources) {
	fs.StringVar(&src.File, "config", src.File, "YAML configuration file")
	fs.StringVar(&src.DotEnv, "env", src.DotEnv, "Environment file")

	fs.StringVar(&cfg.Decoration, "decoration", cfg.Decoration, "Decoration image (required)")
	fs.StringVar(&cfg.Decoration, "d", cfg.Decoration, "Decoration image (shorthand)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Presentation mode: overlay or composite")
	fs.StringVar(&cfg.Mode, "m", cfg.Mode, "Presentation mode (shorthand)")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Detector backend: pigo or onnx")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "Detector backend (shorthand)")
	fs.IntVar(&cfg.MaxFaces, "max-faces", cfg.MaxFaces, "Faces decorated per frame, 0 for all, -1 for the mode default")
	fs.StringVar(&cfg.NoFace, "no-face", cfg.NoFace, "When no face is found: retain_last or clear")

	fs.IntVar(&cfg.Camera.Index, "camera", cfg.Camera.Index, "Camera device index")
	fs.IntVar(&cfg.Camera.Index, "c", cfg.Camera.Index, "Camera device index (shorthand)")
	fs.IntVar(&cfg.Camera.FPS, "fps", cfg.Camera.FPS, "Target frames per second")
	fs.StringVar(&cfg.Camera.Orientation, "orientation", cfg.Camera.Orientation, "Frame rotation: none, cw90, ccw90 or 180")
	fs.BoolVar(&cfg.Camera.Mirror, "mirror", cfg.Camera.Mirror, "Mirror frames horizontally")
	fs.StringVar(&cfg.Camera.ReplayDir, "replay", cfg.Camera.ReplayDir, "Replay images from a directory instead of the camera")
	fs.BoolVar(&cfg.Camera.Loop, "loop", cfg.Camera.Loop, "Loop replayed images")

	fs.StringVar(&cfg.Detector.Model, "model", cfg.Detector.Model, "Pigo cascade or SCRFD ONNX model")
	fs.Float64Var(&cfg.Detector.Confidence, "confidence", cfg.Detector.Confidence, "Detection confidence threshold")
	fs.StringVar(&cfg.Detector.ORTLibrary, "ort-library", cfg.Detector.ORTLibrary, "ONNX Runtime shared library")

	fs.BoolVar(&cfg.Display.Preview, "preview", cfg.Display.Preview, "Show preview window")
	fs.BoolVar(&cfg.Display.Preview, "p", cfg.Display.Preview, "Show preview window (shorthand)")
	fs.Float64Var(&cfg.Display.Width, "display-width", cfg.Display.Width, "Overlay display width in points")
	fs.Float64Var(&cfg.Display.Height, "display-height", cfg.Display.Height, "Overlay display height in points")

	fs.StringVar(&cfg.Server.Addr, "http", cfg.Server.Addr, "Serve HTTP preview on this address")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Rotating log file")
}

// Parse builds a configuration from args. The -config and -env flags are
// read first; file values, then environment variables, then the remaining
// flags are applied on top of the defaults.
func Parse(name string, args []string, lookup LookupFunc, usage func(fs *flag.FlagSet)) (*Config, Sources, error) {
	src := Sources{DotEnv: ".env"}

	probeCfg := Default()
	probeSrc := src
	probe := flag.NewFlagSet(name, flag.ContinueOnError)
	probe.SetOutput(io.Discard)
	bind(probe, &probeCfg, &probeSrc)
	probeErr := probe.Parse(args)

	cfg := Default()
	if probeErr == nil {
		src = probeSrc
		if src.File != "" {
			if err := LoadFile(src.File, &cfg); err != nil {
				return nil, src, err
			}
		}
		if lookup == nil {
			var err error
			if lookup, err = DotEnvLookup(src.DotEnv); err != nil {
				return nil, src, err
			}
		}
		if err := ApplyEnv(&cfg, lookup); err != nil {
			return nil, src, err
		}
	}

	// flags win over file and environment
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	bind(fs, &cfg, &src)
	if usage != nil {
		fs.Usage = func() { usage(fs) }
	}
	if err := fs.Parse(args); err != nil {
		return nil, src, err
	}
	if fs.NArg() > 0 {
		return nil, src, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.resolve()
	if err := Validate(&cfg); err != nil {
		return nil, src, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, src, nil
}
