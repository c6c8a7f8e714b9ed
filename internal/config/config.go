// Package config loads pumpkinface settings from a YAML file, a .env file,
// PUMPKINFACE_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pumpkinface configuration
type Config struct {
	Decoration string `yaml:"decoration" validate:"required"`
	Mode       string `yaml:"mode" validate:"oneof=overlay composite"`
	Backend    string `yaml:"backend" validate:"oneof=pigo onnx"`
	MaxFaces   int    `yaml:"max_faces" validate:"gte=-1"`
	// NoFace is retain_last or clear, empty uses the mode default
	NoFace string `yaml:"no_face" validate:"omitempty,oneof=retain_last clear"`

	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// CameraConfig contains frame source settings
type CameraConfig struct {
	Index       int    `yaml:"index" validate:"gte=0"`
	FPS         int    `yaml:"fps" validate:"gte=1,lte=240"`
	Width       int    `yaml:"width" validate:"gte=0"`
	Height      int    `yaml:"height" validate:"gte=0"`
	Orientation string `yaml:"orientation" validate:"oneof=none cw90 ccw90 180"`
	Mirror      bool   `yaml:"mirror"`
	// ReplayDir replaces the camera with still images from a directory
	ReplayDir string `yaml:"replay_dir"`
	Loop      bool   `yaml:"loop"`
}

// DetectorConfig contains face detector settings
type DetectorConfig struct {
	// Model is a pigo cascade file or an SCRFD ONNX model
	Model      string  `yaml:"model" validate:"required"`
	InputSize  int     `yaml:"input_size" validate:"gte=32"`
	Confidence float64 `yaml:"confidence" validate:"gte=0,lte=1"`
	NMS        float64 `yaml:"nms" validate:"gte=0,lte=1"`
	MinSize    int     `yaml:"min_size" validate:"gte=0"`
	MaxSize    int     `yaml:"max_size" validate:"gte=0"`
	// ORTLibrary is the onnxruntime shared library, empty uses the platform default
	ORTLibrary string `yaml:"ort_library"`
}

// DisplayConfig contains presentation settings
type DisplayConfig struct {
	Preview bool `yaml:"preview"`
	// Width and Height of the overlay display in points, 0 uses the frame size
	Width   float64 `yaml:"width" validate:"gte=0"`
	Height  float64 `yaml:"height" validate:"gte=0"`
	Pad     float64 `yaml:"pad"`
	VOffset float64 `yaml:"v_offset"`
}

// ServerConfig contains HTTP preview settings
type ServerConfig struct {
	// Addr enables the HTTP preview when set, e.g. ":8080"
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Mode:     "overlay",
		Backend:  "pigo",
		MaxFaces: AutoMaxFaces,
		Camera: CameraConfig{
			FPS:         30,
			Width:       1280,
			Height:      720,
			Orientation: "none",
		},
		Detector: DetectorConfig{
			InputSize:  640,
			Confidence: 0.5,
			NMS:        0.4,
			MinSize:    20,
			MaxSize:    1000,
		},
		Display: DisplayConfig{
			Preview: true,
			Pad:     100,
			VOffset: 0.1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadFile overlays a YAML file onto cfg
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// AutoMaxFaces picks the mode's face limit: one face in composite mode,
// every face in overlay mode
const AutoMaxFaces = -1

// Default model paths per backend, used when detector.model is unset
const (
	DefaultPigoModel = "models/facefinder"
	DefaultONNXModel = "models/scrfd_10g.onnx"
)

// resolve fills values that depend on other settings
func (c *Config) resolve() {
	if c.MaxFaces == AutoMaxFaces {
		if c.Mode == "composite" {
			c.MaxFaces = 1
		} else {
			c.MaxFaces = 0
		}
	}
	if c.Detector.Model == "" {
		if c.Backend == "onnx" {
			c.Detector.Model = DefaultONNXModel
		} else {
			c.Detector.Model = DefaultPigoModel
		}
	}
}

var validate = validator.New()

// Validate checks value ranges and cross-field rules
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if cfg.Detector.MaxSize > 0 && cfg.Detector.MinSize > cfg.Detector.MaxSize {
		return fmt.Errorf("detector.min_size %d exceeds max_size %d", cfg.Detector.MinSize, cfg.Detector.MaxSize)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
