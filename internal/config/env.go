package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PUMPKINFACE_"

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// envBinding maps one variable onto a config field
type envBinding struct {
	key   string
	apply func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func float(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"DECORATION", str(func(c *Config) *string { return &c.Decoration })},
	{"MODE", str(func(c *Config) *string { return &c.Mode })},
	{"BACKEND", str(func(c *Config) *string { return &c.Backend })},
	{"MAX_FACES", integer(func(c *Config) *int { return &c.MaxFaces })},
	{"NO_FACE", str(func(c *Config) *string { return &c.NoFace })},
	{"CAMERA", integer(func(c *Config) *int { return &c.Camera.Index })},
	{"FPS", integer(func(c *Config) *int { return &c.Camera.FPS })},
	{"ORIENTATION", str(func(c *Config) *string { return &c.Camera.Orientation })},
	{"MIRROR", boolean(func(c *Config) *bool { return &c.Camera.Mirror })},
	{"REPLAY_DIR", str(func(c *Config) *string { return &c.Camera.ReplayDir })},
	{"MODEL", str(func(c *Config) *string { return &c.Detector.Model })},
	{"CONFIDENCE", float(func(c *Config) *float64 { return &c.Detector.Confidence })},
	{"ORT_LIBRARY", str(func(c *Config) *string { return &c.Detector.ORTLibrary })},
	{"PREVIEW", boolean(func(c *Config) *bool { return &c.Display.Preview })},
	{"DISPLAY_WIDTH", float(func(c *Config) *float64 { return &c.Display.Width })},
	{"DISPLAY_HEIGHT", float(func(c *Config) *float64 { return &c.Display.Height })},
	{"HTTP_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FILE", str(func(c *Config) *string { return &c.Log.File })},
}

// ApplyEnv overlays PUMPKINFACE_* variables onto cfg
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.key, v, err)
		}
	}
	return nil
}

// DotEnvLookup returns a lookup that prefers the process environment and
// falls back to the variables of a .env file. A missing file is not an
// error.
func DotEnvLookup(path string) (LookupFunc, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}
