package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, _, err := Parse("pumpkinface", []string{"-d", "pumpkin.png"}, envMap(nil), nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Mode != "overlay" || cfg.Backend != "pigo" {
		t.Errorf("mode/backend = %s/%s, want overlay/pigo", cfg.Mode, cfg.Backend)
	}
	if cfg.Detector.Model != DefaultPigoModel {
		t.Errorf("model = %q, want %q", cfg.Detector.Model, DefaultPigoModel)
	}
	if cfg.Display.Pad != 100 || cfg.Display.VOffset != 0.1 {
		t.Errorf("pad/voffset = %v/%v, want 100/0.1", cfg.Display.Pad, cfg.Display.VOffset)
	}
	if cfg.MaxFaces != 0 {
		t.Errorf("overlay max faces = %d, want 0", cfg.MaxFaces)
	}
}

func TestMaxFacesFollowsMode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"overlay", []string{"-d", "p.png"}, 0},
		{"composite", []string{"-d", "p.png", "-mode", "composite"}, 1},
		{"composite explicit all", []string{"-d", "p.png", "-mode", "composite", "-max-faces", "0"}, 0},
		{"overlay explicit", []string{"-d", "p.png", "-max-faces", "2"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := Parse("pumpkinface", tt.args, envMap(nil), nil)
			if err != nil {
				t.Fatalf("Parse() failed: %v", err)
			}
			if cfg.MaxFaces != tt.want {
				t.Fatalf("MaxFaces = %d, want %d", cfg.MaxFaces, tt.want)
			}
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	file := writeFile(t, "pumpkinface.yaml", `
decoration: from-file.png
mode: composite
backend: onnx
max_faces: 1
camera:
  fps: 15
  orientation: cw90
  mirror: true
display:
  pad: 40
log:
  level: debug
`)
	env := envMap(map[string]string{
		"PUMPKINFACE_FPS":       "24",
		"PUMPKINFACE_MAX_FACES": "3",
	})

	cfg, src, err := Parse("pumpkinface", []string{"-config", file, "-max-faces", "2"}, env, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if src.File != file {
		t.Errorf("source file = %q", src.File)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file decoration", cfg.Decoration, "from-file.png"},
		{"file mode", cfg.Mode, "composite"},
		{"file orientation", cfg.Camera.Orientation, "cw90"},
		{"file mirror", cfg.Camera.Mirror, true},
		{"file pad", cfg.Display.Pad, 40.0},
		{"default kept", cfg.Display.VOffset, 0.1},
		{"env over file", cfg.Camera.FPS, 24},
		{"flag over env", cfg.MaxFaces, 2},
		{"backend model", cfg.Detector.Model, DefaultONNXModel},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{"missing decoration", nil, nil, "Decoration is required"},
		{"bad mode", []string{"-d", "p.png", "-mode", "hologram"}, nil, "Mode must be one of"},
		{"bad orientation", []string{"-d", "p.png", "-orientation", "sideways"}, nil, "Orientation"},
		{"bad policy", []string{"-d", "p.png", "-no-face", "sometimes"}, nil, "NoFace"},
		{"negative faces", []string{"-d", "p.png", "-max-faces", "-2"}, nil, "MaxFaces"},
		{"bad env int", []string{"-d", "p.png"}, map[string]string{"PUMPKINFACE_FPS": "fast"}, "PUMPKINFACE_FPS"},
		{"stray argument", []string{"-d", "p.png", "extra"}, nil, "unexpected arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse("pumpkinface", tt.args, envMap(tt.env), func(*flag.FlagSet) {})
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseHelp(t *testing.T) {
	called := false
	_, _, err := Parse("pumpkinface", []string{"-h"}, envMap(nil), func(*flag.FlagSet) { called = true })
	if !errors.Is(err, flag.ErrHelp) || !called {
		t.Fatalf("Parse(-h) = %v, usage called = %v", err, called)
	}
}

func TestDotEnvLookup(t *testing.T) {
	path := writeFile(t, ".env", "PUMPKINFACE_MODE=composite\nPUMPKINFACE_TEST_ONLY=from-file\n")
	t.Setenv("PUMPKINFACE_TEST_ONLY", "from-process")

	lookup, err := DotEnvLookup(path)
	if err != nil {
		t.Fatalf("DotEnvLookup() failed: %v", err)
	}
	if v, _ := lookup("PUMPKINFACE_MODE"); v != "composite" {
		t.Errorf("file value = %q, want composite", v)
	}
	if v, _ := lookup("PUMPKINFACE_TEST_ONLY"); v != "from-process" {
		t.Errorf("process value = %q, want process env to win", v)
	}

	if _, err := DotEnvLookup(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env returned %v", err)
	}
}

func TestValidateSizeRange(t *testing.T) {
	cfg := Default()
	cfg.Decoration = "p.png"
	cfg.resolve()
	cfg.Detector.MinSize, cfg.Detector.MaxSize = 500, 100
	if err := Validate(&cfg); err == nil {
		t.Fatal("Validate() accepted min_size > max_size")
	}
}
