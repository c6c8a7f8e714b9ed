// Package replay provides a frame source that plays still images from a
// directory, for running the pipeline without a camera.
package replay

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dudu/pumpkinface/internal/session"
)

// Files replays decoded images in name order
type Files struct {
	frames   []image.Image
	names    []string
	interval time.Duration
	loop     bool

	next int
	last time.Time
}

// Options controls replay pacing
type Options struct {
	// FPS paces Read, 0 delivers frames as fast as they are asked for
	FPS int
	// Loop restarts from the first image instead of closing
	Loop bool
}

// Open decodes every .jpg, .jpeg and .png file in dir
func Open(dir string, opts Options) (*Files, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}

	f := &Files{names: names, loop: opts.Loop}
	if opts.FPS > 0 {
		f.interval = time.Second / time.Duration(opts.FPS)
	}
	for _, name := range names {
		img, err := decode(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		f.frames = append(f.frames, img)
	}
	return f, nil
}

func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Len returns the number of frames
func (f *Files) Len() int {
	return len(f.frames)
}

// Read returns the next frame, waiting for the pacing interval. It is
// called from a single worker goroutine.
func (f *Files) Read(ctx context.Context) (image.Image, error) {
	if f.next >= len(f.frames) {
		if !f.loop {
			return nil, session.ErrSourceClosed
		}
		f.next = 0
	}

	if f.interval > 0 && !f.last.IsZero() {
		if wait := f.interval - time.Since(f.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := f.frames[f.next]
	f.next++
	f.last = time.Now()
	return img, nil
}
