package replay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dudu/pumpkinface/internal/session"
)

func writePNG(t *testing.T, dir, name string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func shadeOf(img image.Image) uint8 {
	return color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y
}

func TestFilesReplaysInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "b.png", 20)
	writePNG(t, dir, "a.png", 10)
	writePNG(t, dir, "notes.txt", 0) // ignored by extension

	src, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if src.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", src.Len())
	}

	ctx := context.Background()
	for _, want := range []uint8{10, 20} {
		img, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read() failed: %v", err)
		}
		if got := shadeOf(img); got != want {
			t.Fatalf("shade = %d, want %d", got, want)
		}
	}
	if _, err := src.Read(ctx); !errors.Is(err, session.ErrSourceClosed) {
		t.Fatalf("Read() after last frame = %v, want ErrSourceClosed", err)
	}
}

func TestFilesLoop(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "only.png", 7)

	src, err := Open(dir, Options{Loop: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := src.Read(context.Background()); err != nil {
			t.Fatalf("Read() %d failed: %v", i, err)
		}
	}
}

func TestFilesPacingHonoursContext(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 1)
	writePNG(t, dir, "b.png", 2)

	src, err := Open(dir, Options{FPS: 1})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := src.Read(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("paced Read() = %v, want deadline exceeded", err)
	}
}

func TestOpenEmptyDirectory(t *testing.T) {
	if _, err := Open(t.TempDir(), Options{}); err == nil {
		t.Fatal("Open() on empty directory succeeded")
	}
}
