package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/drawdiff/internal/failure"
)

// createTestPNG encodes a width x height image filled with c and returns the
// PNG bytes.
func createTestPNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func TestNew_Normalizes(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		channels int
	}{
		{"gray", image.NewGray(image.Rect(0, 0, 4, 3)), 1},
		{"gray offset", image.NewGray(image.Rect(10, 10, 14, 13)), 1},
		{"gray16", image.NewGray16(image.Rect(0, 0, 4, 3)), 1},
		{"rgba", image.NewRGBA(image.Rect(0, 0, 4, 3)), 3},
		{"nrgba offset", image.NewNRGBA(image.Rect(5, 5, 9, 8)), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.img, 300)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if r.Width() != 4 || r.Height() != 3 {
				t.Errorf("dimensions: got %dx%d, want 4x3", r.Width(), r.Height())
			}
			if r.Bounds().Min != (image.Point{}) {
				t.Errorf("bounds not origin based: %v", r.Bounds())
			}
			if r.Channels() != tt.channels {
				t.Errorf("channels: got %d, want %d", r.Channels(), tt.channels)
			}
			if r.DPI() != 300 {
				t.Errorf("dpi: got %v, want 300", r.DPI())
			}
		})
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(nil, 0); !errors.Is(err, failure.ErrStructuralInput) {
		t.Errorf("nil image: expected structural error, got %v", err)
	}
	if _, err := New(image.NewGray(image.Rect(0, 0, 0, 10)), 0); !errors.Is(err, failure.ErrStructuralInput) {
		t.Errorf("zero area: expected structural error, got %v", err)
	}
}

func TestNew_DefaultDPI(t *testing.T) {
	r, err := New(image.NewGray(image.Rect(0, 0, 2, 2)), 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if r.DPI() != DefaultDPI {
		t.Errorf("dpi: got %v, want %v", r.DPI(), DefaultDPI)
	}
}

func TestGray_Luminance(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(2, 0, color.NRGBA{255, 0, 0, 255})
	img.SetNRGBA(3, 0, color.NRGBA{0, 0, 0, 0}) // transparent composites to paper

	r, err := New(img, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g := r.Gray()

	want := []uint8{255, 0, 76, 255}
	for x, w := range want {
		if got := g.GrayAt(x, 0).Y; got != w {
			t.Errorf("pixel %d: got %d, want %d", x, got, w)
		}
	}
}

func TestEqual(t *testing.T) {
	a, _ := Blank(8, 8, color.Gray{Y: 255}, 0)
	b, _ := Blank(8, 8, color.Gray{Y: 255}, 0)
	c, _ := Blank(8, 8, color.Gray{Y: 254}, 0)
	d, _ := Blank(8, 9, color.Gray{Y: 255}, 0)

	if !Equal(a, b) {
		t.Error("identical blanks should be equal")
	}
	if Equal(a, c) {
		t.Error("different fill should not be equal")
	}
	if Equal(a, d) {
		t.Error("different size should not be equal")
	}

	rgb, _ := New(image.NewNRGBA(image.Rect(0, 0, 8, 8)), 0)
	if Equal(a, rgb) {
		t.Error("different channel depth should not be equal")
	}
}

func TestFromBytes(t *testing.T) {
	data := createTestPNG(t, 20, 10, color.White)

	r, err := FromBytes(data, 200).Open(context.Background(), Limits{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if r.Width() != 20 || r.Height() != 10 {
		t.Errorf("dimensions: got %dx%d, want 20x10", r.Width(), r.Height())
	}
	if r.DPI() != 200 {
		t.Errorf("dpi: got %v, want 200", r.DPI())
	}
}

func TestFromBytes_Corrupt(t *testing.T) {
	data := createTestPNG(t, 20, 10, color.White)
	corrupt := append([]byte(nil), data[:len(data)/2]...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated png", corrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBytes(tt.data, 0).Open(context.Background(), Limits{})
			if !errors.Is(err, failure.ErrStructuralInput) {
				t.Errorf("expected structural error, got %v", err)
			}
		})
	}
}

func TestFromBytes_MaxPixels(t *testing.T) {
	data := createTestPNG(t, 100, 100, color.White)

	_, err := FromBytes(data, 0).Open(context.Background(), Limits{MaxPixels: 5000})
	if !errors.Is(err, failure.ErrResourceExhausted) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if _, err := FromBytes(data, 0).Open(context.Background(), Limits{MaxPixels: 10000}); err != nil {
		t.Fatalf("image at the limit should decode: %v", err)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(path, createTestPNG(t, 12, 7, color.Black), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	src := FromFile(path, 0)
	if src.Describe() != "page.png" {
		t.Errorf("Describe: got %q", src.Describe())
	}
	r, err := src.Open(context.Background(), Limits{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if r.Width() != 12 || r.Height() != 7 {
		t.Errorf("dimensions: got %dx%d, want 12x7", r.Width(), r.Height())
	}

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.png"), 0).Open(context.Background(), Limits{})
	if !errors.Is(err, failure.ErrStructuralInput) {
		t.Errorf("missing file: expected structural error, got %v", err)
	}
}

func TestSource_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FromImage(image.NewGray(image.Rect(0, 0, 2, 2)), 0).Open(ctx, Limits{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
