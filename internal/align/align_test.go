package align

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/ironsheep/drawdiff/internal/estimate"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/fixture"
	"github.com/ironsheep/drawdiff/internal/geom"
	"github.com/ironsheep/drawdiff/internal/raster"
)

func gray(t *testing.T, img *image.Gray, dpi float64) *raster.Raster {
	t.Helper()
	r, err := raster.New(img, dpi)
	if err != nil {
		t.Fatalf("raster.New failed: %v", err)
	}
	return r
}

func TestAlign_UnalignedSameSize(t *testing.T) {
	img := fixture.Drawing(200, 150, 1)
	old := gray(t, img, 150)
	nw := gray(t, fixture.White(200, 150), 300)

	out, err := Align(context.Background(), old, nw, estimate.Unaligned{}, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if !raster.Equal(out, old) {
		t.Error("identity fallback on equal sizes should keep pixels")
	}
	if out.DPI() != 300 {
		t.Errorf("dpi should follow the new page: got %v", out.DPI())
	}
}

func TestAlign_CenterCropAndPad(t *testing.T) {
	big := fixture.White(10, 10)
	big.Pix[5*big.Stride+5] = 0

	out, err := Align(context.Background(), gray(t, big, 0), gray(t, fixture.White(6, 6), 0), estimate.Unaligned{}, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if out.Width() != 6 || out.Height() != 6 {
		t.Fatalf("size: got %dx%d, want 6x6", out.Width(), out.Height())
	}
	if got := out.Gray().GrayAt(3, 3).Y; got != 0 {
		t.Errorf("cropped ink should land at (3,3), got %d", got)
	}

	small := image.NewGray(image.Rect(0, 0, 4, 4)) // all black
	out, err = Align(context.Background(), gray(t, small, 0), gray(t, fixture.White(8, 8), 0), estimate.Unaligned{}, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	g := out.Gray()
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			inside := x >= 2 && x < 6 && y >= 2 && y < 6
			v := g.GrayAt(x, y).Y
			if inside && v != 0 {
				t.Errorf("(%d,%d) should be ink, got %d", x, y, v)
			}
			if !inside && v != 255 {
				t.Errorf("(%d,%d) should be paper, got %d", x, y, v)
			}
		}
	}
}

func TestAlign_Translation(t *testing.T) {
	src := fixture.White(60, 40)
	fixture.Fill(src, 10, 10, 20, 20)

	tr := geom.Transform{Scale: 1, TX: 5, TY: 3}
	outcome := estimate.Aligned{Transform: tr, InlierRatio: 0.9}
	out, err := Align(context.Background(), gray(t, src, 0), gray(t, fixture.White(60, 40), 0), outcome, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	g := out.Gray()
	for y := 14; y < 22; y++ {
		for x := 16; x < 24; x++ {
			if v := g.GrayAt(x, y).Y; v != 0 {
				t.Fatalf("(%d,%d) should be ink after shift, got %d", x, y, v)
			}
		}
	}
	for _, p := range []image.Point{{11, 11}, {2, 2}, {40, 30}} {
		if v := g.GrayAt(p.X, p.Y).Y; v != 255 {
			t.Errorf("%v should be paper, got %d", p, v)
		}
	}
}

func TestAlign_OutOfBoundsIsPaper(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 50, 50)) // all black
	tr := geom.Transform{Scale: 1, TX: 30, TY: 0}
	out, err := Align(context.Background(), gray(t, src, 0), gray(t, fixture.White(50, 50), 0),
		estimate.Aligned{Transform: tr}, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	g := out.Gray()
	if v := g.GrayAt(5, 25).Y; v != 255 {
		t.Errorf("uncovered pixel should be paper, got %d", v)
	}
	if v := g.GrayAt(40, 25).Y; v != 0 {
		t.Errorf("covered pixel should be ink, got %d", v)
	}
}

func TestAlign_OutputMatchesNewSize(t *testing.T) {
	src := fixture.Drawing(300, 200, 4)
	tr := geom.Transform{Angle: 0.01, Scale: 1, TX: -3, TY: 2}
	out, err := Align(context.Background(), gray(t, src, 0), gray(t, fixture.White(320, 180), 0),
		estimate.Aligned{Transform: tr}, raster.Limits{})
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if out.Width() != 320 || out.Height() != 180 || out.Channels() != 1 {
		t.Errorf("got %dx%d/%d, want 320x180/1", out.Width(), out.Height(), out.Channels())
	}
}

func TestAlign_ResourceLimit(t *testing.T) {
	r := gray(t, fixture.White(100, 100), 0)
	_, err := Align(context.Background(), r, r, estimate.Unaligned{}, raster.Limits{MaxPixels: 5000})
	if !errors.Is(err, failure.ErrResourceExhausted) {
		t.Errorf("expected resource error, got %v", err)
	}
}

func TestWarp_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Warp(ctx, fixture.White(10, 10), geom.Transform{Scale: 1, TX: 1}, 10, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
