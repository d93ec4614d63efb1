// Package fixture builds synthetic drawing sheets for tests: ruled frames,
// line work, filled symbols and 7x13 bitmap text on white paper.
package fixture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"testing"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/drawdiff/internal/geom"
)

const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789-/#"

// Drawing returns a w x h sheet with deterministic content derived from seed.
func Drawing(w, h int, seed uint64) *image.Gray {
	img := White(w, h)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	// Frame
	Rect(img, 4, 4, w-5, h-5, 2)

	// Line work
	for i := 0; i < (w+h)/40; i++ {
		x0 := 10 + rng.IntN(max(1, w-20))
		y0 := 10 + rng.IntN(max(1, h-20))
		n := 20 + rng.IntN(max(1, w/4))
		if rng.IntN(2) == 0 {
			HLine(img, x0, min(w-10, x0+n), y0, 1+rng.IntN(2))
		} else {
			VLine(img, x0, y0, min(h-10, y0+n), 1+rng.IntN(2))
		}
	}

	// Symbols
	for i := 0; i < (w*h)/40000+2; i++ {
		x := 20 + rng.IntN(max(1, w-60))
		y := 20 + rng.IntN(max(1, h-60))
		s := 6 + rng.IntN(14)
		if rng.IntN(2) == 0 {
			Fill(img, x, y, x+s, y+s/2+3)
		} else {
			Rect(img, x, y, x+s, y+s, 1)
		}
	}

	// Annotations
	for i := 0; i < (w*h)/6000+4; i++ {
		n := 4 + rng.IntN(8)
		b := make([]byte, n)
		for k := range b {
			b[k] = letters[rng.IntN(len(letters))]
		}
		x := 12 + rng.IntN(max(1, w-12-7*n-12))
		y := 24 + rng.IntN(max(1, h-40))
		Text(img, x, y, string(b))
	}
	return img
}

// White returns a blank sheet.
func White(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// Text draws s with its baseline at y.
func Text(img *image.Gray, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// Fill paints the rectangle [x0,x1) x [y0,y1) black.
func Fill(img *image.Gray, x0, y0, x1, y1 int) {
	r := image.Rect(x0, y0, x1, y1).Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Pix[y*img.Stride+x] = 0
		}
	}
}

func HLine(img *image.Gray, x0, x1, y, thick int) { Fill(img, x0, y, x1, y+thick) }
func VLine(img *image.Gray, x, y0, y1, thick int) { Fill(img, x, y0, x+thick, y1) }

// Rect draws a rectangle outline with corners (x0,y0) and (x1,y1) inclusive.
func Rect(img *image.Gray, x0, y0, x1, y1, thick int) {
	HLine(img, x0, x1+1, y0, thick)
	HLine(img, x0, x1+1, y1-thick+1, thick)
	VLine(img, x0, y0, y1+1, thick)
	VLine(img, x1-thick+1, y0, y1+1, thick)
}

// Shift returns img translated by (dx,dy) on white paper.
func Shift(img *image.Gray, dx, dy int) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := White(w, h)
	for y := 0; y < h; y++ {
		sy := y - dy
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x - dx
			if sx < 0 || sx >= w {
				continue
			}
			out.Pix[y*out.Stride+x] = img.Pix[sy*img.Stride+sx]
		}
	}
	return out
}

// Warp resamples img through tr (source to destination) with bilinear
// interpolation on white paper of the same size.
func Warp(img *image.Gray, tr geom.Transform) *image.Gray {
	out := White(img.Rect.Dx(), img.Rect.Dy())
	xdraw.BiLinear.Transform(out, tr.Aff3(), img, img.Rect, xdraw.Src, nil)
	return out
}

// Clone returns a deep copy of img.
func Clone(img *image.Gray) *image.Gray {
	out := image.NewGray(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

// PNG encodes img or fails the test.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}
