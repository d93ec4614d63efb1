// Package render composites the change masks of a page pair into the overlay
// image and exports overlays as PNG files or a paginated PDF.
//
// # Visual Encoding
//
//   - Paper stays the paper colour.
//   - Removed ink (old only) is drawn in the removed hue.
//   - Added ink (new only) is drawn in the added hue.
//   - Common ink is drawn in neutral gray so it recedes behind the changes.
//
// Each pixel blends from paper towards its class colour in proportion to the
// ink darkness that produced it, so line weight and anti-aliasing survive
// inside coloured regions. Light marks below the ink threshold blend towards
// the common gray with the same rule; pure paper stays pure paper.
//
// Blending goes through a 256-entry lookup table per class, so the output is
// a deterministic function of the inputs and the palette.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/drawdiff/internal/diff"
	"github.com/ironsheep/drawdiff/internal/failure"
)

// Palette is the fixed colour set of the overlay.
type Palette struct {
	Paper   colorful.Color
	Removed colorful.Color
	Added   colorful.Color
	Common  colorful.Color
}

// DefaultPalette returns paper white, red removals, blue additions and gray
// common ink.
func DefaultPalette() Palette {
	p, _ := ParsePalette("#ffffff", "#e00000", "#0050e0", "#808080")
	return p
}

// ParsePalette builds a palette from #rrggbb strings.
func ParsePalette(paper, removed, added, common string) (Palette, error) {
	var p Palette
	for _, f := range []struct {
		name string
		hex  string
		dst  *colorful.Color
	}{
		{"paper", paper, &p.Paper},
		{"removed", removed, &p.Removed},
		{"added", added, &p.Added},
		{"common", common, &p.Common},
	} {
		c, err := colorful.Hex(f.hex)
		if err != nil {
			return Palette{}, fmt.Errorf("invalid %s color %q: %w", f.name, f.hex, err)
		}
		*f.dst = c
	}
	return p, nil
}

type class int

const (
	classBackground class = iota
	classRemoved
	classAdded
	classCommon
	classCount
)

// lut maps (class, ink darkness) to an output colour.
type lut [classCount][256]color.NRGBA

func (p Palette) table() *lut {
	var t lut
	hues := [classCount]colorful.Color{
		classBackground: p.Common,
		classRemoved:    p.Removed,
		classAdded:      p.Added,
		classCommon:     p.Common,
	}
	for c := class(0); c < classCount; c++ {
		for d := 0; d < 256; d++ {
			r, g, b := p.Paper.BlendRgb(hues[c], float64(d)/255).Clamped().RGB255()
			t[c][d] = color.NRGBA{R: r, G: g, B: b, A: 255}
		}
	}
	return &t
}

// Render draws the overlay of aligned (old page in the new frame) and newG.
// All inputs must share the same size; a mismatch is a caller bug and is
// reported as failure.ErrStructuralInput.
func Render(aligned, newG *image.Gray, m *diff.Masks, p Palette) (*image.NRGBA, error) {
	w, h := newG.Rect.Dx(), newG.Rect.Dy()
	if aligned.Rect.Dx() != w || aligned.Rect.Dy() != h {
		return nil, fmt.Errorf("%w: overlay inputs differ in size: %dx%d vs %dx%d",
			failure.ErrStructuralInput, aligned.Rect.Dx(), aligned.Rect.Dy(), w, h)
	}
	for _, mk := range []*diff.Mask{m.Removed, m.Added, m.Common} {
		if mk.Width() != w || mk.Height() != h {
			return nil, fmt.Errorf("%w: mask %dx%d does not match %dx%d raster",
				failure.ErrStructuralInput, mk.Width(), mk.Height(), w, h)
		}
	}

	t := p.table()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		oldRow := aligned.Pix[aligned.PixOffset(aligned.Rect.Min.X, aligned.Rect.Min.Y+y):]
		newRow := newG.Pix[newG.PixOffset(newG.Rect.Min.X, newG.Rect.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			do := 255 - oldRow[x]
			dn := 255 - newRow[x]
			var c color.NRGBA
			switch {
			case m.Removed.Get(x, y):
				c = t[classRemoved][do]
			case m.Added.Get(x, y):
				c = t[classAdded][dn]
			case m.Common.Get(x, y):
				c = t[classCommon][max(do, dn)]
			default:
				c = t[classBackground][max(do, dn)]
			}
			dst[x*4+0] = c.R
			dst[x*4+1] = c.G
			dst[x*4+2] = c.B
			dst[x*4+3] = c.A
		}
	}
	return out, nil
}
