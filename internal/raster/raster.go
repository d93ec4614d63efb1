package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/drawdiff/internal/failure"
)

// DefaultDPI is used when a raster is created without a resolution tag.
const DefaultDPI = 150.0

// Raster is an immutable page image with a resolution tag.
type Raster struct {
	img image.Image
	dpi float64
}

// New wraps img as a Raster. Gray images stay single channel; every other
// colour model is converted to NRGBA. A dpi <= 0 is replaced by DefaultDPI.
//
// Returns an error wrapping failure.ErrStructuralInput when img is nil or has
// zero area.
func New(img image.Image, dpi float64) (*Raster, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", failure.ErrStructuralInput)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-area raster %dx%d", failure.ErrStructuralInput, b.Dx(), b.Dy())
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Raster{img: normalize(img), dpi: dpi}, nil
}

// normalize returns img as an origin-based *image.Gray or *image.NRGBA.
func normalize(img image.Image) image.Image {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		if b.Min == (image.Point{}) {
			return src
		}
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	case *image.Gray16:
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[y*dst.Stride+x] = uint8(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return dst
	case *image.NRGBA:
		if b.Min == (image.Point{}) {
			return src
		}
	}
	// imaging.Clone always yields an origin-based NRGBA.
	return imaging.Clone(img)
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.img.Bounds().Dx() }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.img.Bounds().Dy() }

// Bounds returns the origin-based raster bounds.
func (r *Raster) Bounds() image.Rectangle { return r.img.Bounds() }

// DPI returns the resolution tag.
func (r *Raster) DPI() float64 { return r.dpi }

// Pixels returns width*height.
func (r *Raster) Pixels() int { return r.Width() * r.Height() }

// Channels returns 1 for grayscale rasters and 3 for colour rasters.
func (r *Raster) Channels() int {
	if _, ok := r.img.(*image.Gray); ok {
		return 1
	}
	return 3
}

// Image returns the underlying pixels. The result must not be modified.
func (r *Raster) Image() image.Image { return r.img }

// Gray returns a single-channel ink intensity view of the raster using
// ITU-R BT.601 luminance weights (0.299*R + 0.587*G + 0.114*B). Transparent
// pixels are composited over white.
//
// For grayscale rasters the underlying image is returned without copying and
// must not be modified.
func (r *Raster) Gray() *image.Gray {
	switch src := r.img.(type) {
	case *image.Gray:
		return src
	case *image.NRGBA:
		return grayFromNRGBA(src)
	}
	// New never stores anything else, but keep a generic path.
	return grayFromNRGBA(imaging.Clone(r.img))
}

func grayFromNRGBA(src *image.NRGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			lum := 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
			if a := p[3]; a != 255 {
				af := float64(a) / 255.0
				lum = lum*af + 255.0*(1-af)
			}
			out[x] = uint8(lum + 0.5)
		}
	}
	return dst
}

// Equal reports whether a and b have identical dimensions, channel depth and
// pixel values.
func Equal(a, b *Raster) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Width() != b.Width() || a.Height() != b.Height() || a.Channels() != b.Channels() {
		return false
	}
	switch ai := a.img.(type) {
	case *image.Gray:
		bi := b.img.(*image.Gray)
		return equalRows(ai.Pix, bi.Pix, ai.Stride, bi.Stride, a.Width(), a.Height())
	case *image.NRGBA:
		bi, ok := b.img.(*image.NRGBA)
		if !ok {
			return false
		}
		return equalRows(ai.Pix, bi.Pix, ai.Stride, bi.Stride, a.Width()*4, a.Height())
	}
	return false
}

func equalRows(a, b []byte, strideA, strideB, rowLen, rows int) bool {
	for y := 0; y < rows; y++ {
		if !bytes.Equal(a[y*strideA:y*strideA+rowLen], b[y*strideB:y*strideB+rowLen]) {
			return false
		}
	}
	return true
}

// Blank returns a single-channel raster filled with c.
func Blank(width, height int, c color.Gray, dpi float64) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: zero-area raster %dx%d", failure.ErrStructuralInput, width, height)
	}
	g := image.NewGray(image.Rect(0, 0, width, height))
	if c.Y != 0 {
		for i := range g.Pix {
			g.Pix[i] = c.Y
		}
	}
	return New(g, dpi)
}
