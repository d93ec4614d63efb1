// Package align resamples the old page of a pair into the pixel frame of the
// new page.
//
// Alignment works on ink intensity: both the output and the reference are
// single-channel rasters, so later steps never see mixed channel depths.
package align

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/ironsheep/drawdiff/internal/estimate"
	"github.com/ironsheep/drawdiff/internal/geom"
	"github.com/ironsheep/drawdiff/internal/raster"
)

// Paper is the fill for pixels that have no source.
var Paper = color.Gray{Y: 255}

// bandRows is the number of destination rows resampled between context
// checks.
const bandRows = 256

// identityEps is how far, in pixels, a transform may move the sheet corners
// and still be treated as the identity.
const identityEps = 0.05

// Align returns old resampled into the frame of new: same width and height as
// new, single channel, with paper white wherever old has no pixel.
//
// An Unaligned outcome reduces to centring old on a canvas of new's size,
// cropping or padding as needed. An Aligned identity between equally sized
// pages returns old's pixels without resampling.
func Align(ctx context.Context, oldPage, newPage *raster.Raster, outcome estimate.Outcome, lim raster.Limits) (*raster.Raster, error) {
	if oldPage == nil || newPage == nil {
		return nil, fmt.Errorf("align: nil raster")
	}
	w, h := newPage.Width(), newPage.Height()
	if err := lim.Check(w, h); err != nil {
		return nil, err
	}

	src := oldPage.Gray()
	var out *image.Gray
	switch o := outcome.(type) {
	case estimate.Aligned:
		if oldPage.Width() == w && oldPage.Height() == h && o.Transform.IsIdentity(w, h, identityEps) {
			out = src
			break
		}
		var err error
		out, err = Warp(ctx, src, o.Transform, w, h)
		if err != nil {
			return nil, err
		}
	default:
		out = CenterFit(src, w, h)
	}
	return raster.New(out, newPage.DPI())
}

// CenterFit places src centred on a w x h paper canvas. Larger sources are
// cropped symmetrically, smaller ones padded.
func CenterFit(src *image.Gray, w, h int) *image.Gray {
	if src.Rect.Dx() == w && src.Rect.Dy() == h && src.Rect.Min == (image.Point{}) {
		return src
	}
	canvas := imaging.New(w, h, Paper)
	fitted := imaging.PasteCenter(canvas, src)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := fitted.Pix[y*fitted.Stride:]
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// Warp maps src through tr into a w x h paper canvas with bilinear sampling.
// Rows are produced in bands so a cancelled context stops the work early.
func Warp(ctx context.Context, src *image.Gray, tr geom.Transform, w, h int) (*image.Gray, error) {
	if !tr.Finite() {
		return nil, fmt.Errorf("align: non-finite transform %s", tr)
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = Paper.Y
	}
	m := tr.Aff3()
	for y0 := 0; y0 < h; y0 += bandRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		band := out.SubImage(image.Rect(0, y0, w, min(h, y0+bandRows))).(*image.Gray)
		xdraw.BiLinear.Transform(band, m, src, src.Rect, xdraw.Src, nil)
	}
	return out, nil
}
