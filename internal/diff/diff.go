// Package diff classifies the ink of two aligned pages into removed, added
// and common masks and groups the differences into change regions.
//
// # Content
//
// A pixel is content (drawing ink) when its intensity is strictly darker than
// the ink threshold. Raising the threshold can only add content.
//
// # Tolerance
//
// With a tolerance radius r > 0 each page's content is dilated by r pixels,
// written D below, before the two pages are combined:
//
//	removed = old ∧ ¬D(new)
//	added   = new ∧ ¬D(old)
//	common  = (old ∧ D(new)) ∨ (new ∧ D(old))
//
// The three masks are pairwise disjoint and every content pixel of either
// page falls in exactly one of them. With r = 0 this reduces to the plain
// boolean combination of the two content sets.
package diff

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/drawdiff/internal/failure"
)

// Options tunes mask construction and region grouping.
type Options struct {
	// InkThreshold: intensities below this value are content. 1..255.
	InkThreshold int
	// ToleranceRadius absorbs sub-pixel alignment jitter, in pixels.
	ToleranceRadius int
	// RegionMergeRadius joins differing pixels closer than this many pixels
	// into one change region.
	RegionMergeRadius int
	// MinRegionArea drops change regions with fewer differing pixels.
	MinRegionArea int
}

// DefaultOptions returns the settings used by the engine unless configured.
func DefaultOptions() Options {
	return Options{InkThreshold: 128, ToleranceRadius: 2, RegionMergeRadius: 10, MinRegionArea: 1}
}

// Masks is the classification of one aligned page pair.
type Masks struct {
	Removed *Mask
	Added   *Mask
	Common  *Mask

	OldContent int
	NewContent int
}

// Changed returns removed ∨ added.
func (m *Masks) Changed() *Mask { return m.Removed.Or(m.Added) }

// BuildMasks classifies the ink of oldG and newG, which must have identical
// bounds.
func BuildMasks(oldG, newG *image.Gray, opts Options) (*Masks, error) {
	if oldG.Rect.Dx() != newG.Rect.Dx() || oldG.Rect.Dy() != newG.Rect.Dy() {
		return nil, fmt.Errorf("%w: mask inputs differ in size: %dx%d vs %dx%d",
			failure.ErrStructuralInput, oldG.Rect.Dx(), oldG.Rect.Dy(), newG.Rect.Dx(), newG.Rect.Dy())
	}
	if opts.InkThreshold < 1 || opts.InkThreshold > 255 {
		return nil, fmt.Errorf("ink threshold %d outside 1..255", opts.InkThreshold)
	}

	co := Content(oldG, opts.InkThreshold)
	cn := Content(newG, opts.InkThreshold)
	do := Dilate(co, opts.ToleranceRadius)
	dn := Dilate(cn, opts.ToleranceRadius)

	return &Masks{
		Removed:    co.AndNot(dn),
		Added:      cn.AndNot(do),
		Common:     co.And(dn).Or(cn.And(do)),
		OldContent: co.Count(),
		NewContent: cn.Count(),
	}, nil
}

// Content marks pixels of g darker than threshold.
func Content(g *image.Gray, threshold int) *Mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := NewMask(w, h)
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			src := g.Pix[g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y):]
			dst := m.row(y)
			for x := 0; x < w; x++ {
				if int(src[x]) < threshold {
					dst[x>>6] |= 1 << (uint(x) & 63)
				}
			}
		}
	})
	return m
}

// Dilate grows m by r pixels in every direction, including diagonals, so each
// set pixel covers a (2r+1) x (2r+1) square. r <= 0 returns m unchanged.
func Dilate(m *Mask, r int) *Mask {
	if r <= 0 {
		return m
	}
	return m.dilateSquare(r)
}
