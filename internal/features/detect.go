package features

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/drawdiff/internal/geom"
)

const (
	harrisK = 0.04

	// minResponse rejects corners produced by scanner noise on blank paper.
	minResponse = 1e-4
	// relResponse drops corners weaker than this fraction of the strongest.
	relResponse = 0.005

	gridCells = 8
	nmsRadius = 2

	descGrid    = 8
	descSpacing = 3.0
	orientR     = 7

	// margin keeps the rotated descriptor window inside the plane.
	margin = 16

	detectSigma = 1.0
	descSigma   = 1.6
)

// Options tunes detection and matching.
type Options struct {
	// MaxFeatures caps the number of keypoints per page.
	MaxFeatures int
	// WorkingSize is the long side of the downscaled working copy.
	WorkingSize int
	// RatioTest is the best/second-best distance ratio a match must beat.
	RatioTest float64
}

// DefaultOptions returns the settings used by the engine unless configured.
func DefaultOptions() Options {
	return Options{MaxFeatures: 1500, WorkingSize: 1600, RatioTest: 0.75}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = d.MaxFeatures
	}
	if o.WorkingSize <= 0 {
		o.WorkingSize = d.WorkingSize
	}
	if o.RatioTest <= 0 || o.RatioTest >= 1 {
		o.RatioTest = d.RatioTest
	}
	return o
}

// Keypoint is a detected corner with its descriptor.
type Keypoint struct {
	// Pos is the corner position in full-resolution pixels.
	Pos geom.Point
	// Response is the Harris corner strength.
	Response float64
	// Angle is the dominant ink direction in radians.
	Angle  float64
	Octave int
	Desc   Descriptor
}

type candidate struct {
	x, y     int
	sx, sy   float64
	response float32
}

// Detect finds up to opts.MaxFeatures keypoints in g.
//
// A raster without any corner (blank paper, a uniform fill) yields an empty
// slice.
func Detect(g *image.Gray, opts Options) []Keypoint {
	opts = opts.withDefaults()
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 2*margin+1 || h < 2*margin+1 {
		return nil
	}

	var work image.Image = g
	ww, wh := w, h
	if long := max(w, h); long > opts.WorkingSize {
		f := float64(opts.WorkingSize) / float64(long)
		ww = max(1, int(math.Round(float64(w)*f)))
		wh = max(1, int(math.Round(float64(h)*f)))
		work = imaging.Resize(g, ww, wh, imaging.Linear)
	}

	budget0 := opts.MaxFeatures
	var half image.Image
	hw, hh := ww/2, wh/2
	if hw >= 4*margin && hh >= 4*margin {
		budget0 = opts.MaxFeatures * 2 / 3
		half = imaging.Resize(work, hw, hh, imaging.Box)
	}

	// Maps octave coordinates to full-resolution pixel coordinates.
	toFull := func(x, y float64, ow, oh int) geom.Point {
		return geom.Point{
			X: (x+0.5)*float64(w)/float64(ow) - 0.5,
			Y: (y+0.5)*float64(h)/float64(oh) - 0.5,
		}
	}

	kps := detectOctave(work, budget0, 0)
	for i := range kps {
		kps[i].Pos = toFull(kps[i].Pos.X, kps[i].Pos.Y, ww, wh)
	}
	if half != nil {
		kps1 := detectOctave(half, opts.MaxFeatures-budget0, 1)
		for i := range kps1 {
			kps1[i].Pos = toFull(kps1[i].Pos.X, kps1[i].Pos.Y, hw, hh)
		}
		kps = append(kps, kps1...)
	}
	return kps
}

// detectOctave returns keypoints in the pixel frame of img.
func detectOctave(img image.Image, budget, octave int) []Keypoint {
	if budget <= 0 {
		return nil
	}
	base := darknessPlane(img, detectSigma)
	resp := harris(base)
	cands := selectCorners(resp, budget)
	if len(cands) == 0 {
		return nil
	}

	desc := darknessPlane(img, descSigma)
	kps := make([]Keypoint, 0, len(cands))
	for _, c := range cands {
		angle := orientation(base, c.x, c.y)
		d, ok := describe(desc, c.sx, c.sy, angle)
		if !ok {
			continue
		}
		kps = append(kps, Keypoint{
			Pos:      geom.Point{X: c.sx, Y: c.sy},
			Response: float64(c.response),
			Angle:    angle,
			Octave:   octave,
			Desc:     d,
		})
	}
	return kps
}

// harris computes the corner response for every pixel of p.
func harris(p *plane) *plane {
	gx, gy := sobel(p)
	sxx, syy, sxy := newPlane(p.w, p.h), newPlane(p.w, p.h), newPlane(p.w, p.h)
	for i := range p.pix {
		x, y := gx.pix[i], gy.pix[i]
		sxx.pix[i] = x * x
		syy.pix[i] = y * y
		sxy.pix[i] = x * y
	}
	smooth5(sxx)
	smooth5(syy)
	smooth5(sxy)

	r := newPlane(p.w, p.h)
	for i := range r.pix {
		a, b, c := sxx.pix[i], syy.pix[i], sxy.pix[i]
		tr := a + b
		r.pix[i] = a*b - c*c - harrisK*tr*tr
	}
	return r
}

// selectCorners applies non-maximum suppression, the response floor and grid
// bucketing, returning at most budget candidates ordered by response.
func selectCorners(r *plane, budget int) []candidate {
	var peak float32
	for y := margin; y < r.h-margin; y++ {
		for x := margin; x < r.w-margin; x++ {
			if v := r.pix[y*r.w+x]; v > peak {
				peak = v
			}
		}
	}
	floor := float32(math.Max(minResponse, relResponse*float64(peak)))
	if peak < floor {
		return nil
	}

	var cands []candidate
	for y := margin; y < r.h-margin; y++ {
		for x := margin; x < r.w-margin; x++ {
			v := r.pix[y*r.w+x]
			if v < floor || !isStrictMax(r, x, y) {
				continue
			}
			sx, sy := refine(r, x, y)
			cands = append(cands, candidate{x: x, y: y, sx: sx, sy: sy, response: v})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].response != cands[j].response {
			return cands[i].response > cands[j].response
		}
		return cands[i].y*r.w+cands[i].x < cands[j].y*r.w+cands[j].x
	})

	// First pass honours a per-cell cap, second pass fills from the rest.
	cellW := (r.w + gridCells - 1) / gridCells
	cellH := (r.h + gridCells - 1) / gridCells
	capPerCell := max(4, 2*budget/(gridCells*gridCells))
	counts := make([]int, gridCells*gridCells)
	taken := make([]bool, len(cands))
	out := make([]candidate, 0, min(budget, len(cands)))
	for i, c := range cands {
		if len(out) == budget {
			break
		}
		cell := (c.y/cellH)*gridCells + c.x/cellW
		if counts[cell] >= capPerCell {
			continue
		}
		counts[cell]++
		taken[i] = true
		out = append(out, c)
	}
	for i, c := range cands {
		if len(out) == budget {
			break
		}
		if !taken[i] {
			out = append(out, c)
		}
	}
	return out
}

// isStrictMax reports whether (x,y) wins its neighbourhood. Equal responses
// are broken by scan order so a plateau yields exactly one corner.
func isStrictMax(r *plane, x, y int) bool {
	v := r.pix[y*r.w+x]
	for dy := -nmsRadius; dy <= nmsRadius; dy++ {
		for dx := -nmsRadius; dx <= nmsRadius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := r.at(x+dx, y+dy)
			if n > v {
				return false
			}
			if n == v && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// refine fits a parabola through the response in x and y separately.
func refine(r *plane, x, y int) (float64, float64) {
	c := float64(r.at(x, y))
	off := func(m, p float64) float64 {
		den := m - 2*c + p
		if den >= 0 {
			return 0
		}
		d := 0.5 * (m - p) / den
		return math.Max(-0.5, math.Min(0.5, d))
	}
	dx := off(float64(r.at(x-1, y)), float64(r.at(x+1, y)))
	dy := off(float64(r.at(x, y-1)), float64(r.at(x, y+1)))
	return float64(x) + dx, float64(y) + dy
}

// orientation returns the direction from (x,y) to the ink centroid of a disc
// of radius orientR.
func orientation(p *plane, x, y int) float64 {
	var m10, m01 float64
	for dy := -orientR; dy <= orientR; dy++ {
		for dx := -orientR; dx <= orientR; dx++ {
			if dx*dx+dy*dy > orientR*orientR {
				continue
			}
			v := float64(p.at(x+dx, y+dy))
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	if m10 == 0 && m01 == 0 {
		return 0
	}
	return math.Atan2(m01, m10)
}
