// Package estimate fits the similarity transform between two pages from
// feature correspondences while rejecting outliers.
//
// # Algorithm
//
// RANSAC over two-point minimal samples:
//
//  1. Draw two correspondences with a seeded PCG generator, so identical
//     input always produces identical output.
//  2. Solve the similarity exactly. Samples whose points nearly coincide are
//     discarded before solving, and candidates whose scale leaves the band
//     [1-ScaleTolerance, 1+ScaleTolerance] or that contain NaN/Inf are
//     dropped without being scored.
//  3. Count correspondences whose residual is below InlierThreshold pixels;
//     keep the candidate with the most inliers (lowest residual sum on ties).
//     The iteration budget shrinks adaptively as the best inlier ratio grows.
//  4. Refit on the winning inlier set with the closed-form least-squares
//     similarity (Umeyama), recount inliers and refit once more.
//
// The result is an Outcome: Aligned when the refined transform is supported
// by at least MinMatches inliers and MinInlierRatio of all correspondences,
// Unaligned otherwise. Unaligned is a normal result, not an error.
package estimate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ironsheep/drawdiff/internal/features"
	"github.com/ironsheep/drawdiff/internal/geom"
)

// Options tunes the estimator.
type Options struct {
	// InlierThreshold is the residual in pixels below which a correspondence
	// supports a candidate.
	InlierThreshold float64
	MinInlierRatio  float64
	MinMatches      int
	// ScaleTolerance bounds |scale-1|.
	ScaleTolerance float64
	Iterations     int
	Seed           uint64
}

// DefaultOptions returns the settings used by the engine unless configured.
func DefaultOptions() Options {
	return Options{
		InlierThreshold: 3,
		MinInlierRatio:  0.15,
		MinMatches:      4,
		ScaleTolerance:  0.05,
		Iterations:      2000,
		Seed:            1,
	}
}

// minSpan is the smallest point separation, in pixels, that a minimal sample
// or an inlier set must have for its scale and angle to be well conditioned.
const minSpan = 4.0

// confidence drives the adaptive iteration budget.
const confidence = 0.999

// Reason explains an Unaligned outcome.
type Reason string

const (
	ReasonTooFewMatches  Reason = "too_few_matches"
	ReasonDegenerate     Reason = "degenerate"
	ReasonScaleOutOfBand Reason = "scale_out_of_band"
	ReasonLowInlierRatio Reason = "low_inlier_ratio"
	ReasonForced         Reason = "identity_forced" // estimation skipped by the caller
)

// Outcome is either Aligned or Unaligned.
type Outcome interface {
	// Valid reports whether a transform may be applied.
	Valid() bool
	// Score is the alignment quality in [0,1].
	Score() float64
	// Matches is the number of correspondences considered.
	Matches() int
	String() string
	outcome()
}

// Aligned carries a transform supported by enough correspondences.
type Aligned struct {
	Transform   geom.Transform
	InlierRatio float64
	InlierCount int
	MatchCount  int
	// RMSE is the root mean square residual of the inliers in pixels.
	RMSE float64
}

func (Aligned) Valid() bool      { return true }
func (a Aligned) Score() float64 { return a.InlierRatio }
func (a Aligned) Matches() int   { return a.MatchCount }
func (Aligned) outcome()         {}

func (a Aligned) String() string {
	return fmt.Sprintf("aligned %s inliers=%d/%d rmse=%.2f", a.Transform, a.InlierCount, a.MatchCount, a.RMSE)
}

// Unaligned means no transform could be trusted; callers fall back to the
// identity and record the low score.
type Unaligned struct {
	Reason     Reason
	MatchCount int
	// BestInlierRatio is the support of the best rejected candidate, if any.
	BestInlierRatio float64
}

func (Unaligned) Valid() bool      { return false }
func (u Unaligned) Score() float64 { return u.BestInlierRatio }
func (u Unaligned) Matches() int   { return u.MatchCount }
func (Unaligned) outcome()         {}

func (u Unaligned) String() string {
	return fmt.Sprintf("unaligned (%s) matches=%d best=%.2f", u.Reason, u.MatchCount, u.BestInlierRatio)
}

// Exact returns the outcome used for bit-identical rasters.
func Exact() Aligned {
	return Aligned{Transform: geom.Identity(), InlierRatio: 1}
}

// Estimate fits a similarity transform mapping Correspondence.A onto
// Correspondence.B.
func Estimate(corrs []features.Correspondence, opts Options) Outcome {
	opts = opts.withDefaults()

	pts := make([]features.Correspondence, 0, len(corrs))
	for _, c := range corrs {
		if c.A.Finite() && c.B.Finite() {
			pts = append(pts, c)
		}
	}
	n := len(pts)
	if n < opts.MinMatches {
		return Unaligned{Reason: ReasonTooFewMatches, MatchCount: n}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, uint64(n)))
	thr2 := opts.InlierThreshold * opts.InlierThreshold

	var (
		best      geom.Transform
		bestCount int
		bestCost  = math.Inf(1)
		sampled   bool
		scaleMiss bool
	)
	limit := opts.Iterations
	for it := 0; it < limit; it++ {
		i := rng.IntN(n)
		j := rng.IntN(n - 1)
		if j >= i {
			j++
		}
		tr, ok := solvePair(pts[i], pts[j])
		if !ok {
			continue
		}
		sampled = true
		if math.Abs(tr.Scale-1) > opts.ScaleTolerance {
			scaleMiss = true
			continue
		}
		count, cost := score(pts, tr, thr2)
		if count > bestCount || (count == bestCount && cost < bestCost) {
			best, bestCount, bestCost = tr, count, cost
			limit = min(opts.Iterations, adaptiveLimit(float64(count)/float64(n), it+1))
		}
	}

	if bestCount == 0 {
		reason := ReasonDegenerate
		if sampled && scaleMiss {
			reason = ReasonScaleOutOfBand
		}
		return Unaligned{Reason: reason, MatchCount: n}
	}

	// Least-squares refinement, two passes.
	for pass := 0; pass < 2; pass++ {
		inl := inliers(pts, best, thr2)
		refined, ok := fitLeastSquares(inl)
		if !ok || math.Abs(refined.Scale-1) > opts.ScaleTolerance {
			break
		}
		count, cost := score(pts, refined, thr2)
		if count < bestCount {
			break
		}
		best, bestCount, bestCost = refined, count, cost
	}

	ratio := float64(bestCount) / float64(n)
	if bestCount < opts.MinMatches || ratio < opts.MinInlierRatio {
		return Unaligned{Reason: ReasonLowInlierRatio, MatchCount: n, BestInlierRatio: ratio}
	}

	return Aligned{
		Transform:   best,
		InlierRatio: ratio,
		InlierCount: bestCount,
		MatchCount:  n,
		RMSE:        math.Sqrt(bestCost / float64(bestCount)),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InlierThreshold <= 0 {
		o.InlierThreshold = d.InlierThreshold
	}
	if o.MinMatches < 2 {
		o.MinMatches = d.MinMatches
	}
	if o.ScaleTolerance <= 0 {
		o.ScaleTolerance = d.ScaleTolerance
	}
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.MinInlierRatio < 0 {
		o.MinInlierRatio = d.MinInlierRatio
	}
	return o
}

// solvePair returns the similarity taking (a.A, b.A) onto (a.B, b.B).
func solvePair(a, b features.Correspondence) (geom.Transform, bool) {
	dp := b.A.Sub(a.A)
	dq := b.B.Sub(a.B)
	lp, lq := dp.Len(), dq.Len()
	if lp < minSpan || lq < minSpan {
		return geom.Transform{}, false
	}
	scale := lq / lp
	angle := math.Atan2(dp.Cross(dq), dp.Dot(dq))
	tr := geom.Transform{Angle: angle, Scale: scale}
	o := tr.Apply(a.A)
	tr.TX, tr.TY = a.B.X-o.X, a.B.Y-o.Y
	if !tr.Finite() {
		return geom.Transform{}, false
	}
	return tr, true
}

// score counts inliers and sums their squared residuals.
func score(pts []features.Correspondence, tr geom.Transform, thr2 float64) (int, float64) {
	count := 0
	var cost float64
	for _, c := range pts {
		p := tr.Apply(c.A)
		dx, dy := p.X-c.B.X, p.Y-c.B.Y
		if d2 := dx*dx + dy*dy; d2 < thr2 {
			count++
			cost += d2
		}
	}
	return count, cost
}

func inliers(pts []features.Correspondence, tr geom.Transform, thr2 float64) []features.Correspondence {
	out := make([]features.Correspondence, 0, len(pts))
	for _, c := range pts {
		p := tr.Apply(c.A)
		dx, dy := p.X-c.B.X, p.Y-c.B.Y
		if dx*dx+dy*dy < thr2 {
			out = append(out, c)
		}
	}
	return out
}

// fitLeastSquares returns the similarity minimizing the squared residuals of
// pts. It fails when the source points are too tightly clustered for a
// well-conditioned rotation and scale.
func fitLeastSquares(pts []features.Correspondence) (geom.Transform, bool) {
	if len(pts) < 2 {
		return geom.Transform{}, false
	}
	var ma, mb geom.Point
	for _, c := range pts {
		ma = ma.Add(c.A)
		mb = mb.Add(c.B)
	}
	k := 1 / float64(len(pts))
	ma, mb = ma.Scale(k), mb.Scale(k)

	var sxx, sxy, varA float64
	for _, c := range pts {
		a := c.A.Sub(ma)
		b := c.B.Sub(mb)
		sxx += a.Dot(b)
		sxy += a.Cross(b)
		varA += a.Dot(a)
	}
	if varA*k < minSpan*minSpan {
		return geom.Transform{}, false
	}
	tr := geom.FromCoefficients(sxx/varA, sxy/varA, 0, 0)
	o := tr.Apply(ma)
	tr.TX, tr.TY = mb.X-o.X, mb.Y-o.Y
	if !tr.Finite() {
		return geom.Transform{}, false
	}
	return tr, true
}

// adaptiveLimit is the number of iterations needed to draw one all-inlier
// pair with the configured confidence at inlier ratio w.
func adaptiveLimit(w float64, done int) int {
	if w >= 1 {
		return done
	}
	p := w * w
	if p <= 0 {
		return math.MaxInt32
	}
	need := math.Log(1-confidence) / math.Log(1-p)
	if math.IsNaN(need) || need > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(done, int(math.Ceil(need)))
}
