package estimate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/ironsheep/drawdiff/internal/features"
	"github.com/ironsheep/drawdiff/internal/geom"
)

// synthetic returns n correspondences of which the first inliers follow tr
// (with up to +-noise pixels of jitter) and the rest are random.
func synthetic(n, inliers int, tr geom.Transform, noise float64, seed uint64) []features.Correspondence {
	rng := rand.New(rand.NewPCG(seed, 99))
	out := make([]features.Correspondence, 0, n)
	for i := 0; i < n; i++ {
		a := geom.Point{X: rng.Float64() * 1000, Y: rng.Float64() * 800}
		var b geom.Point
		if i < inliers {
			b = tr.Apply(a)
			b.X += (rng.Float64()*2 - 1) * noise
			b.Y += (rng.Float64()*2 - 1) * noise
		} else {
			b = geom.Point{X: rng.Float64() * 1000, Y: rng.Float64() * 800}
		}
		out = append(out, features.Correspondence{A: a, B: b, Score: 0.5})
	}
	return out
}

func TestEstimate_RecoversKnownTransform(t *testing.T) {
	tests := []struct {
		name string
		tr   geom.Transform
	}{
		{"translation", geom.Transform{Scale: 1, TX: 25, TY: -14}},
		{"rotation", geom.Transform{Angle: 1.2 * math.Pi / 180, Scale: 1, TX: 8, TY: 3}},
		{"rotation and scale", geom.Transform{Angle: -0.02, Scale: 1.015, TX: -31, TY: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrs := synthetic(120, 80, tt.tr, 0.3, 42)
			out := Estimate(corrs, DefaultOptions())
			a, ok := out.(Aligned)
			if !ok {
				t.Fatalf("expected Aligned, got %v", out)
			}
			if !a.Valid() {
				t.Fatal("Aligned should be valid")
			}
			if math.Abs(a.Transform.Angle-tt.tr.Angle) > 1e-3 {
				t.Errorf("angle: got %v, want %v", a.Transform.Angle, tt.tr.Angle)
			}
			if math.Abs(a.Transform.Scale-tt.tr.Scale) > 1e-3 {
				t.Errorf("scale: got %v, want %v", a.Transform.Scale, tt.tr.Scale)
			}
			// Compare where it matters: the mapped corners of the sheet.
			for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 0, Y: 800}, {X: 1000, Y: 800}} {
				if d := a.Transform.Apply(p).Dist(tt.tr.Apply(p)); d > 0.5 {
					t.Errorf("corner %v off by %.3f px", p, d)
				}
			}
			if a.InlierCount < 80 || a.InlierCount > 85 {
				t.Errorf("inliers: got %d, want about 80", a.InlierCount)
			}
			if a.MatchCount != 120 {
				t.Errorf("match count: got %d, want 120", a.MatchCount)
			}
			if a.RMSE > 0.5 {
				t.Errorf("rmse: got %v", a.RMSE)
			}
		})
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	corrs := synthetic(60, 30, geom.Transform{Angle: 0.01, Scale: 1, TX: 4, TY: 4}, 0.5, 7)
	a := Estimate(corrs, DefaultOptions())
	b := Estimate(corrs, DefaultOptions())
	if a != b {
		t.Errorf("same input produced %v and %v", a, b)
	}
}

func TestEstimate_TooFewMatches(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		corrs := synthetic(n, n, geom.Identity(), 0, 1)
		out := Estimate(corrs, DefaultOptions())
		u, ok := out.(Unaligned)
		if !ok {
			t.Fatalf("n=%d: expected Unaligned, got %v", n, out)
		}
		if u.Reason != ReasonTooFewMatches {
			t.Errorf("n=%d: reason %q", n, u.Reason)
		}
		if out.Valid() {
			t.Errorf("n=%d: should not be valid", n)
		}
	}
	if out := Estimate(nil, DefaultOptions()); out.Valid() || out.Score() != 0 {
		t.Errorf("nil input: got %v", out)
	}
}

func TestEstimate_Degenerate(t *testing.T) {
	p := geom.Point{X: 100, Y: 100}
	corrs := make([]features.Correspondence, 10)
	for i := range corrs {
		corrs[i] = features.Correspondence{A: p, B: p}
	}
	out := Estimate(corrs, DefaultOptions())
	u, ok := out.(Unaligned)
	if !ok {
		t.Fatalf("expected Unaligned, got %v", out)
	}
	if u.Reason != ReasonDegenerate {
		t.Errorf("reason: got %q", u.Reason)
	}
}

func TestEstimate_NonFiniteInputIgnored(t *testing.T) {
	corrs := synthetic(40, 40, geom.Transform{Scale: 1, TX: 3}, 0, 5)
	corrs = append(corrs,
		features.Correspondence{A: geom.Point{X: math.NaN(), Y: 1}, B: geom.Point{X: 1, Y: 1}},
		features.Correspondence{A: geom.Point{X: 1, Y: 1}, B: geom.Point{X: math.Inf(1), Y: 1}},
	)
	out := Estimate(corrs, DefaultOptions())
	a, ok := out.(Aligned)
	if !ok {
		t.Fatalf("expected Aligned, got %v", out)
	}
	if !a.Transform.Finite() {
		t.Errorf("transform not finite: %v", a.Transform)
	}
	if a.MatchCount != 40 {
		t.Errorf("non-finite correspondences should be dropped, match count %d", a.MatchCount)
	}
}

func TestEstimate_ScaleOutOfBand(t *testing.T) {
	corrs := synthetic(50, 50, geom.Transform{Scale: 1.5}, 0, 3)
	out := Estimate(corrs, DefaultOptions())
	u, ok := out.(Unaligned)
	if !ok {
		t.Fatalf("expected Unaligned, got %v", out)
	}
	if u.Reason != ReasonScaleOutOfBand {
		t.Errorf("reason: got %q", u.Reason)
	}
}

func TestEstimate_RandomMatchesAreLowConfidence(t *testing.T) {
	corrs := synthetic(100, 0, geom.Identity(), 0, 11)
	out := Estimate(corrs, DefaultOptions())
	if out.Valid() {
		t.Fatalf("random correspondences should not align: %v", out)
	}
	if out.Score() >= DefaultOptions().MinInlierRatio {
		t.Errorf("score should stay below the minimum ratio, got %v", out.Score())
	}
}

func TestExact(t *testing.T) {
	e := Exact()
	if !e.Valid() || e.Score() != 1 {
		t.Errorf("Exact: got %v", e)
	}
	if !e.Transform.IsIdentity(100, 100, 0) {
		t.Errorf("Exact transform should be identity: %v", e.Transform)
	}
}
