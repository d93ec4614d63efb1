package features

import (
	"context"
	"math"
	"sort"

	"github.com/ironsheep/drawdiff/internal/geom"
	"github.com/ironsheep/drawdiff/internal/raster"
)

// Correspondence pairs a point on page A with the point on page B believed to
// show the same physical feature.
type Correspondence struct {
	A geom.Point `json:"a"`
	B geom.Point `json:"b"`
	// Distance is the descriptor distance of the match.
	Distance float64 `json:"distance"`
	// Score is 1 - best/second-best distance, in [0,1]; higher is less
	// ambiguous.
	Score float64 `json:"score"`
}

// Match pairs keypoints of a with keypoints of b using nearest-neighbour
// search and the ratio test. When several keypoints of a pick the same
// keypoint of b only the closest is kept. The result is ordered by Score,
// best first.
func Match(ctx context.Context, a, b []Keypoint, ratio float64) ([]Correspondence, error) {
	if len(a) == 0 || len(b) < 2 {
		return []Correspondence{}, nil
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultOptions().RatioTest
	}
	r2 := float32(ratio * ratio)

	type hit struct {
		ai    int
		d1    float32
		score float64
	}
	best := make(map[int]hit)

	for i := range a {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		d1, d2 := float32(math.MaxFloat32), float32(math.MaxFloat32)
		bi := -1
		for j := range b {
			d := dist2(&a[i].Desc, &b[j].Desc)
			if d < d1 {
				d2, d1, bi = d1, d, j
			} else if d < d2 {
				d2 = d
			}
		}
		if bi < 0 || d1 >= r2*d2 {
			continue
		}
		score := 1.0
		if d2 > 0 {
			score = 1 - math.Sqrt(float64(d1)/float64(d2))
		}
		if prev, ok := best[bi]; ok && prev.d1 <= d1 {
			continue
		}
		best[bi] = hit{ai: i, d1: d1, score: score}
	}

	out := make([]Correspondence, 0, len(best))
	for bi, h := range best {
		out = append(out, Correspondence{
			A:        a[h.ai].Pos,
			B:        b[bi].Pos,
			Distance: math.Sqrt(float64(h.d1)),
			Score:    h.score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].A.Y != out[j].A.Y {
			return out[i].A.Y < out[j].A.Y
		}
		return out[i].A.X < out[j].A.X
	})
	return out, nil
}

// FindCorrespondences detects keypoints on both rasters and matches them.
// Correspondence.A lies on a and Correspondence.B on b.
//
// An empty, non-nil slice is returned when either raster has no features.
// The only error is the context's.
func FindCorrespondences(ctx context.Context, a, b *raster.Raster, opts Options) ([]Correspondence, error) {
	opts = opts.withDefaults()

	ka := Detect(a.Gray(), opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ka) == 0 {
		return []Correspondence{}, nil
	}
	kb := Detect(b.Gray(), opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Match(ctx, ka, kb, opts.RatioTest)
}
