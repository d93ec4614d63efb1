// Package compare runs one page pair through the whole comparison: feature
// matching, transform estimation, alignment, change masks, regions and the
// overlay. The result is a DiffRecord.
//
// A page with no changes, or one that could not be aligned with confidence,
// is a successful comparison. Errors are reserved for inputs that cannot be
// compared at all (see package failure) and for context expiry.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsheep/drawdiff/internal/align"
	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/diff"
	"github.com/ironsheep/drawdiff/internal/estimate"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/features"
	"github.com/ironsheep/drawdiff/internal/obs"
	"github.com/ironsheep/drawdiff/internal/raster"
	"github.com/ironsheep/drawdiff/internal/render"
)

// Step names used for timings, metrics and spans.
const (
	StepDecode   = "decode"
	StepFeatures = "features"
	StepEstimate = "estimate"
	StepAlign    = "align"
	StepMasks    = "masks"
	StepRegions  = "regions"
	StepRender   = "render"
)

// Options gathers the parameters of every step.
type Options struct {
	Features features.Options
	Estimate estimate.Options
	Diff     diff.Options
	Palette  render.Palette
	Limits   raster.Limits
	// ForceIdentity skips matching and compares the pages in place, centring
	// the old page when the sizes differ.
	ForceIdentity bool
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(config.Default())
	if err != nil {
		panic(err)
	}
	return opts
}

// OptionsFromConfig maps the engine configuration onto step options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	pal, err := render.ParsePalette(cfg.PaperColor, cfg.RemovedColor, cfg.AddedColor, cfg.CommonColor)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Features: features.Options{
			MaxFeatures: cfg.MaxFeatures,
			WorkingSize: cfg.WorkingSize,
			RatioTest:   cfg.RatioTest,
		},
		Estimate: estimate.Options{
			InlierThreshold: cfg.InlierThreshold,
			MinInlierRatio:  cfg.MinInlierRatio,
			MinMatches:      cfg.MinMatches,
			ScaleTolerance:  cfg.ScaleTolerance,
			Iterations:      cfg.RansacIterations,
			Seed:            cfg.Seed,
		},
		Diff: diff.Options{
			InkThreshold:      cfg.InkThreshold,
			ToleranceRadius:   cfg.ToleranceRadius,
			RegionMergeRadius: cfg.RegionMergeRadius,
			MinRegionArea:     cfg.MinRegionArea,
		},
		Palette: pal,
		Limits:  raster.Limits{MaxPixels: cfg.MaxPixels},
	}, nil
}

// PagePair is one page of a job before decoding.
type PagePair struct {
	Number int
	Name   string
	Old    raster.Source
	New    raster.Source
}

// Comparer compares page pairs. It holds no per-page state and is safe for
// concurrent use.
type Comparer struct {
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
}

// New returns a Comparer. A nil logger discards output.
func New(opts Options, log *slog.Logger) *Comparer {
	if log == nil {
		log = obs.Discard()
	}
	return &Comparer{
		opts:   opts,
		log:    log,
		tracer: obs.Tracer("drawdiff/compare"),
	}
}

// Options returns the options the comparer was built with.
func (c *Comparer) Options() Options { return c.opts }

// Open decodes src under the comparer's raster limits.
func (c *Comparer) Open(ctx context.Context, src raster.Source) (*raster.Raster, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: missing page source", failure.ErrStructuralInput)
	}
	r, err := src.Open(ctx, c.opts.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Describe(), err)
	}
	return r, nil
}

// ComparePage decodes both sides of pair and compares them.
func (c *Comparer) ComparePage(ctx context.Context, pair PagePair) (*DiffRecord, error) {
	start := time.Now()
	oldPage, err := c.Open(ctx, pair.Old)
	if err != nil {
		return nil, fmt.Errorf("page %d old: %w", pair.Number, err)
	}
	newPage, err := c.Open(ctx, pair.New)
	if err != nil {
		return nil, fmt.Errorf("page %d new: %w", pair.Number, err)
	}
	decode := time.Since(start)
	obs.RecordStep(StepDecode, decode)

	rec, err := c.Compare(ctx, pair.Number, pair.Name, oldPage, newPage)
	if err != nil {
		return nil, err
	}
	rec.Metadata.Timings[StepDecode] = decode
	return rec, nil
}

// Compare runs the comparison steps on decoded rasters. The old page is
// aligned into the frame of the new page, so the record and the overlay use
// the new page's size and resolution.
func (c *Comparer) Compare(ctx context.Context, page int, name string, oldPage, newPage *raster.Raster) (*DiffRecord, error) {
	if oldPage == nil || newPage == nil {
		return nil, fmt.Errorf("%w: page %d is missing a raster", failure.ErrStructuralInput, page)
	}

	ctx, span := c.tracer.Start(ctx, "compare.page", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.String("drawing", name),
	))
	defer span.End()

	rec := &DiffRecord{
		PageNumber:  page,
		DrawingName: name,
		Metadata: Metadata{
			Width:   newPage.Width(),
			Height:  newPage.Height(),
			DPI:     newPage.DPI(),
			Timings: make(map[string]time.Duration, 7),
		},
	}
	run := func(step string, fn func(ctx context.Context) error) error {
		sctx, sspan := c.tracer.Start(ctx, "compare."+step)
		t0 := time.Now()
		err := fn(sctx)
		d := time.Since(t0)
		if err != nil {
			sspan.RecordError(err)
			sspan.SetStatus(codes.Error, err.Error())
		}
		sspan.End()
		rec.Metadata.Timings[step] = d
		obs.RecordStep(step, d)
		return err
	}

	outcome, err := c.estimate(oldPage, newPage, run)
	if err != nil {
		return nil, c.fail(span, page, err)
	}
	rec.applyOutcome(outcome)

	var aligned *raster.Raster
	err = run(StepAlign, func(ctx context.Context) error {
		var err error
		aligned, err = align.Align(ctx, oldPage, newPage, outcome, c.opts.Limits)
		return err
	})
	if err != nil {
		return nil, c.fail(span, page, fmt.Errorf("failed to align: %w", err))
	}

	oldG, newG := aligned.Gray(), newPage.Gray()
	var masks *diff.Masks
	err = run(StepMasks, func(context.Context) error {
		var err error
		masks, err = diff.BuildMasks(oldG, newG, c.opts.Diff)
		return err
	})
	if err != nil {
		return nil, c.fail(span, page, fmt.Errorf("failed to build change masks: %w", err))
	}

	_ = run(StepRegions, func(context.Context) error {
		rec.Regions = diff.Regions(masks, c.opts.Diff.RegionMergeRadius, c.opts.Diff.MinRegionArea)
		return nil
	})

	err = run(StepRender, func(context.Context) error {
		var err error
		rec.Overlay, err = render.Render(oldG, newG, masks, c.opts.Palette)
		return err
	})
	if err != nil {
		return nil, c.fail(span, page, fmt.Errorf("failed to render overlay: %w", err))
	}

	rec.applyMasks(masks)
	obs.RecordAlignment(rec.AlignmentScore)
	span.SetAttributes(
		attribute.Float64("alignment_score", rec.AlignmentScore),
		attribute.Int("change_count", rec.ChangeCount),
	)
	c.log.Debug("page compared",
		"page", page,
		"drawing", name,
		"alignment", outcome.String(),
		"score", rec.AlignmentScore,
		"changes", rec.ChangeCount,
	)
	return rec, nil
}

type stepFunc func(step string, fn func(ctx context.Context) error) error

// estimate picks the alignment outcome. Bit-identical pages short-circuit to
// an exact identity.
func (c *Comparer) estimate(oldPage, newPage *raster.Raster, run stepFunc) (estimate.Outcome, error) {
	if raster.Equal(oldPage, newPage) {
		return estimate.Exact(), nil
	}
	if c.opts.ForceIdentity {
		return estimate.Unaligned{Reason: estimate.ReasonForced}, nil
	}

	var corrs []features.Correspondence
	err := run(StepFeatures, func(ctx context.Context) error {
		var err error
		corrs, err = features.FindCorrespondences(ctx, oldPage, newPage, c.opts.Features)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to match features: %w", err)
	}

	var outcome estimate.Outcome
	_ = run(StepEstimate, func(context.Context) error {
		outcome = estimate.Estimate(corrs, c.opts.Estimate)
		return nil
	})
	return outcome, nil
}

func (c *Comparer) fail(span trace.Span, page int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("page %d: %w", page, err)
}
