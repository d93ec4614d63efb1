package compare

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/ironsheep/drawdiff/internal/config"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/fixture"
	"github.com/ironsheep/drawdiff/internal/geom"
	"github.com/ironsheep/drawdiff/internal/raster"
)

func mustRaster(t *testing.T, img image.Image) *raster.Raster {
	t.Helper()
	r, err := raster.New(img, 150)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	return r
}

func squareSheet(x, y int) *image.Gray {
	img := fixture.White(1000, 1000)
	fixture.Fill(img, x, y, x+10, y+10)
	return img
}

func TestCompare_IdenticalSquare(t *testing.T) {
	c := New(DefaultOptions(), nil)
	oldPage := mustRaster(t, squareSheet(400, 400))
	newPage := mustRaster(t, squareSheet(400, 400))

	rec, err := c.Compare(context.Background(), 1, "A-101", oldPage, newPage)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rec.AlignmentScore < 0.99 {
		t.Errorf("alignment score: got %v, want ~1", rec.AlignmentScore)
	}
	if rec.ChangesDetected || rec.ChangeCount != 0 {
		t.Errorf("expected no changes, got detected=%v count=%d", rec.ChangesDetected, rec.ChangeCount)
	}
	if rec.Metadata.CommonPixels != 100 {
		t.Errorf("common pixels: got %d, want 100", rec.Metadata.CommonPixels)
	}
	if rec.Overlay == nil || rec.Overlay.Rect.Dx() != 1000 || rec.Overlay.Rect.Dy() != 1000 {
		t.Errorf("overlay should match the page size")
	}
	if rec.PageNumber != 1 || rec.DrawingName != "A-101" {
		t.Errorf("identity fields: page=%d name=%q", rec.PageNumber, rec.DrawingName)
	}
}

func TestCompare_SquareShiftAgainstTolerance(t *testing.T) {
	opts := DefaultOptions()
	opts.ForceIdentity = true
	c := New(opts, nil)

	tests := []struct {
		name        string
		shift       int
		wantChanged bool
		wantCount   int
	}{
		{"within tolerance", 2, false, 0},
		{"beyond tolerance", 6, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldPage := mustRaster(t, squareSheet(400, 400))
			newPage := mustRaster(t, squareSheet(400+tt.shift, 400))
			rec, err := c.Compare(context.Background(), 1, "", oldPage, newPage)
			if err != nil {
				t.Fatalf("Compare: %v", err)
			}
			if rec.ChangesDetected != tt.wantChanged || rec.ChangeCount != tt.wantCount {
				t.Errorf("got detected=%v count=%d, want %v/%d",
					rec.ChangesDetected, rec.ChangeCount, tt.wantChanged, tt.wantCount)
			}
			if rec.Metadata.Aligned || rec.Metadata.Reason != "identity_forced" {
				t.Errorf("forced identity should be recorded: %+v", rec.Metadata)
			}
		})
	}
}

func TestCompare_Idempotent(t *testing.T) {
	img := fixture.Drawing(400, 300, 9)
	opts := DefaultOptions()
	opts.ForceIdentity = true
	rec, err := New(opts, nil).Compare(context.Background(), 2, "", mustRaster(t, img), mustRaster(t, fixture.Clone(img)))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rec.ChangesDetected || rec.Metadata.RemovedPixels != 0 || rec.Metadata.AddedPixels != 0 {
		t.Errorf("self comparison should be empty: %+v", rec.Metadata)
	}
}

func TestCompare_BlankPair(t *testing.T) {
	c := New(DefaultOptions(), nil)
	rec, err := c.Compare(context.Background(), 1, "",
		mustRaster(t, fixture.White(300, 200)),
		mustRaster(t, fixture.White(320, 200)))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rec.Metadata.Aligned {
		t.Error("blank pages cannot be aligned")
	}
	if rec.ChangesDetected || rec.ChangeCount != 0 {
		t.Errorf("blank pair should have no changes: %+v", rec)
	}
	if rec.AlignmentScore != 0 {
		t.Errorf("alignment score: got %v, want 0", rec.AlignmentScore)
	}
}

func TestCompare_RecoversRotationAndFindsAddition(t *testing.T) {
	base := fixture.Drawing(800, 600, 17)
	edited := fixture.Clone(base)
	fixture.Fill(edited, 500, 300, 540, 340)

	tr := geom.Transform{Angle: 0.8 * math.Pi / 180, Scale: 1, TX: 6, TY: -4}
	newImg := fixture.Warp(edited, tr)

	rec, err := New(DefaultOptions(), nil).Compare(context.Background(), 3, "S-201",
		mustRaster(t, base), mustRaster(t, newImg))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !rec.Metadata.Aligned {
		t.Fatalf("expected an aligned outcome, got reason %q", rec.Metadata.Reason)
	}
	got := rec.Metadata.Transform
	if math.Abs(got.Angle-tr.Angle) > 0.2*math.Pi/180 {
		t.Errorf("angle: got %.3f°, want %.3f°", got.Degrees(), tr.Degrees())
	}
	if math.Abs(got.TX-tr.TX) > 2 || math.Abs(got.TY-tr.TY) > 2 {
		t.Errorf("translation: got (%.2f,%.2f), want (%.2f,%.2f)", got.TX, got.TY, tr.TX, tr.TY)
	}
	if !rec.ChangesDetected {
		t.Fatal("the added block should be detected")
	}

	centre := tr.Apply(geom.Point{X: 520, Y: 320})
	pt := image.Pt(int(centre.X), int(centre.Y))
	found := false
	for _, r := range rec.Regions {
		if pt.In(r.Bounds) && r.Added > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("no added region covers %v; regions: %+v", pt, rec.Regions)
	}
}

func TestComparePage_CorruptSource(t *testing.T) {
	c := New(DefaultOptions(), nil)
	good := raster.FromImage(fixture.White(50, 50), 150)
	_, err := c.ComparePage(context.Background(), PagePair{
		Number: 4,
		Old:    good,
		New:    raster.FromBytes([]byte("not an image"), 150),
	})
	if !errors.Is(err, failure.ErrStructuralInput) {
		t.Errorf("expected structural error, got %v", err)
	}
}

func TestComparePage_RecordsDecodeTiming(t *testing.T) {
	c := New(DefaultOptions(), nil)
	img := fixture.Drawing(200, 200, 2)
	rec, err := c.ComparePage(context.Background(), PagePair{
		Number: 1,
		Old:    raster.FromBytes(fixture.PNG(t, img), 150),
		New:    raster.FromBytes(fixture.PNG(t, img), 150),
	})
	if err != nil {
		t.Fatalf("ComparePage: %v", err)
	}
	if _, ok := rec.Metadata.Timings[StepDecode]; !ok {
		t.Error("decode timing missing")
	}
	if _, ok := rec.Metadata.Timings[StepRender]; !ok {
		t.Error("render timing missing")
	}
	if _, err := rec.OverlayPNG(); err != nil {
		t.Errorf("OverlayPNG: %v", err)
	}
}

func TestCompare_ResourceLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.Limits.MaxPixels = 1000
	_, err := New(opts, nil).ComparePage(context.Background(), PagePair{
		Number: 1,
		Old:    raster.FromImage(fixture.White(100, 100), 150),
		New:    raster.FromImage(fixture.White(100, 100), 150),
	})
	if !errors.Is(err, failure.ErrResourceExhausted) {
		t.Errorf("expected resource exhaustion, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.InkThreshold = 90
	cfg.RemovedColor = "#ff00ff"
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.Diff.InkThreshold != 90 {
		t.Errorf("ink threshold not carried over: %d", opts.Diff.InkThreshold)
	}
	if r, g, b := opts.Palette.Removed.RGB255(); r != 255 || g != 0 || b != 255 {
		t.Errorf("removed color: got %d,%d,%d", r, g, b)
	}

	cfg.PaperColor = "white"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("expected error for bad paper color")
	}
}
