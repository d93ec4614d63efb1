package compare

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/ironsheep/drawdiff/internal/diff"
	"github.com/ironsheep/drawdiff/internal/estimate"
	"github.com/ironsheep/drawdiff/internal/geom"
	"github.com/ironsheep/drawdiff/internal/render"
)

// DiffRecord is the result of comparing one page pair. It is not modified
// after Compare returns, except for OverlayKey which the pipeline fills in
// once the overlay has been stored.
type DiffRecord struct {
	PageNumber     int     `json:"page_number"`
	DrawingName    string  `json:"drawing_name,omitempty"`
	AlignmentScore float64 `json:"alignment_score"`
	// ChangesDetected is true when any removed or added pixel exists.
	ChangesDetected bool `json:"changes_detected"`
	// ChangeCount is the number of connected change regions.
	ChangeCount int           `json:"change_count"`
	Regions     []diff.Region `json:"regions,omitempty"`

	Overlay    *image.NRGBA `json:"-"`
	OverlayKey string       `json:"overlay_key,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Metadata carries the quality and sizing details of a comparison.
type Metadata struct {
	Aligned     bool            `json:"aligned"`
	Reason      string          `json:"reason,omitempty"`
	InlierRatio float64         `json:"inlier_ratio"`
	InlierCount int             `json:"inlier_count"`
	MatchCount  int             `json:"match_count"`
	RMSE        float64         `json:"rmse,omitempty"`
	Transform   *geom.Transform `json:"transform,omitempty"`

	RemovedPixels int `json:"removed_pixels"`
	AddedPixels   int `json:"added_pixels"`
	CommonPixels  int `json:"common_pixels"`
	OldContent    int `json:"old_content"`
	NewContent    int `json:"new_content"`

	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPI    float64 `json:"dpi"`

	Timings map[string]time.Duration `json:"timings"`
}

func (r *DiffRecord) applyOutcome(o estimate.Outcome) {
	r.AlignmentScore = o.Score()
	r.Metadata.MatchCount = o.Matches()
	switch v := o.(type) {
	case estimate.Aligned:
		tr := v.Transform
		r.Metadata.Aligned = true
		r.Metadata.InlierRatio = v.InlierRatio
		r.Metadata.InlierCount = v.InlierCount
		r.Metadata.RMSE = v.RMSE
		r.Metadata.Transform = &tr
	case estimate.Unaligned:
		r.Metadata.Reason = string(v.Reason)
		r.Metadata.InlierRatio = v.BestInlierRatio
	}
}

func (r *DiffRecord) applyMasks(m *diff.Masks) {
	r.Metadata.RemovedPixels = m.Removed.Count()
	r.Metadata.AddedPixels = m.Added.Count()
	r.Metadata.CommonPixels = m.Common.Count()
	r.Metadata.OldContent = m.OldContent
	r.Metadata.NewContent = m.NewContent
	r.ChangesDetected = r.Metadata.RemovedPixels > 0 || r.Metadata.AddedPixels > 0
	r.ChangeCount = len(r.Regions)
}

// TotalDuration sums the step timings.
func (r *DiffRecord) TotalDuration() time.Duration {
	var d time.Duration
	for _, t := range r.Metadata.Timings {
		d += t
	}
	return d
}

// OverlayPNG encodes the overlay.
func (r *DiffRecord) OverlayPNG() ([]byte, error) {
	if r.Overlay == nil {
		return nil, fmt.Errorf("page %d has no overlay", r.PageNumber)
	}
	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, r.Overlay); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDFPage returns the overlay as a page of the paginated export.
func (r *DiffRecord) PDFPage() render.PDFPage {
	caption := fmt.Sprintf("Page %d", r.PageNumber)
	if r.DrawingName != "" {
		caption += " - " + r.DrawingName
	}
	return render.PDFPage{Caption: caption, Image: r.Overlay, DPI: r.Metadata.DPI}
}
