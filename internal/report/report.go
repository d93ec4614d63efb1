// Package report writes the outcome of a comparison job as an XLSX workbook
// with three sheets: Summary, Pages (one row per page unit) and Regions (one
// row per change region).
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/drawdiff/internal/pipeline"
)

const (
	SheetSummary = "Summary"
	SheetPages   = "Pages"
	SheetRegions = "Regions"
)

var pageHeaders = []interface{}{
	"Page", "Drawing", "State", "Failure", "Error",
	"Alignment score", "Aligned", "Reason", "Changes", "Change count",
	"Removed px", "Added px", "Common px", "Seconds", "Overlay",
}

var regionHeaders = []interface{}{
	"Page", "Region", "X", "Y", "Width", "Height", "Area", "Removed px", "Added px",
}

// WriteXLSX renders snap as a workbook and writes it to w.
func WriteXLSX(w io.Writer, snap pipeline.JobSnapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	def := f.GetSheetName(0)
	if def == "" {
		def = "Sheet1"
	}
	if err := f.SetSheetName(def, SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetPages, SheetRegions} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	failed, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
		Font: &excelize.Font{Color: "9C0006"},
	})
	if err != nil {
		return fmt.Errorf("failed to create failure style: %w", err)
	}

	if err := writeSummary(f, snap, header); err != nil {
		return err
	}
	if err := writePages(f, snap, header, failed); err != nil {
		return err
	}
	if err := writeRegions(f, snap, header); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, snap pipeline.JobSnapshot, header int) error {
	c := snap.Counts()
	changed := 0
	for _, r := range snap.Records() {
		if r.ChangesDetected {
			changed++
		}
	}
	rows := [][2]interface{}{
		{"Job", string(snap.ID)},
		{"State", string(snap.State)},
		{"Retry of", string(snap.RetryOf)},
		{"Pages", len(snap.Units)},
		{"Completed", c[pipeline.UnitCompleted]},
		{"Failed", c[pipeline.UnitFailed]},
		{"Pages with changes", changed},
		{"Created", timestamp(snap.Created)},
		{"Finished", timestamp(snap.Finished)},
	}
	if snap.Err != nil {
		rows = append(rows, [2]interface{}{"Error", snap.Err.Error()})
	}

	sw, err := f.NewStreamWriter(SheetSummary)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, 1, 22); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 2, 40); err != nil {
		return err
	}
	for i, r := range rows {
		label := excelize.Cell{StyleID: header, Value: r[0]}
		if err := sw.SetRow(cellAxis(i+1, 1), []interface{}{label, r[1]}); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func writePages(f *excelize.File, snap pipeline.JobSnapshot, header, failed int) error {
	sw, err := f.NewStreamWriter(SheetPages)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 2, 24); err != nil {
		return err
	}
	if err := sw.SetColWidth(5, 5, 48); err != nil {
		return err
	}
	if err := sw.SetRow("A1", pageHeaders, excelize.RowOpts{StyleID: header}); err != nil {
		return err
	}

	for i, u := range sortedUnits(snap) {
		row := make([]interface{}, len(pageHeaders))
		for k := range row {
			row[k] = ""
		}
		row[0] = u.Page
		row[1] = u.Name
		row[2] = string(u.State)
		row[3] = string(u.Kind)
		if u.Err != nil {
			row[4] = u.Err.Error()
		}
		if r := u.Record; r != nil {
			row[5] = r.AlignmentScore
			row[6] = r.Metadata.Aligned
			row[7] = r.Metadata.Reason
			row[8] = r.ChangesDetected
			row[9] = r.ChangeCount
			row[10] = r.Metadata.RemovedPixels
			row[11] = r.Metadata.AddedPixels
			row[12] = r.Metadata.CommonPixels
			row[13] = r.TotalDuration().Seconds()
			row[14] = r.OverlayKey
		}
		opts := excelize.RowOpts{}
		if u.State == pipeline.UnitFailed {
			opts.StyleID = failed
		}
		if err := sw.SetRow(cellAxis(i+2, 1), row, opts); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func writeRegions(f *excelize.File, snap pipeline.JobSnapshot, header int) error {
	sw, err := f.NewStreamWriter(SheetRegions)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", regionHeaders, excelize.RowOpts{StyleID: header}); err != nil {
		return err
	}
	rowNum := 2
	for _, r := range snap.Records() {
		for k, reg := range r.Regions {
			b := reg.Bounds
			row := []interface{}{
				r.PageNumber, k + 1,
				b.Min.X, b.Min.Y, b.Dx(), b.Dy(),
				reg.Area, reg.Removed, reg.Added,
			}
			if err := sw.SetRow(cellAxis(rowNum, 1), row); err != nil {
				return err
			}
			rowNum++
		}
	}
	return sw.Flush()
}

func sortedUnits(snap pipeline.JobSnapshot) []pipeline.PageResult {
	units := append([]pipeline.PageResult(nil), snap.Units...)
	sort.SliceStable(units, func(i, k int) bool { return units[i].Page < units[k].Page })
	return units
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func cellAxis(row, col int) string {
	axis, _ := excelize.CoordinatesToCellName(col, row)
	return axis
}
