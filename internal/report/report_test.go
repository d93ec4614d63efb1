package report

import (
	"bytes"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/drawdiff/internal/compare"
	"github.com/ironsheep/drawdiff/internal/diff"
	"github.com/ironsheep/drawdiff/internal/failure"
	"github.com/ironsheep/drawdiff/internal/pipeline"
)

func sampleSnapshot() pipeline.JobSnapshot {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &compare.DiffRecord{
		PageNumber:      1,
		DrawingName:     "A-101",
		AlignmentScore:  0.92,
		ChangesDetected: true,
		ChangeCount:     2,
		Regions: []diff.Region{
			{Bounds: image.Rect(10, 20, 40, 30), Area: 120, Removed: 120},
			{Bounds: image.Rect(200, 200, 210, 260), Area: 90, Added: 90},
		},
		OverlayKey: "job-1/page-0001.png",
	}
	return pipeline.JobSnapshot{
		ID:    "job-1",
		State: pipeline.JobPartiallyFailed,
		Units: []pipeline.PageResult{
			{JobID: "job-1", Page: 2, Name: "A-102", State: pipeline.UnitFailed,
				Kind: failure.KindStructuralInput, Err: fmt.Errorf("%w: bad png", failure.ErrStructuralInput)},
			{JobID: "job-1", Page: 1, Name: "A-101", State: pipeline.UnitCompleted, Record: rec},
		},
		Created:  created,
		Finished: created.Add(time.Minute),
	}
}

func openWorkbook(t *testing.T, snap pipeline.JobSnapshot) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, snap); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, axis string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, axis)
	if err != nil {
		t.Fatalf("GetCellValue(%s!%s): %v", sheet, axis, err)
	}
	return v
}

func TestWriteXLSX_Sheets(t *testing.T) {
	f := openWorkbook(t, sampleSnapshot())
	got := f.GetSheetList()
	want := []string{SheetSummary, SheetPages, SheetRegions}
	if len(got) != len(want) {
		t.Fatalf("sheets: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sheet %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWriteXLSX_Summary(t *testing.T) {
	f := openWorkbook(t, sampleSnapshot())
	tests := []struct {
		axis, want string
	}{
		{"A1", "Job"},
		{"B1", "job-1"},
		{"B2", "partially_failed"},
		{"B4", "2"},
		{"B5", "1"},
		{"B6", "1"},
		{"B7", "1"},
		{"B8", "2024-03-01T09:00:00Z"},
	}
	for _, tt := range tests {
		if got := cell(t, f, SheetSummary, tt.axis); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.axis, got, tt.want)
		}
	}
}

func TestWriteXLSX_PagesInPageOrder(t *testing.T) {
	f := openWorkbook(t, sampleSnapshot())
	tests := []struct {
		axis, want string
	}{
		{"A1", "Page"},
		{"A2", "1"},
		{"B2", "A-101"},
		{"C2", "completed"},
		{"J2", "2"},
		{"O2", "job-1/page-0001.png"},
		{"A3", "2"},
		{"C3", "failed"},
		{"D3", "structural_input"},
		{"E3", "structural input error: bad png"},
	}
	for _, tt := range tests {
		if got := cell(t, f, SheetPages, tt.axis); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.axis, got, tt.want)
		}
	}
}

func TestWriteXLSX_Regions(t *testing.T) {
	f := openWorkbook(t, sampleSnapshot())
	rows, err := f.GetRows(SheetRegions)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want header + 2", len(rows))
	}
	want := []string{"1", "2", "200", "200", "10", "60", "90", "0", "90"}
	for i, w := range want {
		if rows[2][i] != w {
			t.Errorf("region 2 column %d: got %q, want %q", i+1, rows[2][i], w)
		}
	}
}

func TestWriteXLSX_RejectedJob(t *testing.T) {
	snap := pipeline.JobSnapshot{
		ID:    "job-2",
		State: pipeline.JobFailed,
		Err:   fmt.Errorf("%w: page count mismatch (old=2 new=3)", failure.ErrPrecondition),
	}
	f := openWorkbook(t, snap)
	if got := cell(t, f, SheetSummary, "A10"); got != "Error" {
		t.Errorf("A10: got %q", got)
	}
	rows, err := f.GetRows(SheetPages)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rejected job should only have the header row, got %d rows", len(rows))
	}
}
