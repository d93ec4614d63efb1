package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ironsheep/drawdiff/internal/diff"
	"github.com/ironsheep/drawdiff/internal/failure"
)

func gray(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func emptyMasks(w, h int) *diff.Masks {
	return &diff.Masks{Removed: diff.NewMask(w, h), Added: diff.NewMask(w, h), Common: diff.NewMask(w, h)}
}

func TestParsePalette(t *testing.T) {
	if _, err := ParsePalette("#ffffff", "#ff0000", "#0000ff", "#808080"); err != nil {
		t.Fatalf("valid palette rejected: %v", err)
	}
	if _, err := ParsePalette("#ffffff", "red", "#0000ff", "#808080"); err == nil {
		t.Error("expected error for non-hex color")
	}
}

func TestRender_Classes(t *testing.T) {
	oldG, newG := gray(5, 1, 255), gray(5, 1, 255)
	m := emptyMasks(5, 1)

	// x=0 paper, x=1 removed, x=2 added, x=3 common, x=4 faint unmasked mark
	oldG.Pix[1] = 0
	m.Removed.Set(1, 0)
	newG.Pix[2] = 0
	m.Added.Set(2, 0)
	oldG.Pix[3], newG.Pix[3] = 0, 0
	m.Common.Set(3, 0)
	newG.Pix[4] = 200

	out, err := Render(oldG, newG, m, DefaultPalette())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := []color.NRGBA{
		{255, 255, 255, 255},
		{224, 0, 0, 255},
		{0, 80, 224, 255},
		{128, 128, 128, 255},
	}
	for x, w := range want {
		if got := out.NRGBAAt(x, 0); got != w {
			t.Errorf("pixel %d: got %v, want %v", x, got, w)
		}
	}

	faint := out.NRGBAAt(4, 0)
	if faint.R != faint.G || faint.G != faint.B {
		t.Errorf("faint mark should be neutral, got %v", faint)
	}
	if faint.R <= 128 || faint.R >= 255 {
		t.Errorf("faint mark should be a light gray, got %v", faint)
	}
}

func TestRender_DarknessScalesColor(t *testing.T) {
	oldG, newG := gray(2, 1, 255), gray(2, 1, 255)
	m := emptyMasks(2, 1)
	oldG.Pix[0], oldG.Pix[1] = 0, 100
	m.Removed.Set(0, 0)
	m.Removed.Set(1, 0)

	out, err := Render(oldG, newG, m, DefaultPalette())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	dark, light := out.NRGBAAt(0, 0), out.NRGBAAt(1, 0)
	if light.G <= dark.G {
		t.Errorf("lighter ink should render closer to paper: dark=%v light=%v", dark, light)
	}
}

func TestRender_Deterministic(t *testing.T) {
	oldG, newG := gray(32, 32, 255), gray(32, 32, 255)
	m := emptyMasks(32, 32)
	for i := 0; i < 32; i++ {
		oldG.SetGray(i, i, color.Gray{Y: 10})
		m.Removed.Set(i, i)
		newG.SetGray(31-i, i, color.Gray{Y: 40})
		m.Added.Set(31-i, i)
	}
	a, _ := Render(oldG, newG, m, DefaultPalette())
	b, _ := Render(oldG, newG, m, DefaultPalette())
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("identical inputs should give identical overlays")
	}
}

func TestRender_SizeMismatch(t *testing.T) {
	tests := []struct {
		name string
		old  *image.Gray
		m    *diff.Masks
	}{
		{"raster", gray(9, 10, 255), emptyMasks(10, 10)},
		{"mask", gray(10, 10, 255), emptyMasks(10, 11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.old, gray(10, 10, 255), tt.m, DefaultPalette())
			if !errors.Is(err, failure.ErrStructuralInput) {
				t.Errorf("expected structural error, got %v", err)
			}
		})
	}
}

func TestEncodePNG(t *testing.T) {
	out, err := Render(gray(12, 7, 255), gray(12, 7, 255), emptyMasks(12, 7), DefaultPalette())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, out); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 7 {
		t.Errorf("decoded size %v", img.Bounds())
	}
}

func TestWritePDF(t *testing.T) {
	a, _ := Render(gray(300, 150, 255), gray(300, 150, 255), emptyMasks(300, 150), DefaultPalette())
	b, _ := Render(gray(150, 300, 255), gray(150, 300, 255), emptyMasks(150, 300), DefaultPalette())

	var first, second bytes.Buffer
	pages := []PDFPage{
		{Caption: "page 1", Image: a, DPI: 150},
		{Caption: "page 2", Image: b, DPI: 150},
	}
	if err := WritePDF(&first, pages); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(first.Bytes(), []byte("%PDF-")) {
		t.Errorf("output does not look like a PDF: %q", first.Bytes()[:8])
	}
	if err := WritePDF(&second, pages); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("PDF output should be reproducible")
	}
}

func TestWritePDF_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, nil); err == nil {
		t.Error("expected error for empty document")
	}
	if err := WritePDF(&buf, []PDFPage{{Caption: "x"}}); err == nil {
		t.Error("expected error for page without image")
	}
}
