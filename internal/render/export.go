package render

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// PDFPage is one overlay placed on its own PDF page.
type PDFPage struct {
	// Caption is printed in the top-left corner when non-empty.
	Caption string
	Image   image.Image
	// DPI sizes the page so that one raster pixel maps to 1/DPI inch.
	DPI float64
}

// pdfEpoch pins the document dates so identical overlays give identical files.
var pdfEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// WritePDF writes pages as a single PDF document, one overlay per page, each
// page sized to its raster at the raster's resolution.
func WritePDF(w io.Writer, pages []PDFPage) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to export")
	}
	for i, pg := range pages {
		if pg.Image == nil {
			return fmt.Errorf("page %d has no image", i+1)
		}
	}

	first := pageSize(pages[0])
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           first,
	})
	pdf.SetCreationDate(pdfEpoch)
	pdf.SetModificationDate(pdfEpoch)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", 9)

	for i, pg := range pages {
		size := pageSize(pg)
		pdf.AddPageFormat("P", size)

		var buf bytes.Buffer
		if err := EncodePNG(&buf, pg.Image); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("overlay-%d", i+1)
		opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		pdf.ImageOptions(name, 0, 0, size.Wd, size.Ht, false, opts, 0, "")

		if pg.Caption != "" {
			pdf.SetTextColor(0, 0, 0)
			pdf.Text(6, 12, pg.Caption)
		}
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func pageSize(pg PDFPage) fpdf.SizeType {
	dpi := pg.DPI
	if dpi <= 0 {
		dpi = 72
	}
	b := pg.Image.Bounds()
	return fpdf.SizeType{
		Wd: float64(b.Dx()) * 72 / dpi,
		Ht: float64(b.Dy()) * 72 / dpi,
	}
}
