package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	"github.com/ironsheep/drawdiff/internal/failure"
)

// Limits bounds what a Source may materialize.
type Limits struct {
	// MaxPixels is the largest width*height accepted. Zero disables the check.
	MaxPixels int
}

// Check returns an error wrapping failure.ErrResourceExhausted when a w x h
// raster is over budget.
func (l Limits) Check(w, h int) error {
	if l.MaxPixels > 0 && w*h > l.MaxPixels {
		return fmt.Errorf("%w: %dx%d raster exceeds %d pixel budget",
			failure.ErrResourceExhausted, w, h, l.MaxPixels)
	}
	return nil
}

// Source produces a Raster on demand. Sources are opened inside the page
// unit that consumes them, so each page is decoded exactly once per unit and
// never shared across units.
type Source interface {
	Open(ctx context.Context, lim Limits) (*Raster, error)
	// Describe returns a short human readable label used in logs.
	Describe() string
}

type imageSource struct {
	img image.Image
	dpi float64
}

// FromImage returns a Source for an already decoded image.
func FromImage(img image.Image, dpi float64) Source {
	return imageSource{img: img, dpi: dpi}
}

func (s imageSource) Open(ctx context.Context, lim Limits) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.img == nil {
		return nil, fmt.Errorf("%w: nil image", failure.ErrStructuralInput)
	}
	b := s.img.Bounds()
	if err := lim.Check(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	return New(s.img, s.dpi)
}

func (s imageSource) Describe() string {
	if s.img == nil {
		return "image(nil)"
	}
	b := s.img.Bounds()
	return fmt.Sprintf("image(%dx%d)", b.Dx(), b.Dy())
}

// FromRaster returns a Source that yields r unchanged.
func FromRaster(r *Raster) Source {
	return rasterSource{r: r}
}

type rasterSource struct{ r *Raster }

func (s rasterSource) Open(ctx context.Context, lim Limits) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.r == nil {
		return nil, fmt.Errorf("%w: nil raster", failure.ErrStructuralInput)
	}
	if err := lim.Check(s.r.Width(), s.r.Height()); err != nil {
		return nil, err
	}
	return s.r, nil
}

func (s rasterSource) Describe() string {
	if s.r == nil {
		return "raster(nil)"
	}
	return fmt.Sprintf("raster(%dx%d)", s.r.Width(), s.r.Height())
}

type bytesSource struct {
	data []byte
	dpi  float64
}

// FromBytes returns a Source that decodes an encoded PNG, JPEG, GIF, BMP or
// TIFF image held in memory.
func FromBytes(data []byte, dpi float64) Source {
	return bytesSource{data: data, dpi: dpi}
}

func (s bytesSource) Open(ctx context.Context, lim Limits) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(s.data), s.dpi, lim)
}

func (s bytesSource) Describe() string { return fmt.Sprintf("bytes(%d)", len(s.data)) }

type fileSource struct {
	path string
	dpi  float64
}

// FromFile returns a Source that decodes the image file at path.
func FromFile(path string, dpi float64) Source {
	return fileSource{path: path, dpi: dpi}
}

func (s fileSource) Open(ctx context.Context, lim Limits) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open image: %w", failure.ErrStructuralInput, err)
	}
	defer f.Close()
	return Decode(f, s.dpi, lim)
}

func (s fileSource) Describe() string { return filepath.Base(s.path) }

// Decode reads an encoded image from r. The header is inspected first so an
// oversized image is rejected before its pixel data is allocated. EXIF
// orientation is applied for JPEG input.
//
// r must support seeking if the header check is to be combined with a full
// decode without buffering; other readers are buffered in memory.
func Decode(r io.Reader, dpi float64, lim Limits) (*Raster, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read image: %w", failure.ErrStructuralInput, err)
		}
		rs = bytes.NewReader(data)
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image: %w", failure.ErrStructuralInput, err)
	}
	cfg, _, err := image.DecodeConfig(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image header: %w", failure.ErrStructuralInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-area raster %dx%d", failure.ErrStructuralInput, cfg.Width, cfg.Height)
	}
	if err := lim.Check(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: failed to rewind image: %w", failure.ErrStructuralInput, err)
	}

	img, err := imaging.Decode(rs, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %w", failure.ErrStructuralInput, err)
	}
	return New(img, dpi)
}
