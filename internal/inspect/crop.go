package inspect

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/drawdiff/internal/diff"
)

// MaxScale bounds the magnification of a crop.
const MaxScale = 8.0

// CropResult contains the cropped image data
type CropResult struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts r from img and scales it by scale (1 when scale <= 0).
func Crop(img image.Image, r image.Rectangle, scale float64) (*CropResult, error) {
	bounds := img.Bounds()
	if r.Empty() {
		return nil, fmt.Errorf("invalid crop region %v: empty", r)
	}
	if !r.In(bounds) {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, bounds)
	}
	if scale <= 0 {
		scale = 1
	}
	if scale > MaxScale {
		return nil, fmt.Errorf("scale %.2f exceeds %.0f", scale, MaxScale)
	}

	cropped := imaging.Crop(img, r)
	if scale != 1 {
		w := max(1, int(float64(cropped.Bounds().Dx())*scale))
		h := max(1, int(float64(cropped.Bounds().Dy())*scale))
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return &CropResult{
		X:           r.Min.X,
		Y:           r.Min.Y,
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Window grows b by pad on every side and clips it to within.
func Window(b image.Rectangle, pad int, within image.Rectangle) image.Rectangle {
	return b.Inset(-max(0, pad)).Intersect(within)
}

// CropRegion crops the padded window around region number n (1-based) of
// regions.
func CropRegion(img image.Image, regions []diff.Region, n, pad int, scale float64) (*CropResult, error) {
	if n < 1 || n > len(regions) {
		return nil, fmt.Errorf("region %d out of range (page has %d)", n, len(regions))
	}
	return Crop(img, Window(regions[n-1].Bounds, pad, img.Bounds()), scale)
}
