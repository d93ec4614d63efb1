package inspect

import (
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/drawdiff/internal/diff"
)

// BoxColor is the default outline color of Annotate.
var BoxColor = color.NRGBA{R: 255, G: 140, B: 0, A: 255}

var labelFG = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// 3x5 pixel digits.
var glyphs = map[rune][5]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
}

// Annotate returns a copy of img with a box of color c around every region
// and the region's number above its top-left corner. img is not modified.
func Annotate(img image.Image, regions []diff.Region, c color.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()

	// unit is the stroke width and the size of one glyph pixel.
	unit := max(1, min(b.Dx(), b.Dy())/800)
	for i, r := range regions {
		box := Window(r.Bounds, 2*unit, b)
		strokeRect(out, box, unit, c)
		drawLabel(out, box.Min.X, box.Min.Y-7*unit-unit, strconv.Itoa(i+1), unit, labelFG, c)
	}
	return out
}

func strokeRect(img *image.NRGBA, r image.Rectangle, t int, c color.NRGBA) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// drawLabel draws text with its top-left corner at (x, y), each glyph pixel
// being a unit x unit square, on a filled background. A label that would
// leave the image is moved inside it.
func drawLabel(img *image.NRGBA, x, y int, text string, unit int, fg, bg color.NRGBA) {
	b := img.Bounds()
	charWidth := 4 * unit
	w := len(text)*charWidth + unit
	h := 7 * unit
	x = max(b.Min.X, min(x, b.Max.X-w))
	y = max(b.Min.Y, min(y, b.Max.Y-h))

	fillRect(img, image.Rect(x, y, x+w, y+h), bg)
	cx := x + unit
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col*unit, y+unit+row*unit
					fillRect(img, image.Rect(px, py, px+unit, py+unit), fg)
				}
			}
		}
		cx += charWidth
	}
}
