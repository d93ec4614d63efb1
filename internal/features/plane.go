package features

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// plane is a single-channel float image of ink darkness in [0,1].
type plane struct {
	w, h int
	pix  []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float32, w*h)}
}

// darknessPlane blurs img with sigma and converts luminance to darkness.
func darknessPlane(img image.Image, sigma float64) *plane {
	src := imaging.Clone(img)
	if sigma > 0 {
		src = imaging.Blur(src, sigma)
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	p := newPlane(w, h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			p.pix[y*w+x] = 1 - float32(row[x*4])/255
		}
	}
	return p
}

func (p *plane) at(x, y int) float32 {
	return p.pix[clamp(y, 0, p.h-1)*p.w+clamp(x, 0, p.w-1)]
}

// bilinear samples p at a sub-pixel position; outside samples read as paper.
func (p *plane) bilinear(x, y float64) float32 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	if x0 < -1 || y0 < -1 || x0 >= p.w || y0 >= p.h {
		return 0
	}
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))
	v00 := p.get(x0, y0)
	v10 := p.get(x0+1, y0)
	v01 := p.get(x0, y0+1)
	v11 := p.get(x0+1, y0+1)
	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return top + (bot-top)*fy
}

func (p *plane) get(x, y int) float32 {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return 0
	}
	return p.pix[y*p.w+x]
}

// sobel returns the horizontal and vertical gradients of p.
//
//	Gx = [-1 0 1; -2 0 2; -1 0 1]   Gy = [-1 -2 -1; 0 0 0; 1 2 1]
func sobel(p *plane) (gx, gy *plane) {
	gx, gy = newPlane(p.w, p.h), newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			tl, tc, tr := p.at(x-1, y-1), p.at(x, y-1), p.at(x+1, y-1)
			ml, mr := p.at(x-1, y), p.at(x+1, y)
			bl, bc, br := p.at(x-1, y+1), p.at(x, y+1), p.at(x+1, y+1)
			i := y*p.w + x
			gx.pix[i] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy.pix[i] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

var binomial5 = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// smooth5 applies the separable 5-tap binomial window in place.
func smooth5(p *plane) {
	tmp := make([]float32, len(p.pix))
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += p.at(x+k, y) * binomial5[k+2]
			}
			tmp[y*p.w+x] = s
		}
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += tmp[clamp(y+k, 0, p.h-1)*p.w+x] * binomial5[k+2]
			}
			p.pix[y*p.w+x] = s
		}
	}
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
