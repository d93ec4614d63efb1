package features

import "math"

// DescriptorLen is the number of samples in a Descriptor.
const DescriptorLen = descGrid * descGrid

// Descriptor is a rotated, contrast-normalized patch of ink samples.
type Descriptor [DescriptorLen]float32

// minPatchStd rejects patches without enough contrast to describe.
const minPatchStd = 0.02

// describe samples an 8x8 grid centred on (cx,cy) and rotated by angle.
// It returns false for flat patches.
func describe(p *plane, cx, cy, angle float64) (Descriptor, bool) {
	var d Descriptor
	sin, cos := math.Sincos(angle)
	half := float64(descGrid-1) / 2

	var sum float64
	for j := 0; j < descGrid; j++ {
		v := (float64(j) - half) * descSpacing
		for i := 0; i < descGrid; i++ {
			u := (float64(i) - half) * descSpacing
			x := cx + u*cos - v*sin
			y := cy + u*sin + v*cos
			s := p.bilinear(x, y)
			d[j*descGrid+i] = s
			sum += float64(s)
		}
	}

	mean := sum / DescriptorLen
	var ss float64
	for _, s := range d {
		dv := float64(s) - mean
		ss += dv * dv
	}
	std := math.Sqrt(ss / DescriptorLen)
	if std < minPatchStd {
		return d, false
	}
	for k := range d {
		d[k] = float32((float64(d[k]) - mean) / std)
	}
	return d, true
}

// dist2 returns the squared Euclidean distance between two descriptors.
func dist2(a, b *Descriptor) float32 {
	var s float32
	for k := range a {
		dv := a[k] - b[k]
		s += dv * dv
	}
	return s
}
