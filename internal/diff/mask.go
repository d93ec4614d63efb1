package diff

import (
	"math/bits"

	"github.com/anthonynsimon/bild/parallel"
)

// Mask is a packed boolean grid. Bits past the row width are always zero.
type Mask struct {
	w, h  int
	words int
	bits  []uint64
}

// NewMask returns an empty w x h mask.
func NewMask(w, h int) *Mask {
	words := (w + 63) / 64
	return &Mask{w: w, h: h, words: words, bits: make([]uint64, words*h)}
}

func (m *Mask) Width() int  { return m.w }
func (m *Mask) Height() int { return m.h }

// Get reports whether (x,y) is set. Out-of-range coordinates read as unset.
func (m *Mask) Get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.bits[y*m.words+x>>6]&(1<<(uint(x)&63)) != 0
}

// Set marks (x,y). Out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return
	}
	m.bits[y*m.words+x>>6] |= 1 << (uint(x) & 63)
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Empty reports whether no pixel is set.
func (m *Mask) Empty() bool {
	for _, w := range m.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (m *Mask) Clone() *Mask {
	c := &Mask{w: m.w, h: m.h, words: m.words, bits: make([]uint64, len(m.bits))}
	copy(c.bits, m.bits)
	return c
}

// And returns m ∧ o.
func (m *Mask) And(o *Mask) *Mask { return m.combine(o, func(a, b uint64) uint64 { return a & b }) }

// Or returns m ∨ o.
func (m *Mask) Or(o *Mask) *Mask { return m.combine(o, func(a, b uint64) uint64 { return a | b }) }

// AndNot returns m ∧ ¬o.
func (m *Mask) AndNot(o *Mask) *Mask { return m.combine(o, func(a, b uint64) uint64 { return a &^ b }) }

func (m *Mask) combine(o *Mask, op func(a, b uint64) uint64) *Mask {
	out := &Mask{w: m.w, h: m.h, words: m.words, bits: make([]uint64, len(m.bits))}
	for i := range m.bits {
		out.bits[i] = op(m.bits[i], o.bits[i])
	}
	return out
}

// Intersects reports whether m and o share a set pixel.
func (m *Mask) Intersects(o *Mask) bool {
	for i := range m.bits {
		if m.bits[i]&o.bits[i] != 0 {
			return true
		}
	}
	return false
}

// row returns the words of row y.
func (m *Mask) row(y int) []uint64 { return m.bits[y*m.words : (y+1)*m.words] }

// tail clears the bits of a row that lie past the mask width.
func (m *Mask) tail(row []uint64) {
	if rem := m.w & 63; rem != 0 {
		row[len(row)-1] &= 1<<uint(rem) - 1
	}
}

// dilateSquare grows every set pixel to a (2r+1) x (2r+1) square, clipped to
// the mask. Both passes work on whole words and run rows in parallel.
func (m *Mask) dilateSquare(r int) *Mask {
	if r <= 0 {
		return m.Clone()
	}
	horiz := NewMask(m.w, m.h)
	parallel.Line(m.h, func(start, end int) {
		tmp := make([]uint64, m.words)
		for y := start; y < end; y++ {
			dst := horiz.row(y)
			copy(dst, m.row(y))
			// Each step widens the covered run [-reach, reach] by s on both
			// sides; s <= 2*reach+1 keeps the run gap-free.
			for reach := 0; reach < r; {
				s := min(r-reach, 2*reach+1, 63)
				copy(tmp, dst)
				orShifted(dst, tmp, uint(s))
				m.tail(dst)
				reach += s
			}
		}
	})

	out := NewMask(m.w, m.h)
	parallel.Line(m.h, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out.row(y)
			for yy := max(0, y-r); yy <= min(m.h-1, y+r); yy++ {
				for i, w := range horiz.row(yy) {
					dst[i] |= w
				}
			}
		}
	})
	return out
}

// orShifted sets dst to src | src<<s | src>>s, treating src as one bit row
// with bit x at word x/64, position x%64. 0 < s < 64.
func orShifted(dst, src []uint64, s uint) {
	n := len(src)
	for i, v := range src {
		up, down := v<<s, v>>s
		if i > 0 {
			up |= src[i-1] >> (64 - s)
		}
		if i+1 < n {
			down |= src[i+1] << (64 - s)
		}
		dst[i] = v | up | down
	}
}
