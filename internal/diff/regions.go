package diff

import (
	"image"
)

// Region is one contiguous area of change.
type Region struct {
	// Bounds encloses the differing pixels of the region.
	Bounds image.Rectangle `json:"bounds"`
	// Area is the number of differing pixels.
	Area    int `json:"area"`
	Removed int `json:"removed"`
	Added   int `json:"added"`
}

// Regions groups the removed and added pixels of m into change regions.
// Differing pixels whose Chebyshev distance is at most 2*mergeRadius+1 end up
// in the same region. A symbol moved by less than its own size leaves a
// removed strip on its trailing edge and an added strip on its leading edge,
// separated by the overlap that stayed common; it counts once only while
// that gap is within 2*mergeRadius+1, and twice for larger symbols. Regions
// with fewer than minArea differing pixels are dropped. The result is in scan
// order of each region's first pixel.
func Regions(m *Masks, mergeRadius, minArea int) []Region {
	changed := m.Changed()
	if changed.Empty() {
		return nil
	}
	grouped := changed.dilateSquare(mergeRadius)
	w, h := grouped.w, grouped.h
	visited := NewMask(w, h)

	var regions []Region
	for y := 0; y < h; y++ {
		row := grouped.row(y)
		for x := 0; x < w; x++ {
			if x&63 == 0 && row[x>>6] == 0 {
				x += 63
				continue
			}
			if !grouped.Get(x, y) || visited.Get(x, y) {
				continue
			}
			r := floodFill(grouped, visited, x, y, func(px, py int, reg *Region) {
				removed := m.Removed.Get(px, py)
				added := m.Added.Get(px, py)
				if !removed && !added {
					return
				}
				pt := image.Rect(px, py, px+1, py+1)
				if reg.Area == 0 {
					reg.Bounds = pt
				} else {
					reg.Bounds = reg.Bounds.Union(pt)
				}
				reg.Area++
				if removed {
					reg.Removed++
				}
				if added {
					reg.Added++
				}
			})
			if r.Area > 0 && r.Area >= minArea {
				regions = append(regions, r)
			}
		}
	}
	return regions
}

// ChangeCount is len(Regions(m, mergeRadius, minArea)).
func ChangeCount(m *Masks, mergeRadius, minArea int) int {
	return len(Regions(m, mergeRadius, minArea))
}

// floodFill visits the 8-connected component of grid containing (startX,
// startY), marking it in visited and feeding every pixel to visit.
func floodFill(grid, visited *Mask, startX, startY int, visit func(x, y int, r *Region)) Region {
	var reg Region
	stack := []image.Point{{X: startX, Y: startY}}
	visited.Set(startX, startY)

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(p.X, p.Y, &reg)

		// 8-connected neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := p.X+dx, p.Y+dy
				if grid.Get(nx, ny) && !visited.Get(nx, ny) {
					visited.Set(nx, ny)
					stack = append(stack, image.Point{X: nx, Y: ny})
				}
			}
		}
	}
	return reg
}
