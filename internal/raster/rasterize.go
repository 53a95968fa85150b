package raster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ctessum/geom"
)

// FillRule selects how overlapping rings and self-intersections decide
// whether a point is inside the polygon.
type FillRule int

const (
	// EvenOdd counts ring crossings; an odd count is inside. Inner rings are
	// holes regardless of their orientation.
	EvenOdd FillRule = iota
	// NonZero sums signed crossings; a non-zero winding number is inside.
	// Inner rings are holes only when wound opposite to the outer ring.
	NonZero
)

func (r FillRule) String() string {
	switch r {
	case EvenOdd:
		return "even-odd"
	case NonZero:
		return "non-zero"
	default:
		return fmt.Sprintf("FillRule(%d)", int(r))
	}
}

// ParseFillRule accepts "even-odd"/"evenodd" and "non-zero"/"nonzero".
func ParseFillRule(s string) (FillRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "even-odd", "evenodd":
		return EvenOdd, nil
	case "non-zero", "nonzero":
		return NonZero, nil
	}
	return EvenOdd, fmt.Errorf("unknown fill rule %q", s)
}

type crossing struct {
	x   float64
	dir int
}

// Rasterize burns poly into a mask matching g. A cell is set when its centre
// lies inside the polygon under rule. Centres exactly on a span's left
// boundary are inside, on its right boundary outside.
//
// A polygon whose bounds miss the grid yields an all-false mask. Rings with
// fewer than three distinct finite vertices are ignored.
func Rasterize(poly geom.Polygon, g Geometry, rule FillRule) (*Mask, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Transform.Rotated() {
		return nil, ErrRotatedTransform
	}

	mask := NewMask(g.Rows, g.Cols)
	rings := cleanRings(poly)
	if len(rings) == 0 {
		return mask, nil
	}

	minX, minY, maxX, maxY := g.Bounds()
	extent := &geom.Bounds{Min: geom.Point{X: minX, Y: minY}, Max: geom.Point{X: maxX, Y: maxY}}
	if !extent.Overlaps(geom.Polygon(rings).Bounds()) {
		return mask, nil
	}

	t := g.Transform
	var xs []crossing
	for row := 0; row < g.Rows; row++ {
		_, y := t.CellCenter(row, 0)
		xs = xs[:0]
		for _, ring := range rings {
			xs = appendCrossings(xs, ring, y)
		}
		if len(xs) < 2 {
			continue
		}
		sort.Slice(xs, func(i, j int) bool { return xs[i].x < xs[j].x })
		fillSpans(mask.row(row), xs, t, rule)
	}
	return mask, nil
}

// appendCrossings adds the X positions where ring crosses the horizontal
// line at y. Edges are half-open in Y so a vertex shared by two edges is
// counted once and horizontal edges never count.
func appendCrossings(xs []crossing, ring geom.Path, y float64) []crossing {
	n := len(ring)
	for i := 0; i < n; i++ {
		p0, p1 := ring[i], ring[(i+1)%n]
		if p0.Y == p1.Y {
			continue
		}
		dir := 1
		lo, hi := p0.Y, p1.Y
		if lo > hi {
			lo, hi = hi, lo
			dir = -1
		}
		if y < lo || y >= hi {
			continue
		}
		x := p0.X + (y-p0.Y)*(p1.X-p0.X)/(p1.Y-p0.Y)
		xs = append(xs, crossing{x: x, dir: dir})
	}
	return xs
}

// fillSpans sets the cells of one mask row whose centres fall between
// consecutive crossings that are inside under rule.
func fillSpans(cells []bool, xs []crossing, t GeoTransform, rule FillRule) {
	winding := 0
	for i := 0; i < len(xs)-1; i++ {
		winding += xs[i].dir
		inside := winding != 0
		if rule == EvenOdd {
			inside = (i+1)%2 == 1
		}
		if !inside || xs[i].x == xs[i+1].x {
			continue
		}
		lo, hi := columnSpan(xs[i].x, xs[i+1].x, t, len(cells))
		for c := lo; c < hi; c++ {
			cells[c] = true
		}
	}
}

// columnSpan returns the half-open column range [lo, hi) whose centres lie
// in [xa, xb), clamped to [0, cols].
func columnSpan(xa, xb float64, t GeoTransform, cols int) (lo, hi int) {
	ua := (xa-t.OriginX())/t.PixelWidth() - 0.5
	ub := (xb-t.OriginX())/t.PixelWidth() - 0.5
	if t.PixelWidth() > 0 {
		return clampIndex(math.Ceil(ua), cols), clampIndex(math.Ceil(ub), cols)
	}
	return clampIndex(math.Floor(ub)+1, cols), clampIndex(math.Floor(ua)+1, cols)
}

func clampIndex(v float64, n int) int {
	if v <= 0 {
		return 0
	}
	if v >= float64(n) {
		return n
	}
	return int(v)
}

// cleanRings drops non-finite and repeated vertices and discards rings that
// cannot enclose area.
func cleanRings(poly geom.Polygon) []geom.Path {
	var rings []geom.Path
	for _, path := range poly {
		ring := make(geom.Path, 0, len(path))
		for _, p := range path {
			if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
				continue
			}
			if len(ring) > 0 && ring[len(ring)-1] == p {
				continue
			}
			ring = append(ring, p)
		}
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		if len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return rings
}
