// Package report renders visual outputs of a volume computation: a heat map
// of the elevation difference and an HTML histogram of its distribution.
package report

import (
	"fmt"
	"image/color"
	"math"

	"github.com/banshee-data/volume.report/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// paletteColors is the number of steps sampled from the diverging colour map.
const paletteColors = 255

// differenceGrid adapts a difference grid to plotter.GridXYZ. Rows are
// flipped for north-up grids so Y increases with the row index.
type differenceGrid struct {
	g    *raster.Grid
	flip bool
}

func newDifferenceGrid(g *raster.Grid) differenceGrid {
	return differenceGrid{g: g, flip: g.Transform.PixelHeight() < 0}
}

func (d differenceGrid) Dims() (c, r int) { return d.g.Cols, d.g.Rows }

func (d differenceGrid) row(r int) int {
	if d.flip {
		return d.g.Rows - 1 - r
	}
	return r
}

func (d differenceGrid) Z(c, r int) float64 {
	v := d.g.At(d.row(r), c)
	if d.g.IsNoData(v) {
		return math.NaN()
	}
	return v
}

func (d differenceGrid) X(c int) float64 {
	x, _ := d.g.Transform.CellCenter(0, c)
	return x
}

func (d differenceGrid) Y(r int) float64 {
	_, y := d.g.Transform.CellCenter(d.row(r), 0)
	return y
}

// symmetricRange returns ±max|v| over the finite values of g so zero sits
// at the middle of the diverging palette. An empty grid maps to ±1.
func symmetricRange(g *raster.Grid) float64 {
	vals := make([]float64, 0, len(g.Values))
	for _, v := range g.Values {
		if !g.IsNoData(v) {
			vals = append(vals, math.Abs(v))
		}
	}
	if len(vals) == 0 {
		return 1
	}
	if m := floats.Max(vals); m > 0 {
		return m
	}
	return 1
}

// WriteDifferencePlot renders diff as a heat map of the given size. The
// output format follows the extension of path (png, svg, pdf). Cells without
// data are transparent.
func WriteDifferencePlot(path string, diff *raster.Grid, title string, width, height vg.Length) error {
	if diff == nil || diff.Cells() == 0 {
		return fmt.Errorf("difference grid is empty")
	}
	if diff.Transform.Rotated() {
		return raster.ErrRotatedTransform
	}

	extent := symmetricRange(diff)
	cm := moreland.SmoothBlueRed()
	cm.SetMax(extent)
	cm.SetMin(-extent)
	cm.SetConvergePoint(0)

	hm := plotter.NewHeatMap(newDifferenceGrid(diff), cm.Palette(paletteColors))
	hm.Min, hm.Max = -extent, extent
	hm.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"
	p.Add(hm)

	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save difference plot: %w", err)
	}
	return nil
}
