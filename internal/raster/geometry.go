package raster

import (
	"fmt"
	"math"
)

// GeoTransform holds the six affine coefficients mapping grid indices to
// world coordinates, in GDAL order:
//
//	[originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight]
//
// x = originX + col*pixelWidth + row*rowRotation
// y = originY + col*colRotation + row*pixelHeight
//
// The origin is the outer corner of cell (0, 0). North-up grids carry a
// negative pixelHeight so that row 0 is the northernmost row.
type GeoTransform [6]float64

// NorthUp builds a transform for an unrotated grid whose upper-left corner
// is (originX, originY) and whose cells are width x height world units.
func NorthUp(originX, originY, width, height float64) GeoTransform {
	return GeoTransform{originX, width, 0, originY, 0, -math.Abs(height)}
}

// OriginX returns the world X of the grid's outer corner.
func (t GeoTransform) OriginX() float64 { return t[0] }

// OriginY returns the world Y of the grid's outer corner.
func (t GeoTransform) OriginY() float64 { return t[3] }

// PixelWidth returns the signed cell size along columns.
func (t GeoTransform) PixelWidth() float64 { return t[1] }

// PixelHeight returns the signed cell size along rows.
func (t GeoTransform) PixelHeight() float64 { return t[5] }

// Rotated reports whether either rotation term is non-zero.
func (t GeoTransform) Rotated() bool { return t[2] != 0 || t[4] != 0 }

// CellArea returns the ground area of one cell, |pixelWidth * pixelHeight|.
func (t GeoTransform) CellArea() float64 {
	return math.Abs(t[1]*t[5] - t[2]*t[4])
}

// CellCenter returns the world coordinates of the centre of cell (row, col).
func (t GeoTransform) CellCenter(row, col int) (x, y float64) {
	c := float64(col) + 0.5
	r := float64(row) + 0.5
	return t[0] + c*t[1] + r*t[2], t[3] + c*t[4] + r*t[5]
}

// Equal reports whether both transforms carry identical coefficients.
func (t GeoTransform) Equal(o GeoTransform) bool {
	return t == o
}

// Geometry describes the extent, resolution and alignment of a grid.
type Geometry struct {
	Rows      int
	Cols      int
	Transform GeoTransform
}

// Validate checks that the geometry describes a usable, non-empty grid.
func (g Geometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", g.Rows, g.Cols)
	}
	for i, v := range g.Transform {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("geotransform coefficient %d is not finite: %v", i, v)
		}
	}
	if g.Transform.PixelWidth() == 0 || g.Transform.PixelHeight() == 0 {
		return fmt.Errorf("pixel size must be non-zero, got %vx%v",
			g.Transform.PixelWidth(), g.Transform.PixelHeight())
	}
	return nil
}

// Cells returns Rows*Cols.
func (g Geometry) Cells() int { return g.Rows * g.Cols }

// Bounds returns the world-space bounding box of an unrotated grid.
func (g Geometry) Bounds() (minX, minY, maxX, maxY float64) {
	t := g.Transform
	x0, x1 := t.OriginX(), t.OriginX()+float64(g.Cols)*t.PixelWidth()
	y0, y1 := t.OriginY(), t.OriginY()+float64(g.Rows)*t.PixelHeight()
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// SameShape reports whether both geometries have identical dimensions.
func (g Geometry) SameShape(o Geometry) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols
}
