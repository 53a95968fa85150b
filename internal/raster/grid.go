package raster

import (
	"fmt"
	"math"
	"strings"
)

// Grid is a row-major elevation grid. Values[row*Cols+col] holds the
// elevation of cell (row, col). Grids are not modified after construction.
type Grid struct {
	Geometry

	// SpatialRef identifies the coordinate reference system (WKT, PROJ
	// string or EPSG code). Empty means unknown.
	SpatialRef string

	// NoData is the sentinel marking absent cells, if the source declared one.
	// NaN and ±Inf are always treated as absent.
	NoData *float64

	Values []float64
}

// NewGrid validates geometry and value count and returns a Grid.
func NewGrid(geom Geometry, spatialRef string, values []float64) (*Grid, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if len(values) != geom.Cells() {
		return nil, fmt.Errorf("grid has %d values, want %d (%dx%d)", len(values), geom.Cells(), geom.Rows, geom.Cols)
	}
	return &Grid{Geometry: geom, SpatialRef: spatialRef, Values: values}, nil
}

// At returns the value at (row, col). It panics on out-of-range indices.
func (g *Grid) At(row, col int) float64 {
	return g.Values[row*g.Cols+col]
}

// IsNoData reports whether v marks an absent cell in this grid.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return g.NoData != nil && v == *g.NoData
}

// Conforms checks that other can take part in a cell-wise computation with g:
// same dimensions, same geotransform and, when both declare one, the same
// spatial reference.
func (g *Grid) Conforms(other *Grid) error {
	if !g.SameShape(other.Geometry) {
		return &ShapeMismatchError{
			Left: "DEM", LeftRows: g.Rows, LeftCols: g.Cols,
			Right: "Base DEM", RightRows: other.Rows, RightCols: other.Cols,
		}
	}
	if !g.Transform.Equal(other.Transform) {
		return fmt.Errorf("%w: %v vs %v", ErrTransformMismatch, g.Transform, other.Transform)
	}
	a, b := normaliseSpatialRef(g.SpatialRef), normaliseSpatialRef(other.SpatialRef)
	if a != "" && b != "" && a != b {
		return ErrSpatialRefMismatch
	}
	return nil
}

func normaliseSpatialRef(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
