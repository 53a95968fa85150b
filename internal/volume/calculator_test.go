package volume

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/volume.report/internal/config"
	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

func TestCalculator_FullExtent(t *testing.T) {
	t.Parallel()
	dem := grid(t, 3, 3, fill(9, 5)...)
	base := grid(t, 3, 3, fill(9, 3)...)

	calc := NewCalculator(Options{Feedback: func(string, ...interface{}) {}})
	a, err := calc.Compute(context.Background(), dem, base, square(0, 0, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, 9, a.Mask.Count())
	assert.Equal(t, 18.0, a.Result.Cut)
	assert.Equal(t, 0.0, a.Result.Fill)
	assert.Equal(t, 18.0, a.Result.Net)
}

func TestCalculator_PolygonOutsideGrid(t *testing.T) {
	t.Parallel()
	dem := grid(t, 3, 3, fill(9, 5)...)
	base := grid(t, 3, 3, fill(9, 3)...)

	calc := NewCalculator(Options{Feedback: func(string, ...interface{}) {}})
	a, err := calc.Compute(context.Background(), dem, base, square(100, 100, 110, 110))
	require.NoError(t, err)
	assert.False(t, a.Mask.Any())
	assert.ErrorIs(t, a.Result.Warning, ErrEmptyRegion)
	assert.Equal(t, 0.0, a.Result.Cut)
}

func TestCalculator_CellAreaFromTransform(t *testing.T) {
	t.Parallel()
	g := raster.Geometry{Rows: 2, Cols: 2, Transform: raster.NorthUp(0, 4, 2, 2)}
	dem, err := raster.NewGrid(g, "", []float64{2, 2, 2, 2})
	require.NoError(t, err)
	base, err := raster.NewGrid(g, "", []float64{1, 1, 1, 1})
	require.NoError(t, err)

	calc := NewCalculator(Options{Feedback: func(string, ...interface{}) {}})
	a, err := calc.Compute(context.Background(), dem, base, square(0, 0, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, 4.0, a.Result.CellArea)
	assert.Equal(t, 16.0, a.Result.Cut)

	area := 1.0
	calc = NewCalculator(Options{CellArea: &area, Feedback: func(string, ...interface{}) {}})
	a, err = calc.Compute(context.Background(), dem, base, square(0, 0, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, 4.0, a.Result.Cut)
}

func TestCalculator_Mismatches(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Options{})
	dem := grid(t, 2, 2, 1, 1, 1, 1)

	_, err := calc.Compute(context.Background(), dem, grid(t, 3, 3, fill(9, 0)...), square(0, 0, 2, 2))
	var shapeErr *raster.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)

	shifted, err := raster.NewGrid(raster.Geometry{Rows: 2, Cols: 2, Transform: raster.NorthUp(10, 2, 1, 1)}, "", fill(4, 0))
	require.NoError(t, err)
	_, err = calc.Compute(context.Background(), dem, shifted, square(0, 0, 2, 2))
	assert.ErrorIs(t, err, raster.ErrTransformMismatch)

	a := grid(t, 2, 2, fill(4, 0)...)
	a.SpatialRef = "EPSG:2193"
	b := grid(t, 2, 2, fill(4, 0)...)
	b.SpatialRef = "EPSG:4326"
	_, err = calc.Compute(context.Background(), a, b, square(0, 0, 2, 2))
	assert.ErrorIs(t, err, raster.ErrSpatialRefMismatch)
}

func TestCalculator_FeedbackPerCall(t *testing.T) {
	t.Parallel()
	dem := grid(t, 1, 2, 3, 1)
	base := grid(t, 1, 2, 1, 3)

	calc := NewCalculator(Options{Feedback: func(string, ...interface{}) {
		t.Error("constructor feedback should not be used")
	}})
	var n int
	a, err := calc.ComputeWithFeedback(context.Background(), dem, base, square(0, 0, 2, 1), func(string, ...interface{}) { n++ })
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Equal(t, 2.0, a.Result.Cut)
	assert.Equal(t, 2.0, a.Result.Fill)
}

func TestCalculator_NoDataOverride(t *testing.T) {
	t.Parallel()
	dem := grid(t, 1, 2, -1, 5)
	base := grid(t, 1, 2, 0, 0)

	nd := -1.0
	calc := NewCalculator(Options{NoData: &nd, Feedback: func(string, ...interface{}) {}})
	a, err := calc.Compute(context.Background(), dem, base, square(0, 0, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Diagnostics.GapCells)
	assert.Equal(t, 5.0, a.Result.Cut)
	assert.Nil(t, dem.NoData, "input grid must not be modified")
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()
	opts, err := OptionsFromConfig(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, raster.EvenOdd, opts.FillRule)
	assert.Equal(t, 256, opts.ChunkRows)
	assert.Equal(t, 20, opts.HistogramBins)
	assert.Nil(t, opts.CellArea)

	rule := "non-zero"
	area := 0.5
	opts, err = OptionsFromConfig(&config.VolumeConfig{FillRule: &rule, CellArea: &area})
	require.NoError(t, err)
	assert.Equal(t, raster.NonZero, opts.FillRule)
	assert.Equal(t, 0.5, *opts.CellArea)

	bad := -2.0
	_, err = OptionsFromConfig(&config.VolumeConfig{CellArea: &bad})
	assert.Error(t, err)
}
