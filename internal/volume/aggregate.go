package volume

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/volume.report/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults applied by Analyze when options are left zero.
const (
	DefaultChunkRows     = 256
	DefaultHistogramBins = 20
)

// Feedback receives human-readable progress lines. It has the same shape as
// monitoring.Logf so the package logger can be passed directly.
type Feedback func(format string, args ...interface{})

// AnalyzeOptions tune Analyze. The zero value is usable.
type AnalyzeOptions struct {
	// ChunkRows is the number of rows reduced between cancellation checks.
	ChunkRows int
	// HistogramBins is the number of difference histogram bins.
	HistogramBins int
	// Feedback receives diagnostic lines; nil discards them.
	Feedback Feedback
}

func (o AnalyzeOptions) withDefaults() AnalyzeOptions {
	if o.ChunkRows <= 0 {
		o.ChunkRows = DefaultChunkRows
	}
	if o.HistogramBins <= 0 {
		o.HistogramBins = DefaultHistogramBins
	}
	if o.Feedback == nil {
		o.Feedback = func(string, ...interface{}) {}
	}
	return o
}

// Aggregate reduces the masked differences dem - base into cut, fill and net
// volumes, each scaled by cellArea. Cells outside the mask and masked cells
// holding no-data in either grid are excluded from every sum.
//
// Shapes are checked before any numeric work; a disagreement is returned as
// *raster.ShapeMismatchError. An empty region yields zeros with
// Result.Warning set to ErrEmptyRegion.
func Aggregate(dem, base *raster.Grid, mask *raster.Mask, cellArea float64) (Result, error) {
	a, err := Analyze(context.Background(), dem, base, mask, cellArea, AnalyzeOptions{})
	if err != nil {
		return Result{}, err
	}
	return a.Result, nil
}

// Analyze performs the same reduction as Aggregate and also returns
// diagnostics and the difference grid. Rows are processed in chunks of
// opts.ChunkRows and ctx is polled once per chunk.
func Analyze(ctx context.Context, dem, base *raster.Grid, mask *raster.Mask, cellArea float64, opts AnalyzeOptions) (*Analysis, error) {
	if err := checkInputs(dem, base, mask); err != nil {
		return nil, err
	}
	if math.IsNaN(cellArea) || math.IsInf(cellArea, 0) || cellArea <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCellArea, cellArea)
	}
	opts = opts.withDefaults()

	acc := newAccumulator(dem, base, mask)
	for r0 := 0; r0 < dem.Rows; r0 += opts.ChunkRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc.addRows(r0, min(r0+opts.ChunkRows, dem.Rows))
	}

	a, err := acc.finish(cellArea, opts.HistogramBins)
	if err != nil {
		return nil, err
	}
	report(a, opts.Feedback)
	return a, nil
}

func checkInputs(dem, base *raster.Grid, mask *raster.Mask) error {
	if dem == nil || base == nil || mask == nil {
		return fmt.Errorf("dem, base and mask are required")
	}
	if dem.Rows != base.Rows || dem.Cols != base.Cols {
		return &raster.ShapeMismatchError{
			Left: "DEM", LeftRows: dem.Rows, LeftCols: dem.Cols,
			Right: "Base DEM", RightRows: base.Rows, RightCols: base.Cols,
		}
	}
	if mask.Rows != dem.Rows || mask.Cols != dem.Cols {
		return &raster.ShapeMismatchError{
			Left: "DEM", LeftRows: dem.Rows, LeftCols: dem.Cols,
			Right: "mask", RightRows: mask.Rows, RightCols: mask.Cols,
		}
	}
	n := dem.Rows * dem.Cols
	if len(dem.Values) != n || len(base.Values) != n {
		return fmt.Errorf("grid value count does not match %dx%d dimensions", dem.Rows, dem.Cols)
	}
	return nil
}

// accumulator carries the running reduction across row chunks.
type accumulator struct {
	dem, base *raster.Grid
	mask      *raster.Mask

	diff []float64

	demVals  []float64
	baseVals []float64
	diffs    []float64

	masked, gaps       int
	positive, negative int
	cutSum, fillSum    float64
}

func newAccumulator(dem, base *raster.Grid, mask *raster.Mask) *accumulator {
	diff := make([]float64, len(dem.Values))
	for i := range diff {
		diff[i] = math.NaN()
	}
	return &accumulator{dem: dem, base: base, mask: mask, diff: diff}
}

func (a *accumulator) addRows(r0, r1 int) {
	cols := a.dem.Cols
	for row := r0; row < r1; row++ {
		for col := 0; col < cols; col++ {
			if !a.mask.At(row, col) {
				continue
			}
			a.masked++

			i := row*cols + col
			d, b := a.dem.Values[i], a.base.Values[i]
			if a.dem.IsNoData(d) || a.base.IsNoData(b) {
				a.gaps++
				continue
			}
			v := d - b
			if math.IsInf(v, 0) {
				a.gaps++
				continue
			}

			a.diff[i] = v
			a.demVals = append(a.demVals, d)
			a.baseVals = append(a.baseVals, b)
			a.diffs = append(a.diffs, v)
			switch {
			case v > 0:
				a.cutSum += v
				a.positive++
			case v < 0:
				a.fillSum -= v
				a.negative++
			}
		}
	}
}

func (a *accumulator) finish(cellArea float64, bins int) (*Analysis, error) {
	cut := a.cutSum * cellArea
	fill := a.fillSum * cellArea
	if math.IsInf(cut, 0) || math.IsInf(fill, 0) {
		return nil, fmt.Errorf("%w: cut %v, fill %v", ErrVolumeOverflow, cut, fill)
	}
	res := Result{
		Cut:        cut,
		Fill:       fill,
		Net:        cut - fill,
		CellArea:   cellArea,
		ValidCells: len(a.diffs),
	}
	if len(a.diffs) == 0 {
		res.Warning = ErrEmptyRegion
	}

	diag := Diagnostics{
		MaskedCells:   a.masked,
		ValidCells:    len(a.diffs),
		GapCells:      a.gaps,
		PositiveCells: a.positive,
		NegativeCells: a.negative,
		DEM:           extentOf(a.demVals),
		Base:          extentOf(a.baseVals),
		Difference:    extentOf(a.diffs),
		Histogram:     histogramOf(a.diffs, bins),
	}
	switch len(a.diffs) {
	case 0:
	case 1:
		diag.DiffMean = a.diffs[0]
	default:
		diag.DiffMean, diag.DiffStdDev = stat.MeanStdDev(a.diffs, nil)
	}
	// Squared deviations of extreme but finite differences can overflow.
	if !isFinite(diag.DiffMean) {
		diag.DiffMean = 0
	}
	if !isFinite(diag.DiffStdDev) {
		diag.DiffStdDev = 0
	}

	diffGrid := &raster.Grid{
		Geometry:   a.dem.Geometry,
		SpatialRef: a.dem.SpatialRef,
		Values:     a.diff,
	}
	return &Analysis{Result: res, Diagnostics: diag, Mask: a.mask, Difference: diffGrid}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func extentOf(x []float64) Extent {
	if len(x) == 0 {
		return Extent{}
	}
	return Extent{Min: floats.Min(x), Max: floats.Max(x), Valid: true}
}

// histogramOf bins x into equal-width bins spanning [min(x), max(x)]. The
// last bin is closed.
func histogramOf(x []float64, bins int) Histogram {
	if len(x) == 0 || bins <= 0 {
		return Histogram{}
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi || math.IsInf(hi-lo, 0) {
		bins = 1
	}
	var edges []float64
	if bins == 1 {
		edges = []float64{lo, hi}
	} else {
		edges = floats.Span(make([]float64, bins+1), lo, hi)
	}
	edges[bins] = hi

	// stat.Histogram bins are half-open, so samples equal to hi are added to
	// the top bin by hand. This keeps every edge finite.
	n := sort.SearchFloat64s(sorted, hi)
	counts := stat.Histogram(make([]float64, bins), edges, sorted[:n], nil)
	counts[bins-1] += float64(len(sorted) - n)
	return Histogram{Edges: edges, Counts: counts}
}

func report(a *Analysis, feedback Feedback) {
	d := a.Diagnostics
	if d.DEM.Valid {
		feedback("DEM min and max within polygon: %v, %v", d.DEM.Min, d.DEM.Max)
		feedback("Base DEM min and max within polygon: %v, %v", d.Base.Min, d.Base.Max)
	}
	feedback("Valid mask sum (number of cells within polygon): %d", d.MaskedCells)
	if d.GapCells > 0 {
		feedback("Masked cells without data in either DEM (excluded): %d", d.GapCells)
	}
	if d.Difference.Valid {
		feedback("Max and Min values in diff: %v, %v", d.Difference.Max, d.Difference.Min)
	}
	feedback("Number of positive values in diff (cut volume): %d", d.PositiveCells)
	feedback("Number of negative values in diff (fill volume): %d", d.NegativeCells)
	if a.Result.Warning != nil {
		feedback("Warning: %v", a.Result.Warning)
	}
	feedback("Cut Volume: %v", a.Result.Cut)
	feedback("Fill Volume: %v", a.Result.Fill)
	feedback("Net Volume: %v", a.Result.Net)
}
