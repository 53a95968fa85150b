package volume

import (
	"context"
	"fmt"

	"github.com/banshee-data/volume.report/internal/config"
	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/ctessum/geom"
)

// Options configure a Calculator. The zero value uses the even-odd rule,
// derives the cell area from the DEM and logs through monitoring.Logf.
type Options struct {
	FillRule raster.FillRule

	// CellArea overrides the area derived from the DEM's geotransform.
	CellArea *float64

	// NoData is applied to input grids that do not declare a sentinel.
	NoData *float64

	ChunkRows     int
	HistogramBins int

	// Feedback receives diagnostic lines. Nil sends them to monitoring.Logf.
	Feedback Feedback
}

// OptionsFromConfig translates a loaded VolumeConfig into Options.
func OptionsFromConfig(cfg *config.VolumeConfig) (Options, error) {
	if cfg == nil {
		cfg = config.EmptyVolumeConfig()
	}
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	rule, err := raster.ParseFillRule(cfg.GetFillRule())
	if err != nil {
		return Options{}, err
	}
	return Options{
		FillRule:      rule,
		CellArea:      cfg.CellArea,
		NoData:        cfg.NoData,
		ChunkRows:     cfg.GetChunkRows(),
		HistogramBins: cfg.GetHistogramBins(),
	}, nil
}

// Calculator computes volumes for a DEM, a base DEM and a polygon. It holds
// only immutable options and is safe for concurrent use.
type Calculator struct {
	opts Options
}

// NewCalculator returns a Calculator using opts.
func NewCalculator(opts Options) *Calculator {
	return &Calculator{opts: opts}
}

// Options returns the calculator's options.
func (c *Calculator) Options() Options { return c.opts }

// Compute checks that dem and base conform, rasterizes poly onto the DEM's
// geometry and reduces the masked difference. Errors from the conformance
// check are returned unwrapped so callers can match them with errors.As.
func (c *Calculator) Compute(ctx context.Context, dem, base *raster.Grid, poly geom.Polygon) (*Analysis, error) {
	return c.compute(ctx, dem, base, poly, c.opts.Feedback)
}

// ComputeWithFeedback is Compute with a per-call feedback sink, used when
// the diagnostic lines belong to one request.
func (c *Calculator) ComputeWithFeedback(ctx context.Context, dem, base *raster.Grid, poly geom.Polygon, feedback Feedback) (*Analysis, error) {
	return c.compute(ctx, dem, base, poly, feedback)
}

func (c *Calculator) compute(ctx context.Context, dem, base *raster.Grid, poly geom.Polygon, feedback Feedback) (*Analysis, error) {
	if dem == nil || base == nil {
		return nil, fmt.Errorf("dem and base are required")
	}
	if err := dem.Conforms(base); err != nil {
		return nil, err
	}
	dem, base = c.withNoData(dem), c.withNoData(base)

	mask, err := raster.Rasterize(poly, dem.Geometry, c.opts.FillRule)
	if err != nil {
		return nil, fmt.Errorf("rasterize polygon: %w", err)
	}

	cellArea := dem.Transform.CellArea()
	if c.opts.CellArea != nil {
		cellArea = *c.opts.CellArea
	}
	if feedback == nil {
		feedback = func(format string, args ...interface{}) { monitoring.Logf(format, args...) }
	}
	return Analyze(ctx, dem, base, mask, cellArea, AnalyzeOptions{
		ChunkRows:     c.opts.ChunkRows,
		HistogramBins: c.opts.HistogramBins,
		Feedback:      feedback,
	})
}

// withNoData returns g, or a shallow copy carrying the configured sentinel
// when g declares none.
func (c *Calculator) withNoData(g *raster.Grid) *raster.Grid {
	if c.opts.NoData == nil || g.NoData != nil {
		return g
	}
	cp := *g
	nd := *c.opts.NoData
	cp.NoData = &nd
	return &cp
}
