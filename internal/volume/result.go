package volume

import (
	"errors"

	"github.com/banshee-data/volume.report/internal/raster"
)

// Keys of the mapping returned by Result.Outputs.
const (
	OutputCutVolume  = "OUTPUT_CUT_VOLUME"
	OutputFillVolume = "OUTPUT_FILL_VOLUME"
	OutputNetVolume  = "OUTPUT_NET_VOLUME"
)

var (
	// ErrEmptyRegion is a non-fatal warning: no masked cell carried data in
	// both grids, so every volume is zero.
	ErrEmptyRegion = errors.New("region contains no valid cells; volumes are zero")

	// ErrInvalidCellArea is returned when the cell area is not a positive,
	// finite number.
	ErrInvalidCellArea = errors.New("cell area must be positive and finite")

	// ErrVolumeOverflow is returned when a summed volume exceeds the float64
	// range even though every cell difference is finite.
	ErrVolumeOverflow = errors.New("volume exceeds the representable range")
)

// Result holds the authoritative outputs of a volume computation.
type Result struct {
	Cut        float64 `json:"cut"`
	Fill       float64 `json:"fill"`
	Net        float64 `json:"net"`
	CellArea   float64 `json:"cell_area"`
	ValidCells int     `json:"valid_cells"`

	// Warning is set to ErrEmptyRegion when nothing contributed.
	Warning error `json:"-"`
}

// Outputs returns the volumes keyed for a host to display or store.
func (r Result) Outputs() map[string]float64 {
	return map[string]float64{
		OutputCutVolume:  r.Cut,
		OutputFillVolume: r.Fill,
		OutputNetVolume:  r.Net,
	}
}

// Extent is the min/max of a set of values. Valid is false when the set
// was empty.
type Extent struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Valid bool    `json:"valid"`
}

// Histogram bins masked elevation differences. Edges has len(Counts)+1
// entries; bin i covers [Edges[i], Edges[i+1]).
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// Diagnostics are reporting aids. Nothing in the computation reads them.
type Diagnostics struct {
	MaskedCells   int       `json:"masked_cells"`
	ValidCells    int       `json:"valid_cells"`
	GapCells      int       `json:"gap_cells"`
	PositiveCells int       `json:"positive_cells"`
	NegativeCells int       `json:"negative_cells"`
	DEM           Extent    `json:"dem"`
	Base          Extent    `json:"base"`
	Difference    Extent    `json:"difference"`
	DiffMean      float64   `json:"diff_mean"`
	DiffStdDev    float64   `json:"diff_std_dev"`
	Histogram     Histogram `json:"histogram"`
}

// Analysis bundles the result with everything computed on the way.
type Analysis struct {
	Result      Result
	Diagnostics Diagnostics

	// Mask is the validity mask the volumes were reduced over.
	Mask *raster.Mask

	// Difference holds dem - base at valid cells and NaN elsewhere. It shares
	// the DEM's geometry and spatial reference.
	Difference *raster.Grid
}
