package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical volume defaults file.
const DefaultConfigPath = "config/volume.defaults.json"

// VolumeConfig holds the optional knobs of a volume computation. Every field
// is a pointer so a partial JSON file leaves the rest at their defaults; the
// Get* accessors supply those defaults.
type VolumeConfig struct {
	// CellArea overrides the ground area of one cell. When unset the area is
	// derived from the DEM's geotransform (|pixel width * pixel height|).
	CellArea *float64 `json:"cell_area,omitempty"`

	// FillRule is "even-odd" or "non-zero".
	FillRule *string `json:"fill_rule,omitempty"`

	// ChunkRows is the number of rows reduced between cancellation checks.
	ChunkRows *int `json:"chunk_rows,omitempty"`

	// HistogramBins is the number of difference histogram bins.
	HistogramBins *int `json:"histogram_bins,omitempty"`

	// NoData is applied to grids that do not declare their own sentinel.
	NoData *float64 `json:"nodata,omitempty"`

	// Plot size for the difference heat map.
	PlotWidthInches  *float64 `json:"plot_width_inches,omitempty"`
	PlotHeightInches *float64 `json:"plot_height_inches,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyVolumeConfig returns a VolumeConfig with all fields set to nil.
func EmptyVolumeConfig() *VolumeConfig {
	return &VolumeConfig{}
}

// DefaultVolumeConfig returns a VolumeConfig with every defaulted field set
// explicitly. CellArea and NoData stay nil because their defaults come from
// the input grids.
func DefaultVolumeConfig() *VolumeConfig {
	return &VolumeConfig{
		FillRule:         ptrString("even-odd"),
		ChunkRows:        ptrInt(256),
		HistogramBins:    ptrInt(20),
		PlotWidthInches:  ptrFloat64(8),
		PlotHeightInches: ptrFloat64(8),
	}
}

// LoadVolumeConfig loads a VolumeConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file keep their defaults.
func LoadVolumeConfig(path string) (*VolumeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyVolumeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *VolumeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadVolumeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *VolumeConfig) Validate() error {
	if c.CellArea != nil {
		if v := *c.CellArea; math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("cell_area must be positive and finite, got %v", v)
		}
	}
	if c.FillRule != nil {
		switch strings.ToLower(*c.FillRule) {
		case "even-odd", "evenodd", "non-zero", "nonzero":
		default:
			return fmt.Errorf("fill_rule must be even-odd or non-zero, got %q", *c.FillRule)
		}
	}
	if c.ChunkRows != nil && *c.ChunkRows <= 0 {
		return fmt.Errorf("chunk_rows must be positive, got %d", *c.ChunkRows)
	}
	if c.HistogramBins != nil && (*c.HistogramBins <= 0 || *c.HistogramBins > 1000) {
		return fmt.Errorf("histogram_bins must be between 1 and 1000, got %d", *c.HistogramBins)
	}
	if c.NoData != nil && math.IsNaN(*c.NoData) {
		return fmt.Errorf("nodata must be a number")
	}
	if c.PlotWidthInches != nil && *c.PlotWidthInches <= 0 {
		return fmt.Errorf("plot_width_inches must be positive, got %v", *c.PlotWidthInches)
	}
	if c.PlotHeightInches != nil && *c.PlotHeightInches <= 0 {
		return fmt.Errorf("plot_height_inches must be positive, got %v", *c.PlotHeightInches)
	}
	return nil
}

// GetFillRule returns the fill_rule value or the default.
func (c *VolumeConfig) GetFillRule() string {
	if c.FillRule == nil || *c.FillRule == "" {
		return "even-odd"
	}
	return *c.FillRule
}

// GetChunkRows returns the chunk_rows value or the default.
func (c *VolumeConfig) GetChunkRows() int {
	if c.ChunkRows == nil {
		return 256
	}
	return *c.ChunkRows
}

// GetHistogramBins returns the histogram_bins value or the default.
func (c *VolumeConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 20
	}
	return *c.HistogramBins
}

// GetPlotWidthInches returns the plot_width_inches value or the default.
func (c *VolumeConfig) GetPlotWidthInches() float64 {
	if c.PlotWidthInches == nil {
		return 8
	}
	return *c.PlotWidthInches
}

// GetPlotHeightInches returns the plot_height_inches value or the default.
func (c *VolumeConfig) GetPlotHeightInches() float64 {
	if c.PlotHeightInches == nil {
		return 8
	}
	return *c.PlotHeightInches
}
