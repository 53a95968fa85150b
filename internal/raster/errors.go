package raster

import (
	"errors"
	"fmt"
)

var (
	// ErrTransformMismatch is returned when two grids share dimensions but
	// not origin, resolution or rotation.
	ErrTransformMismatch = errors.New("grids must share the same geotransform")

	// ErrSpatialRefMismatch is returned when two grids declare different
	// spatial references. No reprojection is attempted.
	ErrSpatialRefMismatch = errors.New("grids must share the same spatial reference")

	// ErrRotatedTransform is returned when scan conversion is asked to work
	// on a grid with non-zero rotation terms.
	ErrRotatedTransform = errors.New("rotated geotransforms are not supported")
)

// ShapeMismatchError reports that two grids (or a grid and a mask) disagree
// in dimensions.
type ShapeMismatchError struct {
	Left, Right          string
	LeftRows, LeftCols   int
	RightRows, RightCols int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("DEM and Base DEM must have the same resolution and extent: %s is %dx%d, %s is %dx%d",
		e.Left, e.LeftRows, e.LeftCols, e.Right, e.RightRows, e.RightCols)
}

// InputLoadError wraps a failure to open or decode an input file.
type InputLoadError struct {
	Path string
	Err  error
}

func (e *InputLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *InputLoadError) Unwrap() error { return e.Err }
