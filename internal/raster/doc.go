// Package raster owns the grid side of the volume data model.
//
// Responsibilities: grid geometry (affine transform, dimensions), elevation
// grids with no-data handling, validity masks, polygon scan conversion, and
// ESRI ASCII grid I/O.
// Key types: GeoTransform, Geometry, Grid, Mask.
//
// Dependency rule: raster never depends on volume, db or api.
// No SQL/database code is allowed in this package.
package raster
