// Package volume computes cut, fill and net earthwork volumes between a
// current DEM and a base DEM inside a rasterized region of interest.
//
// Aggregate is the pure reduction over two grids and a mask. Analyze adds
// diagnostics, the difference grid and chunked cancellation. Calculator ties
// rasterization and aggregation together behind a stateless constructor and
// is what the CLI and HTTP server use.
package volume
