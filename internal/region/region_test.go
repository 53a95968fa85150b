package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareGeometry = `{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]}`

func TestDecode(t *testing.T) {
	t.Parallel()
	want := geom.Path{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}}

	tests := []struct {
		name string
		in   string
	}{
		{"bare geometry", squareGeometry},
		{"feature", `{"type":"Feature","properties":{"name":"pit"},"geometry":` + squareGeometry + `}`},
		{"feature collection", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + squareGeometry + `}]}`},
		{"single multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[4,0],[4,4],[0,4],[0,0]]]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			require.Len(t, poly, 1)
			assert.Equal(t, want, poly[0])
		})
	}
}

func TestDecode_Holes(t *testing.T) {
	t.Parallel()
	in := `{"type":"Polygon","coordinates":[
		[[0,0],[4,0],[4,4],[0,4],[0,0]],
		[[1,1],[3,1],[3,3],[1,3],[1,1]]]}`
	poly, err := Decode([]byte(in))
	require.NoError(t, err)
	assert.Len(t, poly, 2)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"point", `{"type":"Point","coordinates":[1,2]}`, ErrNotPolygon},
		{"line", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`, ErrNotPolygon},
		{"null geometry", `{"type":"Feature","geometry":null}`, ErrNotPolygon},
		{"two features", `{"type":"FeatureCollection","features":[{"geometry":` + squareGeometry + `},{"geometry":` + squareGeometry + `}]}`, ErrMultiplePolygons},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, ErrMultiplePolygons},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]}`, ErrMultiplePolygons},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"coordinates":[]}`))
	assert.Error(t, err)
}

func TestLoad_GeoJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "site.geojson")
	require.NoError(t, os.WriteFile(path, []byte(squareGeometry), 0644))

	poly, err := Load(path)
	require.NoError(t, err)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)
}

// shapeRow is one shapefile record; the embedded polygon is the shape and
// Name becomes a dbf attribute.
type shapeRow struct {
	geom.Polygon
	Name string
}

func writeShapefile(t *testing.T, path string, rows ...shapeRow) {
	t.Helper()
	enc, err := shp.NewEncoder(path, shapeRow{})
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, enc.Encode(r))
	}
	enc.Close()
}

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

func TestLoad_Shapefile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pit.shp")
	writeShapefile(t, path, shapeRow{Polygon: square(0, 0, 3, 3), Name: "pit"})

	poly, err := Load(path)
	require.NoError(t, err)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)

	// Ring orientation may be rewritten by the shapefile writer; the
	// burned area must not change.
	g := raster.Geometry{Rows: 3, Cols: 3, Transform: raster.NorthUp(0, 3, 1, 1)}
	mask, err := raster.Rasterize(poly, g, raster.EvenOdd)
	require.NoError(t, err)
	assert.Equal(t, 9, mask.Count())
}

func TestLoad_ShapefileMultipleRows(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pits.shp")
	writeShapefile(t, path,
		shapeRow{Polygon: square(0, 0, 3, 3), Name: "north"},
		shapeRow{Polygon: square(5, 5, 8, 8), Name: "south"},
	)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMultiplePolygons)
	var loadErr *raster.InputLoadError
	assert.True(t, errors.As(err, &loadErr), "got %v", err)
	assert.ErrorContains(t, err, "shapefile has 2 rows")
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.geojson"))
	var loadErr *raster.InputLoadError
	require.True(t, errors.As(err, &loadErr), "got %v", err)
	assert.Equal(t, filepath.Join(dir, "missing.geojson"), loadErr.Path)

	_, err = Load(filepath.Join(dir, "site.kml"))
	assert.ErrorContains(t, err, "unsupported region format")

	_, err = Load(filepath.Join(dir, "missing.shp"))
	assert.True(t, errors.As(err, &loadErr), "got %v", err)
}
