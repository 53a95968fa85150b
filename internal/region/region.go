// Package region loads the polygon bounding a volume computation from
// GeoJSON or an ESRI shapefile.
package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
)

var (
	// ErrMultiplePolygons is returned when the input holds more than one
	// polygon.
	ErrMultiplePolygons = errors.New("region must contain exactly one polygon")

	// ErrNotPolygon is returned for non-polygonal geometry.
	ErrNotPolygon = errors.New("region geometry is not a polygon")
)

const maxGeoJSONSize = 64 * 1024 * 1024 // 64MB

// Load reads a polygon from path. The format is chosen by extension:
// .geojson and .json are GeoJSON, .shp is a shapefile. Failures are
// reported as *raster.InputLoadError.
func Load(path string) (geom.Polygon, error) {
	var (
		poly geom.Polygon
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		poly, err = loadGeoJSON(path)
	case ".shp":
		poly, err = loadShapefile(path)
	default:
		err = fmt.Errorf("unsupported region format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, &raster.InputLoadError{Path: path, Err: err}
	}
	return poly, nil
}

func loadGeoJSON(path string) (geom.Polygon, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxGeoJSONSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxGeoJSONSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// object covers the three GeoJSON shapes a region may arrive in: a bare
// geometry, a Feature or a FeatureCollection.
type object struct {
	Type     string          `json:"type"`
	Geometry json.RawMessage `json:"geometry"`
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// Decode parses GeoJSON bytes holding one polygon. A FeatureCollection must
// contain exactly one feature.
func Decode(b []byte) (geom.Polygon, error) {
	var obj object
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	raw := json.RawMessage(b)
	switch obj.Type {
	case "Feature":
		raw = obj.Geometry
	case "FeatureCollection":
		if len(obj.Features) != 1 {
			return nil, fmt.Errorf("%w: feature collection has %d features", ErrMultiplePolygons, len(obj.Features))
		}
		raw = obj.Features[0].Geometry
	case "":
		return nil, fmt.Errorf("parse geojson: missing type")
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: feature has no geometry", ErrNotPolygon)
	}

	g, err := geojson.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geojson geometry: %w", err)
	}
	return asPolygon(g)
}

func loadShapefile(path string) (geom.Polygon, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var found []geom.Geom
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		found = append(found, g)
	}
	if err := dec.Error(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: shapefile has no rows", ErrNotPolygon)
	case 1:
		return asPolygon(found[0])
	default:
		return nil, fmt.Errorf("%w: shapefile has %d rows", ErrMultiplePolygons, len(found))
	}
}

// asPolygon unwraps a single-member MultiPolygon and rejects everything
// that is not a polygon.
func asPolygon(g geom.Geom) (geom.Polygon, error) {
	switch t := g.(type) {
	case geom.Polygon:
		return t, nil
	case *geom.Polygon:
		return *t, nil
	case geom.MultiPolygon:
		if len(t) != 1 {
			return nil, fmt.Errorf("%w: multipolygon has %d members", ErrMultiplePolygons, len(t))
		}
		return t[0], nil
	case *geom.MultiPolygon:
		return asPolygon(*t)
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotPolygon, g)
	}
}
