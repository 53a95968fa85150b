package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultNoData is written for absent cells when a grid declares no sentinel.
const DefaultNoData = -9999.0

// maxASCIIGridCells bounds in-memory grids read from text.
const maxASCIIGridCells = 64 * 1024 * 1024

type ascHeader struct {
	cols, rows   int
	x, y         float64
	xCenter      bool
	yCenter      bool
	dx, dy       float64
	noData       *float64
	seenX, seenY bool
}

// ReadASCIIGrid decodes an ESRI ASCII grid. Rows are stored top to bottom,
// so the returned grid is north-up. Cells equal to NODATA_value become NaN;
// the sentinel itself is kept on Grid.NoData.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	var h ascHeader
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if !isHeaderKey(key) {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("header %q has no value", key)
		}
		if err := h.set(key, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	n := h.rows * h.cols
	values := make([]float64, 0, n)
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("cell %d: %w", len(values), err)
		}
		if h.noData != nil && v == *h.noData {
			v = math.NaN()
		}
		values = append(values, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for len(values) < n && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}
	if len(values) != n {
		return nil, fmt.Errorf("grid declares %d cells, found %d", n, len(values))
	}

	originX := h.x
	if h.xCenter {
		originX -= h.dx / 2
	}
	bottom := h.y
	if h.yCenter {
		bottom -= h.dy / 2
	}
	geom := Geometry{
		Rows:      h.rows,
		Cols:      h.cols,
		Transform: NorthUp(originX, bottom+float64(h.rows)*h.dy, h.dx, h.dy),
	}
	g, err := NewGrid(geom, "", values)
	if err != nil {
		return nil, err
	}
	g.NoData = h.noData
	return g, nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter",
		"cellsize", "dx", "dy", "nodata_value":
		return true
	}
	return false
}

func (h *ascHeader) set(key, val string) error {
	if key == "ncols" || key == "nrows" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, val, err)
		}
		if key == "ncols" {
			h.cols = n
		} else {
			h.rows = n
		}
		return nil
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	switch key {
	case "xllcorner", "xllcenter":
		h.x, h.xCenter, h.seenX = v, key == "xllcenter", true
	case "yllcorner", "yllcenter":
		h.y, h.yCenter, h.seenY = v, key == "yllcenter", true
	case "cellsize":
		h.dx, h.dy = v, v
	case "dx":
		h.dx = v
	case "dy":
		h.dy = v
	case "nodata_value":
		h.noData = &v
	}
	return nil
}

func (h *ascHeader) validate() error {
	if h.cols <= 0 || h.rows <= 0 {
		return fmt.Errorf("ncols and nrows must be positive, got %d and %d", h.cols, h.rows)
	}
	if int64(h.cols)*int64(h.rows) > maxASCIIGridCells {
		return fmt.Errorf("grid too large: %dx%d cells", h.rows, h.cols)
	}
	if !h.seenX || !h.seenY {
		return errors.New("header is missing the lower-left corner or centre")
	}
	if h.dx <= 0 || h.dy <= 0 {
		return fmt.Errorf("cell size must be positive, got %vx%v", h.dx, h.dy)
	}
	return nil
}

// WriteASCIIGrid encodes a north-up, unrotated grid as an ESRI ASCII grid.
// Absent cells are written as the grid's NoData value or DefaultNoData.
func WriteASCIIGrid(w io.Writer, g *Grid) error {
	t := g.Transform
	if t.Rotated() || t.PixelWidth() <= 0 || t.PixelHeight() >= 0 {
		return errors.New("ASCII grids must be north-up and unrotated")
	}
	noData := DefaultNoData
	if g.NoData != nil {
		noData = *g.NoData
	}
	dx, dy := t.PixelWidth(), -t.PixelHeight()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(t.OriginX()), formatFloat(t.OriginY()-float64(g.Rows)*dy))
	if dx == dy {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(dx))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", formatFloat(dx), formatFloat(dy))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(noData))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := g.At(row, col)
			if g.IsNoData(v) {
				v = noData
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LoadASCIIGrid reads an ASCII grid from path. A sibling .prj file, when
// present, supplies the spatial reference.
func LoadASCIIGrid(path string) (*Grid, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &InputLoadError{Path: path, Err: err}
	}
	defer f.Close()

	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, &InputLoadError{Path: path, Err: err}
	}

	prj, err := os.ReadFile(sidecarPath(path))
	switch {
	case err == nil:
		g.SpatialRef = strings.TrimSpace(string(prj))
	case !errors.Is(err, os.ErrNotExist):
		return nil, &InputLoadError{Path: sidecarPath(path), Err: err}
	}
	return g, nil
}

// SaveASCIIGrid writes g to path, plus a .prj sidecar when the grid carries
// a spatial reference.
func SaveASCIIGrid(path string, g *Grid) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteASCIIGrid(f, g); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if g.SpatialRef != "" {
		if err := os.WriteFile(sidecarPath(path), []byte(g.SpatialRef+"\n"), 0644); err != nil {
			return fmt.Errorf("write projection: %w", err)
		}
	}
	return nil
}

func sidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}
