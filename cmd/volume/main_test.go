package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, dir, name string, rows, cols int, v float64) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "ncols %d\nnrows %d\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -9999\n", cols, rows)
	for r := 0; r < rows; r++ {
		row := make([]string, cols)
		for c := range row {
			row[c] = fmt.Sprintf("%g", v)
		}
		b.WriteString(strings.Join(row, " ") + "\n")
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0644))
	return p
}

func fixture(t *testing.T) (dir, dem, base, poly string) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	dir = t.TempDir()
	dem = writeGrid(t, dir, "dem.asc", 3, 3, 5)
	base = writeGrid(t, dir, "base.asc", 3, 3, 3)
	poly = filepath.Join(dir, "region.geojson")
	require.NoError(t, os.WriteFile(poly,
		[]byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[3,0],[3,3],[0,3],[0,0]]]}}`), 0644))
	return dir, dem, base, poly
}

func TestRun_ComputeText(t *testing.T) {
	_, dem, base, poly := fixture(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-dem", dem, "-base", base, "-polygon", poly}, &out))
	assert.Contains(t, out.String(), "Cut volume:   18\n")
	assert.Contains(t, out.String(), "Fill volume:  0\n")
	assert.Contains(t, out.String(), "Valid cells:  9 of 9\n")
	assert.NotContains(t, out.String(), "Run:")
}

func TestRun_ComputeReportsGridUnits(t *testing.T) {
	_, dem, base, poly := fixture(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-dem", dem, "-base", base, "-polygon", poly}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "Volumes in cell area × elevation units\n"), out.String())
	assert.NotContains(t, out.String(), "m3")

	// Volumes are never converted, so there is no units flag.
	assert.Error(t, run([]string{"-dem", dem, "-base", base, "-polygon", poly, "-units", "yd3"}, &out))
}

func TestRun_ComputeJSONWithArtifacts(t *testing.T) {
	dir, dem, base, poly := fixture(t)
	dbPath := filepath.Join(dir, "runs.db")
	diffPath := filepath.Join(dir, "diff.asc")
	plotPath := filepath.Join(dir, "diff.png")
	histPath := filepath.Join(dir, "hist.html")

	var out bytes.Buffer
	err := run([]string{
		"-dem", dem, "-base", base, "-polygon", poly,
		"-json", "-label", "stockpile",
		"-diff-out", diffPath, "-plot-out", plotPath, "-histogram-out", histPath,
		"-db", dbPath,
	}, &out)
	require.NoError(t, err)

	var res computeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 18.0, res.Outputs["OUTPUT_CUT_VOLUME"])
	assert.Equal(t, 18.0, res.Result.Net)
	assert.NotEmpty(t, res.RunID)

	diff, err := raster.LoadASCIIGrid(diffPath)
	require.NoError(t, err)
	assert.Equal(t, 2.0, diff.At(1, 1))

	png, err := os.ReadFile(plotPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	html, err := os.ReadFile(histPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "stockpile")

	out.Reset()
	require.NoError(t, run([]string{"runs", "-db", dbPath}, &out))
	assert.Contains(t, out.String(), res.RunID)
	assert.Contains(t, out.String(), "stockpile")
}

func TestRun_FillRuleAndConfig(t *testing.T) {
	dir, dem, base, poly := fixture(t)
	cfgPath := filepath.Join(dir, "volume.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"cell_area": 2}`), 0644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-dem", dem, "-base", base, "-polygon", poly,
		"-config", cfgPath, "-fill-rule", "non-zero", "-json"}, &out))

	var res computeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 36.0, res.Result.Cut)
	assert.Equal(t, 2.0, res.Result.CellArea)
}

func TestRun_Errors(t *testing.T) {
	dir, dem, base, poly := fixture(t)
	tall := writeGrid(t, dir, "tall.asc", 4, 3, 1)

	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"missing polygon", []string{"-dem", dem, "-base", base}},
		{"stray argument", []string{"-dem", dem, "-base", base, "-polygon", poly, "extra"}},
		{"bad fill rule", []string{"-dem", dem, "-base", base, "-polygon", poly, "-fill-rule", "winding"}},
		{"missing grid", []string{"-dem", filepath.Join(dir, "nope.asc"), "-base", base, "-polygon", poly}},
		{"bad config", []string{"-dem", dem, "-base", base, "-polygon", poly, "-config", filepath.Join(dir, "nope.json")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(tt.args, &out))
		})
	}

	var out bytes.Buffer
	err := run([]string{"-dem", dem, "-base", tall, "-polygon", poly}, &out)
	var shapeErr *raster.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr), "got %v", err)
}

func TestRun_VersionAndHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"version"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "volume "))

	out.Reset()
	require.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "volume serve")
}

func TestRun_Migrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	monitoring.SetLogger(nil)

	var out bytes.Buffer
	require.NoError(t, run([]string{"migrate", "-db", dbPath, "up"}, &out))
	out.Reset()
	require.NoError(t, run([]string{"migrate", "-db", dbPath, "status"}, &out))
	assert.Contains(t, out.String(), "Current version: 2\n")
}
