package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/volume.report/internal/db"
	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/banshee-data/volume.report/internal/region"
	"github.com/banshee-data/volume.report/internal/report"
	"github.com/banshee-data/volume.report/internal/volume"
)

type computeFlags struct {
	dem          string
	base         string
	polygon      string
	configPath   string
	fillRule     string
	label        string
	jsonOut      bool
	diffOut      string
	plotOut      string
	histogramOut string
	dbPath       string
}

func parseComputeFlags(args []string) (*computeFlags, error) {
	f := &computeFlags{}
	fs := flag.NewFlagSet("volume", flag.ContinueOnError)
	fs.StringVar(&f.dem, "dem", "", "DEM grid (ESRI ASCII)")
	fs.StringVar(&f.base, "base", "", "Base DEM grid (ESRI ASCII)")
	fs.StringVar(&f.polygon, "polygon", "", "Region polygon (GeoJSON or shapefile)")
	fs.StringVar(&f.configPath, "config", "", "Volume configuration (JSON)")
	fs.StringVar(&f.fillRule, "fill-rule", "", "Polygon fill rule: even-odd or non-zero")
	fs.StringVar(&f.label, "label", "", "Label stored with the run")
	fs.BoolVar(&f.jsonOut, "json", false, "Print the result as JSON")
	fs.StringVar(&f.diffOut, "diff-out", "", "Write the masked difference grid to this path")
	fs.StringVar(&f.plotOut, "plot-out", "", "Write the difference heat map PNG to this path")
	fs.StringVar(&f.histogramOut, "histogram-out", "", "Write the difference histogram HTML to this path")
	fs.StringVar(&f.dbPath, "db", "", "Record the run in this database")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if f.dem == "" || f.base == "" || f.polygon == "" {
		return nil, fmt.Errorf("-dem, -base and -polygon are required")
	}
	return f, nil
}

type computeOutput struct {
	RunID       string             `json:"run_id,omitempty"`
	Outputs     map[string]float64 `json:"outputs"`
	Result      volume.Result      `json:"result"`
	Warning     string             `json:"warning,omitempty"`
	Diagnostics volume.Diagnostics `json:"diagnostics"`
}

func runCompute(args []string, out io.Writer) error {
	f, err := parseComputeFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	opts, err := volume.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if f.fillRule != "" {
		if opts.FillRule, err = raster.ParseFillRule(f.fillRule); err != nil {
			return err
		}
	}

	dem, err := raster.LoadASCIIGrid(f.dem)
	if err != nil {
		return err
	}
	base, err := raster.LoadASCIIGrid(f.base)
	if err != nil {
		return err
	}
	poly, err := region.Load(f.polygon)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := monitoring.NewRecorder(monitoring.Logf)
	a, err := volume.NewCalculator(opts).ComputeWithFeedback(ctx, dem, base, poly, rec.Logf)
	if err != nil {
		return err
	}

	title := f.label
	if title == "" {
		title = filepath.Base(f.dem)
	}
	if err := writeArtifacts(f, a, title, cfg.GetPlotWidthInches(), cfg.GetPlotHeightInches()); err != nil {
		return err
	}

	res := computeOutput{
		Outputs:     a.Result.Outputs(),
		Result:      a.Result,
		Diagnostics: a.Diagnostics,
	}
	if a.Result.Warning != nil {
		res.Warning = a.Result.Warning.Error()
	}

	if f.dbPath != "" {
		database, err := db.NewDB(f.dbPath)
		if err != nil {
			return fmt.Errorf("open run database: %w", err)
		}
		defer database.Close()

		run := db.NewRun(f.label, a, opts.FillRule.String(), rec.Lines())
		run.DEMPath, run.BaseDEMPath, run.PolygonPath = &f.dem, &f.base, &f.polygon
		if err := database.InsertRun(run); err != nil {
			return fmt.Errorf("store run: %w", err)
		}
		res.RunID = run.RunID
	}

	if f.jsonOut {
		return writeJSON(out, res)
	}
	printResult(out, res)
	return nil
}

// printResult writes a human-readable summary. Volumes are cell area times
// elevation difference in the grids' own units; nothing is converted.
func printResult(out io.Writer, res computeOutput) {
	fmt.Fprintln(out, "Volumes in cell area × elevation units")
	fmt.Fprintf(out, "Cut volume:   %.6g\n", res.Result.Cut)
	fmt.Fprintf(out, "Fill volume:  %.6g\n", res.Result.Fill)
	fmt.Fprintf(out, "Net volume:   %.6g\n", res.Result.Net)
	fmt.Fprintf(out, "Cell area:    %.6g\n", res.Result.CellArea)
	fmt.Fprintf(out, "Valid cells:  %d of %d\n", res.Result.ValidCells, res.Diagnostics.MaskedCells)
	if res.Warning != "" {
		fmt.Fprintf(out, "Warning:      %s\n", res.Warning)
	}
	if res.RunID != "" {
		fmt.Fprintf(out, "Run:          %s\n", res.RunID)
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeArtifacts writes whichever of the optional outputs were requested.
func writeArtifacts(f *computeFlags, a *volume.Analysis, title string, widthIn, heightIn float64) error {
	if f.diffOut != "" {
		if err := raster.SaveASCIIGrid(f.diffOut, a.Difference); err != nil {
			return fmt.Errorf("write difference grid: %w", err)
		}
	}
	if f.plotOut != "" {
		w, h := vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch
		if err := report.WriteDifferencePlot(f.plotOut, a.Difference, title, w, h); err != nil {
			return fmt.Errorf("write difference plot: %w", err)
		}
	}
	if f.histogramOut != "" && len(a.Diagnostics.Histogram.Counts) == 0 {
		monitoring.Logf("no valid cells, skipping histogram %s", f.histogramOut)
	} else if f.histogramOut != "" {
		file, err := os.Create(f.histogramOut)
		if err != nil {
			return fmt.Errorf("create histogram file: %w", err)
		}
		if err := report.RenderHistogram(file, a.Diagnostics.Histogram, title); err != nil {
			file.Close()
			return fmt.Errorf("write histogram: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close histogram file: %w", err)
		}
	}
	return nil
}
