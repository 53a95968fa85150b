package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/volume.report/internal/volume"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HistogramLabels returns one label per bin, formatted from its lower and
// upper edge.
func HistogramLabels(h volume.Histogram) []string {
	labels := make([]string, len(h.Counts))
	for i := range h.Counts {
		labels[i] = formatEdge(h.Edges[i]) + " to " + formatEdge(h.Edges[i+1])
	}
	return labels
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

// RenderHistogram writes an HTML page with a bar chart of the difference
// histogram.
func RenderHistogram(w io.Writer, h volume.Histogram, title string) error {
	if len(h.Edges) != len(h.Counts)+1 {
		return fmt.Errorf("histogram has %d edges for %d bins", len(h.Edges), len(h.Counts))
	}

	y := make([]opts.BarData, len(h.Counts))
	for i, c := range h.Counts {
		y[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "elevation difference (DEM - base DEM)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Difference", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cells"}),
	)
	bar.SetXAxis(HistogramLabels(h)).
		AddSeries("cells", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	return nil
}
