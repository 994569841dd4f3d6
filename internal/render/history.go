package render

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/aoa.report/internal/db"
)

// WriteHistoryPage renders recorded fixes as an HTML page: a plan view
// scatter and a height-over-time line. fixes may be in any order.
func WriteHistoryPage(w io.Writer, fixes []db.Fix, separation float64) error {
	page := components.NewPage()
	page.PageTitle = "AoA fix history"
	page.AddCharts(historyScatter(fixes, separation), heightLine(fixes))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func historyScatter(fixes []db.Fix, separation float64) *charts.Scatter {
	pad := math.Max(separation, 1)
	planar := make([]opts.ScatterData, 0, len(fixes))
	fallback := make([]opts.ScatterData, 0)
	for _, f := range fixes {
		pad = math.Max(pad, math.Max(math.Abs(f.Result.X), math.Abs(f.Result.Y)))
		d := opts.ScatterData{Value: []interface{}{f.Result.X, f.Result.Y, f.Result.Height}}
		if f.Result.Fallback3D {
			fallback = append(fallback, d)
		} else {
			planar = append(planar, d)
		}
	}
	pad *= 1.1

	anchors := []opts.ScatterData{
		{Value: []interface{}{0.0, 0.0, 0.0}, Name: "anchor 1"},
		{Value: []interface{}{separation, 0.0, 0.0}, Name: "anchor 2"},
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "AoA fix history", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fixes (plan view)", Subtitle: fmt.Sprintf("fixes=%d D=%.2f m", len(fixes), separation)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("anchors", anchors, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	scatter.AddSeries("fix", planar, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(fallback) > 0 {
		scatter.AddSeries("fix (3D fallback)", fallback, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	return scatter
}

func heightLine(fixes []db.Fix) *charts.Line {
	// oldest first on the time axis
	ordered := make([]db.Fix, len(fixes))
	copy(ordered, fixes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	labels := make([]string, 0, len(ordered))
	heights := make([]opts.LineData, 0, len(ordered))
	z3d := make([]opts.LineData, 0, len(ordered))
	for _, f := range ordered {
		labels = append(labels, f.Time.Format("15:04:05.000"))
		heights = append(heights, opts.LineData{Value: f.Result.Height})
		z3d = append(z3d, opts.LineData{Value: f.Result.Point3D.Z})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Height"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)"}),
	)
	line.SetXAxis(labels).
		AddSeries("averaged height", heights).
		AddSeries("3D midpoint z", z3d)
	return line
}
