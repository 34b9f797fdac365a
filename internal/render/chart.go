package render

import (
	"context"
	"fmt"
	"math"

	"condorview/internal/grid"
	"condorview/internal/ops"
	"condorview/internal/query"
)

// Chart is a prepared chart: the visualization class to draw, its options
// and its data. Heat grids and traces take the grid itself.
type Chart struct {
	Type    string         `json:"type,omitempty"`
	Class   string         `json:"class"`
	Options map[string]any `json:"options"`
	Table   *DataTable     `json:"table,omitempty"`
	Grid    *grid.Grid     `json:"grid,omitempty"`
	Empty   bool           `json:"empty,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Options configures a Renderer.
type Options struct {
	// NumPattern and IntPattern format NUMBER columns, for example
	// "#,##0.00" and "#,##0". Both must be set to take effect.
	NumPattern string
	IntPattern string
}

// Renderer prepares charts for the pipeline's render stages.
type Renderer struct {
	opts Options
}

// New returns a Renderer.
func New(o Options) *Renderer {
	return &Renderer{opts: o}
}

// Types lists the supported chart= types.
func Types() []string {
	return []string{
		"area", "stacked", "column", "bar", "line", "spark", "pie", "tree",
		"candle", "candlestick", "timeline", "heatgrid", "traces", "traces+minmax",
		"dygraph", "dygraph+errors",
	}
}

// Prepare picks the chart class for q, adjusts the options and converts g.
func (r *Renderer) Prepare(g *grid.Grid, q *query.Query, options map[string]any) (*grid.Grid, any, error) {
	if options == nil {
		options = map[string]any{}
	}
	chartType := q.ChartType()
	mode, _ := q.Intensify()
	topts := TableOptions{Intensify: mode}
	chart := &Chart{Type: chartType, Options: options}

	if chartType == "" {
		chart.Class = "Table"
		topts.AllowHTML = true
		options["allowHtml"] = true
	} else {
		var err error
		g, err = r.chartClass(chart, g)
		if err != nil {
			return nil, nil, err
		}
		topts.ShowOnlyLastSeg = true
		topts.BoolToNum = true
		area, _ := options["chartArea"].(map[string]any)
		if area == nil {
			area = map[string]any{}
			options["chartArea"] = area
		}
		query.MaybeSetOption(area, "height", "70%")
		query.MaybeSetOption(area, "left", "10%")
		query.MaybeSetOption(area, "right", "10%")
	}

	switch chartType {
	case "heatgrid", "traces", "traces+minmax":
		chart.Grid = g
		return g, chart, nil
	}

	dt, err := ToDataTable(g, topts)
	if err != nil {
		return nil, nil, err
	}
	num, inum := r.patterns(options)
	if num != "" && inum != "" {
		formatNumbers(dt, g, num, inum)
	}
	chart.Table = dt
	return g, chart, nil
}

// Render marks empty charts; drawing is left to the client.
func (r *Renderer) Render(_ context.Context, c any) (any, error) {
	chart, ok := c.(*Chart)
	if !ok {
		return nil, fmt.Errorf("render: unexpected chart %T", c)
	}
	rows := 0
	switch {
	case chart.Table != nil:
		rows = len(chart.Table.Rows)
	case chart.Grid != nil:
		rows = chart.Grid.NumRows()
	}
	if rows == 0 {
		chart.Empty = true
		chart.Message = "Empty dataset."
	}
	return chart, nil
}

func (r *Renderer) patterns(options map[string]any) (string, string) {
	num, _ := options["num_pattern"].(string)
	inum, _ := options["inum_pattern"].(string)
	if num != "" && inum != "" {
		return num, inum
	}
	return r.opts.NumPattern, r.opts.IntPattern
}

func (r *Renderer) chartClass(chart *Chart, g *grid.Grid) (*grid.Grid, error) {
	o := chart.Options
	switch chart.Type {
	case "area", "stacked":
		chart.Class = "AreaChart"
		if chart.Type == "stacked" {
			o["isStacked"] = true
		}
		o["explorer"] = map[string]any{"actions": []string{"dragToZoom", "rightClickToReset"}}
	case "column":
		chart.Class = "ColumnChart"
	case "bar":
		chart.Class = "BarChart"
	case "line":
		chart.Class = "LineChart"
	case "spark":
		chart.Class = "LineChart"
		bare := func() map[string]any {
			return map[string]any{
				"baselineColor": "none",
				"textPosition":  "none",
				"gridlines":     map[string]any{"color": "none"},
			}
		}
		o["hAxis"] = bare()
		o["vAxis"] = bare()
		o["theme"] = "maximized"
		o["legend"] = map[string]any{"position": "none"}
	case "pie":
		chart.Class = "PieChart"
	case "tree":
		chart.Class = "TreeMap"
		if len(g.Headers) > 0 && g.Headers[0] == "_tree" {
			var err error
			ctx := ops.NewContext()
			if g, err = ops.Apply(ops.OpFinishTree, g, "_tree", ctx); err != nil {
				return nil, err
			}
			if g, err = ops.Apply(ops.OpCrackTree, g, "_tree", ctx); err != nil {
				return nil, err
			}
		}
		query.MaybeSetOption(o, "maxDepth", 3.0)
		query.MaybeSetOption(o, "maxPostDepth", 1.0)
		query.MaybeSetOption(o, "showScale", 1.0)
	case "candle", "candlestick":
		chart.Class = "CandlestickChart"
	case "timeline":
		chart.Class = "AnnotatedTimeLine"
	case "heatgrid":
		chart.Class = "HeatGrid"
	case "traces", "traces+minmax":
		chart.Class = "Traces"
	case "dygraph", "dygraph+errors":
		chart.Class = "Dygraph"
		o["showRoller"] = true
		if chart.Type == "dygraph+errors" {
			o["errorBars"] = true
		}
	default:
		return nil, &ops.UnknownOperatorArgumentError{Op: query.KeyChart, Arg: chart.Type, Reason: fmt.Sprintf("unknown chart type %q", chart.Type)}
	}
	return g, nil
}

// ── Number patterns ────────────────────────────────────────

// formatNumbers applies inum to all-integer NUMBER columns and num to the
// rest. NaN cells become 0 with an empty formatted value.
func formatNumbers(dt *DataTable, g *grid.Grid, num, inum string) {
	for c, t := range g.Types {
		if t != grid.Number {
			continue
		}
		pattern := inum
		for _, row := range g.Data {
			f, ok := row[c].(float64)
			if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
				pattern = num
				break
			}
		}
		for r, row := range g.Data {
			f, ok := row[c].(float64)
			if !ok || math.IsNaN(f) {
				empty := ""
				dt.Rows[r].C[c].V = 0.0
				dt.Rows[r].C[c].F = &empty
				continue
			}
			s := formatPattern(f, pattern)
			dt.Rows[r].C[c].F = &s
		}
	}
}
