package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"condorview/internal/etl"
	"condorview/internal/grid"
	"condorview/internal/pipeline"
	"condorview/internal/query"
)

var (
	queryTrace  bool
	queryJSON   bool
	queryRender bool
	queryStdin  bool
)

// queryCmd runs a query and prints the resulting table
var queryCmd = &cobra.Command{
	Use:   "query QUERY [KEY=VALUE...]",
	Short: "Run a query and print the resulting table",
	Long: `Runs a query and prints the table. Several arguments are joined with &,
so the pairs can be given separately.

Examples:
  condorview query 'url=https://cm.example/jobs.json&group=user;jobs'
  condorview query url=jobs.json filter=state=run order=-jobs limit=10
  curl -s https://cm.example/jobs.json | condorview query --stdin group=user`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

// csvCmd runs a query and writes CSV
var csvCmd = &cobra.Command{
	Use:   "csv QUERY [KEY=VALUE...]",
	Short: "Run a query and write the resulting table as CSV",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			res, err := a.runQuery(ctx, cmd.InOrStdin(), args, pipeline.EntryTransform)
			if err != nil {
				return err
			}
			return grid.EncodeCSV(cmd.OutOrStdout(), res.Grid)
		})
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryTrace, "trace", false, "print per-stage timings")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the grid as JSON")
	queryCmd.Flags().BoolVar(&queryRender, "render", false, "print the rendered chart JSON")
	for _, c := range []*cobra.Command{queryCmd, csvCmd} {
		c.Flags().BoolVar(&queryStdin, "stdin", false, "read the source payload from stdin instead of url=")
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	entry := pipeline.EntryTransform
	if queryRender {
		entry = pipeline.EntryRender
	}
	return withApp(cmd, func(ctx context.Context, a *App) error {
		res, err := a.runQuery(ctx, cmd.InOrStdin(), args, entry)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()

		for _, f := range res.Failures {
			fmt.Fprintf(errOut, "warning: %v\n", f)
		}
		for _, t := range res.Trace {
			fmt.Fprintln(errOut, t.String())
		}

		switch {
		case queryRender:
			return writeJSON(out, res.Output)
		case queryJSON:
			return writeJSON(out, res.Grid)
		}
		fmt.Fprintln(out, renderGrid(res.Grid))
		fmt.Fprintf(errOut, "%d rows\n", res.Grid.NumRows())
		return nil
	})
}

// runQuery parses args as one query and runs it, reading the payload from
// in when --stdin is set.
func (a *App) runQuery(ctx context.Context, in io.Reader, args []string, entry pipeline.Entry) (*pipeline.Result, error) {
	q, err := query.Parse(strings.Join(args, "&"))
	if err != nil {
		return nil, err
	}
	var opts []pipeline.RunOption
	if queryTrace {
		opts = append(opts, pipeline.WithTrace())
	}
	if queryStdin {
		payload, err := readPayload(in)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithStartData(payload))
	}
	return a.engine.Run(ctx, q, entry, opts...)
}

func readPayload(in io.Reader) (any, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	var payload any
	if err := json.Unmarshal(etl.ExtractJSON(data), &payload); err != nil {
		return nil, fmt.Errorf("decode stdin: %w", err)
	}
	return payload, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// renderGrid draws g as a bordered terminal table.
func renderGrid(g *grid.Grid) string {
	rows := make([][]string, len(g.Data))
	for i, row := range g.Data {
		cells := make([]string, len(row))
		for j, cell := range row {
			if g.Types[j].IsTemporal() {
				cells[j] = grid.Stringify(cell, g.Types[j])
			} else {
				cells[j] = grid.CellString(cell)
			}
		}
		rows[i] = cells
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(g.Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col < len(g.Types) && g.Types[col].IsNumeric():
				return numberStyle
			}
			return cellStyle
		}).
		String()
}
