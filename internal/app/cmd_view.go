package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"condorview/internal/render"
	"condorview/internal/service"
)

var (
	viewTrigger       string
	viewTriggerConfig string
	viewDisabled      bool
	viewLogsLimit     int
)

// viewCmd groups the saved view commands
var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Manage saved views",
}

var viewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved views",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			views, err := a.views.ListViews()
			if err != nil {
				return err
			}
			rows := make([][]string, len(views))
			for i, v := range views {
				trigger := string(v.TriggerType)
				if v.TriggerConfig != "" {
					trigger += " " + v.TriggerConfig
				}
				rows[i] = []string{v.Name, trigger, string(v.LastStatus), formatTime(v.LastRunAt), fmt.Sprint(v.LastRows), v.Query}
			}
			fmt.Fprintln(cmd.OutOrStdout(), plainTable([]string{"NAME", "TRIGGER", "STATUS", "LAST RUN", "ROWS", "QUERY"}, rows))
			return nil
		})
	},
}

var viewSaveCmd = &cobra.Command{
	Use:   "save NAME QUERY [KEY=VALUE...]",
	Short: "Create or update a saved view",
	Long: `Saves QUERY under NAME, replacing the view of that name if it exists.

Examples:
  condorview view save pool-usage 'url=pool.json&group=user;jobs&chart=pie'
  condorview view save hourly url=jobs.json delta=jobs --trigger schedule --config '@hourly'
  condorview view save local url=/srv/jobs.json --trigger file_watch --config /srv/jobs.json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			v, err := a.views.SaveView(ctx, service.SaveViewInput{
				Name:          args[0],
				Query:         strings.Join(args[1:], "&"),
				TriggerType:   viewTrigger,
				TriggerConfig: viewTriggerConfig,
				Enabled:       !viewDisabled,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved view %s (%s)\n", v.Name, v.ID)
			return nil
		})
	},
}

var viewDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved view and its run history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if err := a.views.DeleteView(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted view %s\n", args[0])
			return nil
		})
	},
}

var viewRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Refresh a saved view now and print its table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			res, err := a.views.RunView(ctx, args[0], service.TriggerByManual)
			if err != nil {
				return err
			}
			if chart, ok := res.Output.(*render.Chart); ok && chart.Empty {
				fmt.Fprintln(cmd.OutOrStdout(), chart.Message)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGrid(res.Grid))
			return nil
		})
	},
}

var viewLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Show recent refreshes of a saved view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			logs, err := a.views.ListRunLogs(args[0], viewLogsLimit)
			if err != nil {
				return err
			}
			rows := make([][]string, len(logs))
			for i, l := range logs {
				rows[i] = []string{
					formatTime(l.StartedAt),
					l.Trigger,
					string(l.Status),
					fmt.Sprint(l.Rows),
					l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond).String(),
					l.Error,
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), plainTable([]string{"STARTED", "TRIGGER", "STATUS", "ROWS", "TOOK", "ERROR"}, rows))
			return nil
		})
	},
}

func init() {
	viewSaveCmd.Flags().StringVar(&viewTrigger, "trigger", "manual", "refresh trigger: manual, schedule or file_watch")
	viewSaveCmd.Flags().StringVar(&viewTriggerConfig, "config", "", "cron expression or watched path")
	viewSaveCmd.Flags().BoolVar(&viewDisabled, "disabled", false, "save the view with its trigger off")
	viewLogsCmd.Flags().IntVar(&viewLogsLimit, "limit", 20, "number of runs")

	viewCmd.AddCommand(viewListCmd, viewSaveCmd, viewDeleteCmd, viewRunCmd, viewLogsCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// plainTable draws a borderless listing.
func plainTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
