package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var approveReject bool

// approveCmd resolves destructive MCP tool calls waiting for a human
var approveCmd = &cobra.Command{
	Use:   "approve [ID]",
	Short: "List or resolve pending MCP approvals",
	Long: `Without an ID, lists the destructive tool calls an MCP server is waiting on.
With an ID, approves it, or rejects it with --reject.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if len(args) == 0 {
				pending, err := a.approvals.ListPendingApprovals()
				if err != nil {
					return err
				}
				rows := make([][]string, len(pending))
				for i, p := range pending {
					rows[i] = []string{p.ID, p.Tool, p.Description, formatTime(p.CreatedAt)}
				}
				fmt.Fprintln(cmd.OutOrStdout(), plainTable([]string{"ID", "TOOL", "ACTION", "REQUESTED"}, rows))
				return nil
			}
			if err := a.approvals.ResolveApproval(args[0], !approveReject); err != nil {
				return err
			}
			verb := "Approved"
			if approveReject {
				verb = "Rejected"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
			return nil
		})
	},
}

func init() {
	approveCmd.Flags().BoolVar(&approveReject, "reject", false, "reject instead of approve")
}
