package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"condorview/internal/service"
)

var connInput service.CreateDBConnInput

// connCmd groups the database connection commands
var connCmd = &cobra.Command{
	Use:   "conn",
	Short: "Manage saved database connections used by db:// sources",
	Long: `Saved connections let queries read from databases:

  condorview query 'url=db://history/SELECT owner, count(*) AS jobs FROM jobs GROUP BY owner'

Passwords are kept in secrets.yaml under the data directory, or read from
CONDORVIEW_DB_PASSWORD_<NAME>.`,
}

var connListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			conns, err := a.database.ListConnections()
			if err != nil {
				return err
			}
			rows := make([][]string, len(conns))
			for i, c := range conns {
				rows[i] = []string{c.Name, string(c.Driver), fmt.Sprintf("%s:%d", c.Host, c.Port), c.Database, c.Username}
			}
			fmt.Fprintln(cmd.OutOrStdout(), plainTable([]string{"NAME", "DRIVER", "ADDRESS", "DATABASE", "USER"}, rows))
			return nil
		})
	},
}

var connAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Save a database connection",
	Long: `Saves a connection. For sqlite, --host is the database file path.

Example:
  condorview conn add history --driver postgres --host pg.example --database condor --user viewer --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := connInput
		input.Name = args[0]
		return withApp(cmd, func(ctx context.Context, a *App) error {
			conn, err := a.database.CreateConnection(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved connection %s (%s)\n", conn.Name, conn.ID)
			return nil
		})
	},
}

var connDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved connection and its password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if err := a.database.DeleteConnection(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted connection %s\n", args[0])
			return nil
		})
	},
}

var connTestCmd = &cobra.Command{
	Use:   "test NAME",
	Short: "Check that a saved connection can be reached",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if err := a.database.TestConnection(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection %s OK\n", args[0])
			return nil
		})
	},
}

func init() {
	f := connAddCmd.Flags()
	f.StringVar(&connInput.Driver, "driver", "postgres", "postgres, mysql, sqlite or mongodb")
	f.StringVar(&connInput.Host, "host", "", "server host, or file path for sqlite")
	f.IntVar(&connInput.Port, "port", 0, "server port (0 for the driver default)")
	f.StringVar(&connInput.Database, "database", "", "database name")
	f.StringVar(&connInput.Username, "user", "", "user name")
	f.StringVar(&connInput.Password, "password", "", "password, stored in the secret file")
	f.StringVar(&connInput.SSLMode, "sslmode", "disable", "postgres sslmode")

	connCmd.AddCommand(connListCmd, connAddCmd, connDeleteCmd, connTestCmd)
}
