package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/pipedeck/pipedeck/internal/menu"
	"github.com/spf13/cobra"
)

// routesCmd represents the routes command
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the web console's routing table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		routes, err := menu.Routes(menu.Default().Items())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PATH\tNAME\tVIEW\tREDIRECT")
		for _, r := range routes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Path, r.Name, fallback(r.View, "-"), fallback(r.Redirect, "-"))
		}
		return w.Flush()
	},
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
