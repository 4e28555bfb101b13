package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jg-phare/mcphub/pkg/tools"
)

var toolsServer string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to enabled servers and list their tools",
	Long: `Connect to every enabled server (or a single one with --server) and
print the discovered tools under their composite names.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsServer, "server", "", "Only this server")
}

func runTools(cmd *cobra.Command, args []string) error {
	_, mgr, err := loadManager()
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	ctx := cmd.Context()
	if toolsServer != "" {
		if err := mgr.ConnectServer(ctx, toolsServer); err != nil {
			return err
		}
	} else {
		summary := mgr.ConnectAllEnabled(ctx)
		if len(summary.Connected) == 0 && len(summary.Failed) > 0 {
			return fmt.Errorf("no server could be connected")
		}
		for name, msg := range summary.Failed {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", name, msg)
		}
	}

	registry := tools.NewRegistry()
	tools.NewMCPRefresher(registry, mgr).Refresh()

	all := registry.All()
	if len(all) == 0 {
		fmt.Println("No tools discovered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range all {
		fmt.Fprintf(w, "%s\t%s\n", t.Name(), firstLine(t.Description()))
	}
	return w.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
