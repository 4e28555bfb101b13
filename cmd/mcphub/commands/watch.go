package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jg-phare/mcphub/pkg/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and follow config changes",
	Long: `Connect to every enabled server and keep running. Edits to the config
file are picked up live: removed servers are disconnected, added or changed
ones are (re)connected. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, mgr, err := loadManager()
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := mgr.ConnectAllEnabled(ctx)
	fmt.Printf("Connected %d, failed %d, skipped %d. Watching %s.\n",
		len(summary.Connected), len(summary.Failed), len(summary.Skipped), cfg.Path())

	err = cfg.Watch(ctx, func(servers map[string]config.ServerConfig) {
		mgr.Sync(ctx, servers)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
