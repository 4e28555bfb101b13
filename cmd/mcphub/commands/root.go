// Package commands provides the CLI commands for mcphub.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jg-phare/mcphub/pkg/config"
	"github.com/jg-phare/mcphub/pkg/logging"
	"github.com/jg-phare/mcphub/pkg/mcp"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var (
	configPath string
	logLevel   string
	pretty     bool
)

var rootCmd = &cobra.Command{
	Use:   "mcphub",
	Short: "mcphub - MCP server manager for agent runtimes",
	Long: `mcphub manages connections to MCP (Model Context Protocol) servers:
configure servers, connect over stdio, WebSocket, or streamable HTTP,
inspect the discovered tools, and invoke them.

Run 'mcphub servers add' to configure a server, then 'mcphub tools'
to connect and list what it exposes.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the servers config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("mcphub %s\n", Version))

	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// defaultConfigPath resolves the config file location when --config is not
// given.
func defaultConfigPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "mcphub", "servers.yaml")
	}
	return "servers.yaml"
}

// newLogger builds the logger from the global flags.
func newLogger() zerolog.Logger {
	return logging.New(logging.Config{Level: logLevel, Pretty: pretty})
}

// loadManager loads the config file and builds a manager on top of it.
func loadManager() (*config.File, *mcp.Manager, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	mgr := mcp.NewManager(cfg, cfg.Servers(), newLogger())
	return cfg, mgr, nil
}
