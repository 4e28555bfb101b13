package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jg-phare/mcphub/pkg/config"
)

var (
	addCommand  string
	addArgs     []string
	addEnv      []string
	addURL      string
	addHeaders  []string
	addDisabled bool
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage configured MCP servers",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured servers",
	RunE:  runServersList,
}

var serversAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a server config",
	Long: `Add a server config. Give either --command (stdio subprocess) or
--url (ws:// or wss:// for WebSocket, http:// or https:// for streamable HTTP).

Examples:
  mcphub servers add fs --command fs-server --args --root --args /srv
  mcphub servers add search --url wss://search.internal/mcp`,
	Args: cobra.ExactArgs(1),
	RunE: runServersAdd,
}

var serversRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a server config",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersRemove,
}

var serversEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd.Context(), args[0], true) },
}

var serversDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd.Context(), args[0], false) },
}

func init() {
	serversAddCmd.Flags().StringVar(&addCommand, "command", "", "Executable to spawn (stdio transport)")
	serversAddCmd.Flags().StringArrayVar(&addArgs, "args", nil, "Argument for the command (repeatable)")
	serversAddCmd.Flags().StringArrayVar(&addEnv, "env", nil, "KEY=VALUE environment override (repeatable)")
	serversAddCmd.Flags().StringVar(&addURL, "url", "", "Server URL (WebSocket or HTTP transport)")
	serversAddCmd.Flags().StringArrayVar(&addHeaders, "header", nil, "KEY=VALUE request header (repeatable)")
	serversAddCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Add the server disabled")

	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversAddCmd)
	serversCmd.AddCommand(serversRemoveCmd)
	serversCmd.AddCommand(serversEnableCmd)
	serversCmd.AddCommand(serversDisableCmd)
}

func runServersList(cmd *cobra.Command, args []string) error {
	_, mgr, err := loadManager()
	if err != nil {
		return err
	}

	servers := mgr.Servers()
	if len(servers) == 0 {
		fmt.Println("No servers configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tTRANSPORT\tTARGET")
	for _, name := range sortedKeys(servers) {
		cfg := servers[name]
		transport, target := describeTransport(cfg)
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", name, cfg.Enabled, transport, target)
	}
	return w.Flush()
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	_, mgr, err := loadManager()
	if err != nil {
		return err
	}

	cfg := config.ServerConfig{
		Enabled: !addDisabled,
		Command: addCommand,
		Args:    addArgs,
		Env:     parsePairs(addEnv),
		URL:     addURL,
		Headers: parsePairs(addHeaders),
	}

	if err := mgr.AddServer(name, cfg); err != nil {
		return err
	}
	fmt.Printf("Added server %q.\n", name)
	return nil
}

func runServersRemove(cmd *cobra.Command, args []string) error {
	_, mgr, err := loadManager()
	if err != nil {
		return err
	}
	if err := mgr.RemoveServer(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed server %q.\n", args[0])
	return nil
}

func setEnabled(ctx context.Context, name string, enabled bool) error {
	_, mgr, err := loadManager()
	if err != nil {
		return err
	}

	servers := mgr.Servers()
	cfg, ok := servers[name]
	if !ok {
		return fmt.Errorf("unknown server %q", name)
	}
	cfg.Enabled = enabled

	// The CLI holds no long-lived connections, so this only persists the
	// toggle; a running hub picks it up via its config watcher.
	if err := mgr.UpsertServer(ctx, name, cfg); err != nil && enabled {
		// Upsert with enabled=true also tries to connect; a connect
		// failure should not hide that the toggle was saved.
		fmt.Printf("Server %q enabled, but connecting failed: %v\n", name, err)
		return nil
	}
	fmt.Printf("Server %q %s.\n", name, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}

func describeTransport(cfg config.ServerConfig) (transport, target string) {
	switch {
	case cfg.Command != "":
		return "stdio", strings.TrimSpace(cfg.Command + " " + strings.Join(cfg.Args, " "))
	case strings.HasPrefix(cfg.URL, "ws://"), strings.HasPrefix(cfg.URL, "wss://"):
		return "websocket", cfg.URL
	default:
		return "http", cfg.URL
	}
}

func parsePairs(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if k, v, ok := strings.Cut(p, "="); ok {
			m[k] = v
		}
	}
	return m
}

func sortedKeys(m map[string]config.ServerConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
