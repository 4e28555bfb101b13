package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <server> <tool> [json-args]",
	Short: "Connect to one server and invoke a tool",
	Long: `Connect to the named server, invoke the tool, and print the raw JSON
result.

Examples:
  mcphub call fs read '{"path":"/etc/hostname"}'
  mcphub call search query '{"q":"golang websocket"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	server, tool := args[0], args[1]

	var toolArgs map[string]any
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &toolArgs); err != nil {
			return fmt.Errorf("parse tool arguments: %w", err)
		}
	}

	_, mgr, err := loadManager()
	if err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	ctx := cmd.Context()
	if err := mgr.ConnectServer(ctx, server); err != nil {
		return err
	}

	result, err := mgr.CallTool(ctx, server, tool, toolArgs)
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(result, &pretty); err == nil {
		if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			fmt.Println(string(out))
			return nil
		}
	}
	fmt.Println(string(result))
	return nil
}
