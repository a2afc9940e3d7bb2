package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/releasy/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents list, run and inspect releasy builds. Configure
the client with:

  {
    "mcpServers": {
      "releasy": { "command": "releasy", "args": ["mcp"] }
    }
  }

Available tools: releasy_list_tasks, releasy_build, releasy_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			// Builds still work without history.
			ui.Warning("Build history disabled: %v", err)
			s = nil
		}
		srv := mcp.NewServer(s, openSession, buildVersion)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
