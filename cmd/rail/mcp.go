package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine and worker operations as MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the MCP protocol, so events only reach the log.
		a, err := newApp(events.Discard)
		if err != nil {
			return err
		}
		defer a.Close()
		return server.ServeStdio(mcpserver.NewServer(version, a.manager))
	},
}
