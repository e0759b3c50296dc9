package xplmcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers every read-only introspection tool with the
// server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Report the process's health status and xPL transport name"),
		),
		s.handleGetHealth,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List every xPL device owned by this process"),
		),
		s.handleListDevices,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_hub_clients",
			mcp.WithDescription("List the hub's currently known client applications"),
		),
		s.handleListHubClients,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_bridge_clients",
			mcp.WithDescription("List the bridge's currently known in-side clients"),
		),
		s.handleListBridgeClients,
	)
}
