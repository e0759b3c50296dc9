// Package xplmcp exposes a read-only set of MCP tools over a running
// Hub, Bridge, or Device, backed by the same xplmonitor.Source used by
// the HTTP introspection API.
package xplmcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/xplgo/gxpl/pkg/xplmonitor"
)

// Server wraps the MCP server with read-only xPL introspection tools.
type Server struct {
	mcpServer *server.MCPServer
	source    xplmonitor.Source
}

// NewServer creates an MCP server reporting on source.
func NewServer(source xplmonitor.Source) *Server {
	s := &Server{source: source}
	s.mcpServer = server.NewMCPServer(
		"gxpl",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// ServeStdio starts the MCP server over stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
