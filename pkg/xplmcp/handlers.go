package xplmcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xplgo/gxpl/pkg/xplmonitor"
)

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := "healthy"
	if !s.source.Healthy() {
		status = "unhealthy"
	}
	return mcp.NewToolResultText(formatJSON(xplmonitor.HealthResponse{
		Status:    status,
		Transport: s.source.TransportName(),
	})), nil
}

func (s *Server) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices := s.source.Devices()
	return mcp.NewToolResultText(formatJSON(xplmonitor.ListDevicesResponse{
		Devices: devices,
		Count:   len(devices),
	})), nil
}

func (s *Server) handleListHubClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients := s.source.HubClients()
	return mcp.NewToolResultText(formatJSON(xplmonitor.ListHubClientsResponse{
		Clients: clients,
		Count:   len(clients),
	})), nil
}

func (s *Server) handleListBridgeClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients := s.source.BridgeClients()
	return mcp.NewToolResultText(formatJSON(xplmonitor.ListBridgeClientsResponse{
		Clients: clients,
		Count:   len(clients),
	})), nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
