package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerPermissionTools registers the automation permission tools
func (s *MCPServer) registerPermissionTools() {
	// ussd_permission_status - Check whether the device can be driven
	s.server.AddTool(
		mcp.NewTool("ussd_permission_status",
			mcp.WithDescription("Report whether the device allows UI automation (USB debugging authorised and input injection permitted)"),
		),
		guard("ussd_permission_status", s.handlePermissionStatus),
	)

	// ussd_open_permission_settings - Bring up developer options
	s.server.AddTool(
		mcp.NewTool("ussd_open_permission_settings",
			mcp.WithDescription("Open developer options on the device so automation can be enabled"),
		),
		guard("ussd_open_permission_settings", s.handleOpenPermissionSettings),
	)
}

func (s *MCPServer) handlePermissionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.IsAutomationPermissionGranted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	summary := fmt.Sprintf("Automation permission granted (device state: %s)", status.State)
	if !status.Granted {
		summary = fmt.Sprintf("Automation permission NOT granted (device state: %s)", status.State)
		if status.Detail != "" {
			summary += ": " + status.Detail
		}
	}
	return resultContent(summary, status), nil
}

func (s *MCPServer) handleOpenPermissionSettings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.app.OpenPermissionSettings(ctx); err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("Developer options opened on the device"),
		},
	}, nil
}
