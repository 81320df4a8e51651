package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"ussd://devices",
			"Connected Android devices",
			mcp.WithMIMEType("application/json"),
		),
		s.handleDevicesResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"ussd://lines",
			"SIM lines available for USSD requests",
			mcp.WithMIMEType("application/json"),
		),
		s.handleLinesResource,
	)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleDevicesResource handles the ussd://devices resource
func (s *MCPServer) handleDevicesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	devices, err := s.app.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	if devices == nil {
		devices = []Device{}
	}
	return jsonResource(request.Params.URI, devices)
}

// handleLinesResource handles the ussd://lines resource
func (s *MCPServer) handleLinesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	lines, err := s.app.ListLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	if lines == nil {
		lines = []Line{}
	}
	return jsonResource(request.Params.URI, lines)
}
