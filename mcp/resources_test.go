package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a ReadResourceRequest
func makeResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// Helper to get text from resource contents
func getResourceText(contents []mcp.ResourceContents) string {
	if len(contents) == 0 {
		return ""
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); ok {
		return tc.Text
	}
	return ""
}

// ==================== ussd://devices ====================

func TestHandleDevicesResource_Success(t *testing.T) {
	mock := NewMockUssdApp()
	mock.SetupWithDevices(
		SampleDevice("device1"),
		SampleDevice("device2"),
	)
	server := NewMCPServer(mock)

	contents, err := server.handleDevicesResource(context.Background(), makeResourceRequest("ussd://devices"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(contents) == 0 {
		t.Fatal("Expected at least one content item")
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected text contents, got %T", contents[0])
	}
	if tc.URI != "ussd://devices" {
		t.Errorf("Expected URI ussd://devices, got %s", tc.URI)
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", tc.MIMEType)
	}

	var devices []Device
	if err := json.Unmarshal([]byte(tc.Text), &devices); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}

	if len(devices) != 2 {
		t.Errorf("Expected 2 devices, got %d", len(devices))
	}
}

func TestHandleDevicesResource_NilBecomesEmptyArray(t *testing.T) {
	mock := NewMockUssdApp()
	mock.GetDevicesResult = nil
	server := NewMCPServer(mock)

	contents, err := server.handleDevicesResource(context.Background(), makeResourceRequest("ussd://devices"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if text := getResourceText(contents); text != "[]" {
		t.Errorf("Expected empty JSON array, got %q", text)
	}
}

func TestHandleDevicesResource_Error(t *testing.T) {
	mock := NewMockUssdApp()
	mock.SetupWithError("GetDevices", ErrDeviceOffline)
	server := NewMCPServer(mock)

	_, err := server.handleDevicesResource(context.Background(), makeResourceRequest("ussd://devices"))
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

// ==================== ussd://lines ====================

func TestHandleLinesResource_Success(t *testing.T) {
	mock := NewMockUssdApp()
	mock.SetupWithLines(SampleLine(0, "Orange"), SampleLine(1, "MTN"))
	server := NewMCPServer(mock)

	contents, err := server.handleLinesResource(context.Background(), makeResourceRequest("ussd://lines"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var lines []Line
	if err := json.Unmarshal([]byte(getResourceText(contents)), &lines); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[1].Carrier != "MTN" || lines[1].ID != 1 {
		t.Errorf("Unexpected second line: %+v", lines[1])
	}
}

func TestHandleLinesResource_Empty(t *testing.T) {
	mock := NewMockUssdApp()
	mock.ListLinesResult = nil
	server := NewMCPServer(mock)

	contents, err := server.handleLinesResource(context.Background(), makeResourceRequest("ussd://lines"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if text := getResourceText(contents); text != "[]" {
		t.Errorf("Expected empty JSON array, got %q", text)
	}
}

func TestHandleLinesResource_Error(t *testing.T) {
	mock := NewMockUssdApp()
	mock.SetupWithError("ListLines", ErrDeviceNotFound)
	server := NewMCPServer(mock)

	_, err := server.handleLinesResource(context.Background(), makeResourceRequest("ussd://lines"))
	if err == nil {
		t.Error("Expected error, got nil")
	}
}
