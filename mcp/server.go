// Package mcp exposes the USSD commands as MCP (Model Context Protocol) tools
// so an external client can dial codes and walk menus on a device.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"

	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared types package
type (
	Device           = types.Device
	Line             = types.Line
	PermissionStatus = types.PermissionStatus
	SendResult       = types.SendResult
)

// MessageNotification is the method of the notification sent for every
// dialog message.
const MessageNotification = "notifications/ussd/message"

// UssdApp is the command surface the MCP server drives.
type UssdApp interface {
	GetAppVersion() string
	GetDevices(ctx context.Context) ([]Device, error)

	SendRequest(ctx context.Context, code string, line int) (*SendResult, error)
	SendMultiStepRequest(ctx context.Context, code string, line int, options []string, onUpdate func(string)) (*SendResult, error)
	SendMessage(ctx context.Context, text string) (bool, error)
	CancelSession(ctx context.Context) (bool, error)

	IsAutomationPermissionGranted(ctx context.Context) (PermissionStatus, error)
	OpenPermissionSettings(ctx context.Context) error
	ListLines(ctx context.Context) ([]Line, error)
}

// MCPServer wraps the MCP server and the app it drives
type MCPServer struct {
	app       UssdApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server for app
func NewMCPServer(app UssdApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"ussdpilot",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	s.registerUssdTools()
	s.registerPermissionTools()
}

// NotifyMessage pushes a dialog message to every connected client.
func (s *MCPServer) NotifyMessage(text string) {
	s.server.SendNotificationToAllClients(MessageNotification, map[string]any{
		"message": text,
	})
}

// Start starts the MCP server over stdio and blocks until it shuts down
func (s *MCPServer) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	return s.run()
}

// StartAsync starts the MCP server in a goroutine (non-blocking)
func (s *MCPServer) StartAsync() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.run()
	return nil
}

// run runs the MCP server (blocking)
func (s *MCPServer) run() error {
	s.stdio = server.NewStdioServer(s.server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info("mcp").Msg("MCP server started on stdio")
	err := s.stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && ctx.Err() == nil {
		logging.Error("mcp").Err(err).Msg("MCP server error")
	}

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return err
}

// Stop marks the server stopped. The stdio loop ends when stdin closes.
func (s *MCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
