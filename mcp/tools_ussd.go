package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
	"ussdpilot/pkg/ussd"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// guard converts a failed or panicking handler into a structured failure
// (INVALID_ARGUMENT or UNEXPECTED_ERROR).
func guard(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("mcp").Str("tool", name).Interface("panic", r).Msg("Tool panicked")
				result, err = nil, ussd.Unexpected(r)
			}
		}()
		result, err = h(ctx, request)
		if err != nil {
			logging.Warn("mcp").Str("tool", name).Err(err).Msg("Tool failed")
			return nil, ussd.AsFailure(err)
		}
		return result, nil
	}
}

// lineArg reads the optional "line" argument. Absent means the default SIM.
func lineArg(args map[string]interface{}) int {
	if v, ok := args["line"].(float64); ok {
		return int(v)
	}
	return -1
}

func stringsArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func resultContent(summary string, v interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(summary),
			mcp.NewTextContent(fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))),
		},
	}
}

func sendSummary(res *SendResult) string {
	if res.Status == types.StatusPermissionRequired {
		detail := res.Message
		if detail == "" {
			detail = "automation permission not granted"
		}
		return fmt.Sprintf("Permission required: %s. The settings screen was opened on the device.", detail)
	}
	return res.Message
}

// registerUssdTools registers the session tools
func (s *MCPServer) registerUssdTools() {
	// ussd_send_request - Single request/response
	s.server.AddTool(
		mcp.NewTool("ussd_send_request",
			mcp.WithDescription("Dial a USSD code and return the first response message"),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("USSD code to dial, e.g. *123#"),
			),
			mcp.WithNumber("line",
				mcp.Description("SIM slot index from ussd_list_lines (default SIM when omitted)"),
			),
		),
		guard("ussd_send_request", s.handleSendRequest),
	)

	// ussd_multi_session - Menu walk
	s.server.AddTool(
		mcp.NewTool("ussd_multi_session",
			mcp.WithDescription("Dial a USSD code and answer each menu with the next option, returning every message"),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("USSD code to dial, e.g. *123#"),
			),
			mcp.WithArray("options",
				mcp.Description("Replies to send, one per menu round"),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("line",
				mcp.Description("SIM slot index from ussd_list_lines (default SIM when omitted)"),
			),
		),
		guard("ussd_multi_session", s.handleMultiSession),
	)

	// ussd_send_message - Freeform reply
	s.server.AddTool(
		mcp.NewTool("ussd_send_message",
			mcp.WithDescription("Reply to the open USSD dialog with freeform text"),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("Text to type into the dialog"),
			),
		),
		guard("ussd_send_message", s.handleSendMessage),
	)

	// ussd_cancel_session - Dismiss the dialog
	s.server.AddTool(
		mcp.NewTool("ussd_cancel_session",
			mcp.WithDescription("Cancel the open USSD dialog"),
		),
		guard("ussd_cancel_session", s.handleCancelSession),
	)

	// ussd_list_lines - SIM subscriptions
	s.server.AddTool(
		mcp.NewTool("ussd_list_lines",
			mcp.WithDescription("List the SIM lines available for USSD requests"),
		),
		guard("ussd_list_lines", s.handleListLines),
	)
}

func (s *MCPServer) handleSendRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return nil, ussd.InvalidArgument("code is required")
	}

	res, err := s.app.SendRequest(ctx, code, lineArg(args))
	if err != nil {
		return nil, err
	}
	return resultContent(sendSummary(res), res), nil
}

func (s *MCPServer) handleMultiSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return nil, ussd.InvalidArgument("code is required")
	}
	options := stringsArg(args, "options")

	res, err := s.app.SendMultiStepRequest(ctx, code, lineArg(args), options, nil)
	if err != nil {
		return nil, err
	}
	if res.Status != types.StatusOK {
		return resultContent(sendSummary(res), res), nil
	}

	var b strings.Builder
	for i, u := range res.Updates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, u)
	}
	fmt.Fprintf(&b, "Final: %s", res.Message)
	return resultContent(b.String(), res), nil
}

func (s *MCPServer) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	message, ok := args["message"].(string)
	if !ok {
		return nil, ussd.InvalidArgument("message is required")
	}

	delivered, err := s.app.SendMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	text := "Message queued for the open dialog"
	if !delivered {
		text = "No dialog open; message not sent"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}, nil
}

func (s *MCPServer) handleCancelSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	found, err := s.app.CancelSession(ctx)
	if err != nil {
		return nil, err
	}
	text := "Session canceled"
	if !found {
		text = "No cancel control on screen; nothing to cancel"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}, nil
}

func (s *MCPServer) handleListLines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines, err := s.app.ListLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	if len(lines) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No SIM lines found"),
			},
		}, nil
	}

	result := fmt.Sprintf("Found %d line(s):\n\n", len(lines))
	for _, l := range lines {
		result += fmt.Sprintf("%d. %s (%s)", l.ID, l.DisplayName, l.Carrier)
		if l.Number != "" {
			result += " " + l.Number
		}
		result += "\n"
	}
	return resultContent(result, lines), nil
}
