package main

import (
	"context"
	"strings"
	"sync"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
	"ussdpilot/pkg/ussd"
)

// recoverFailure turns a panic in a command into an UNEXPECTED_ERROR failure.
func recoverFailure(op string, err *error) {
	if r := recover(); r != nil {
		logging.Error("app").Str("op", op).Interface("panic", r).Msg("Command panicked")
		*err = ussd.Unexpected(r)
	}
}

// requirePermission redirects to the settings screen when automation is not
// allowed. It returns a non-nil result in that case.
func (a *App) requirePermission(ctx context.Context) (*types.SendResult, error) {
	status, err := a.IsAutomationPermissionGranted(ctx)
	if err != nil {
		return nil, err
	}
	if status.Granted {
		return nil, nil
	}
	if err := a.OpenPermissionSettings(ctx); err != nil {
		logging.Warn("app").Err(err).Msg("Could not open permission settings")
	}
	logging.Warn("app").Str("state", status.State).Str("detail", status.Detail).Msg("Automation permission missing")
	return &types.SendResult{Status: types.StatusPermissionRequired, Message: status.Detail}, nil
}

// SendRequest runs a single-step USSD request on line and returns the reply.
func (a *App) SendRequest(ctx context.Context, code string, line int) (res *types.SendResult, err error) {
	defer recoverFailure("send_request", &err)

	if strings.TrimSpace(code) == "" {
		return nil, ussd.InvalidArgument("ussd code is required")
	}
	if res, err := a.requirePermission(ctx); res != nil || err != nil {
		return res, err
	}
	eng, err := a.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}
	text, err := eng.SendRequest(ctx, code, line)
	if err != nil {
		return nil, err
	}
	return &types.SendResult{Status: types.StatusOK, Message: text}, nil
}

// SendMultiStepRequest dials code and answers each menu with the next option.
// onUpdate, when set, sees every intermediate message.
func (a *App) SendMultiStepRequest(ctx context.Context, code string, line int, options []string, onUpdate func(string)) (res *types.SendResult, err error) {
	defer recoverFailure("multi_session", &err)

	if strings.TrimSpace(code) == "" {
		return nil, ussd.InvalidArgument("ussd code is required")
	}
	if res, err := a.requirePermission(ctx); res != nil || err != nil {
		return res, err
	}
	eng, err := a.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		updates []string
	)
	text, err := eng.SendMultiStep(ctx, code, line, options, ussd.Callbacks{
		OnUpdate: func(msg string) {
			mu.Lock()
			updates = append(updates, msg)
			mu.Unlock()
			if onUpdate != nil {
				onUpdate(msg)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return &types.SendResult{Status: types.StatusOK, Message: text, Updates: updates}, nil
}

// SendMessage replies to the open dialog with freeform text. It reports
// false, with no error, when no engine is attached.
func (a *App) SendMessage(ctx context.Context, text string) (delivered bool, err error) {
	defer recoverFailure("send_message", &err)

	eng := a.currentEngine()
	if eng == nil {
		logging.Debug("app").Msg("SendMessage ignored, engine not attached")
		return false, nil
	}
	eng.SendMessage(text)
	return true, nil
}

// CancelSession dismisses the open dialog. It reports whether a cancel
// control was found.
func (a *App) CancelSession(ctx context.Context) (found bool, err error) {
	defer recoverFailure("cancel_session", &err)

	eng := a.currentEngine()
	if eng == nil {
		return false, nil
	}
	return eng.CancelSession(ctx)
}

// ListLines returns the SIM lines of the device.
func (a *App) ListLines(ctx context.Context) (lines []types.Line, err error) {
	defer recoverFailure("list_lines", &err)

	serial, err := a.device(ctx)
	if err != nil {
		return nil, err
	}
	return (&telephony{shell: a.shellFor(serial)}).ListLines(ctx)
}
