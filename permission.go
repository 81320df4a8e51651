package main

import (
	"context"
	"fmt"
	"strings"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
)

const developerSettingsAction = "android.settings.APPLICATION_DEVELOPMENT_SETTINGS"

// parseDeviceState maps `adb get-state` output, including its error text,
// to an adb device state.
func parseDeviceState(out string, err error) string {
	text := strings.ToLower(strings.TrimSpace(out))
	if err != nil {
		text += " " + strings.ToLower(err.Error())
	}
	switch {
	case strings.Contains(text, "unauthorized"):
		return "unauthorized"
	case strings.Contains(text, "offline"):
		return "offline"
	case strings.Contains(text, "not found"), strings.Contains(text, "no devices"):
		return "not_found"
	case err == nil && text == "device":
		return "device"
	case err == nil && text != "":
		return text
	default:
		return "unknown"
	}
}

// injectionDenied reports whether an `input` probe was refused.
func injectionDenied(out string) bool {
	return strings.Contains(out, "INJECT_EVENTS") || strings.Contains(out, "SecurityException")
}

// checkPermission decides whether the host may drive the device UI: the
// device must authorise USB debugging and accept injected input.
func checkPermission(ctx context.Context, state string, shell shellRunner) types.PermissionStatus {
	status := types.PermissionStatus{State: state}
	switch state {
	case "device":
	case "unauthorized":
		status.Detail = "accept the USB debugging prompt on the device"
		return status
	case "not_found":
		status.Detail = "device is not connected"
		return status
	default:
		status.Detail = fmt.Sprintf("device is %s", state)
		return status
	}

	out, err := shell.Shell(ctx, fmt.Sprintf("input keyevent %d", keycodeUnknown))
	if injectionDenied(out) || (err != nil && injectionDenied(err.Error())) {
		status.Detail = "input injection is blocked; enable USB debugging (Security settings) in developer options"
		return status
	}
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Granted = true
	return status
}

// IsAutomationPermissionGranted reports whether commands can drive the device.
func (a *App) IsAutomationPermissionGranted(ctx context.Context) (types.PermissionStatus, error) {
	serial, err := a.device(ctx)
	if err != nil {
		return types.PermissionStatus{}, err
	}
	out, stateErr := a.RunAdbCommandWithContext(ctx, serial, "get-state")
	state := parseDeviceState(out, stateErr)
	status := checkPermission(ctx, state, a.shellFor(serial))
	logging.Debug("permission").Str("device", serial).Str("state", state).Bool("granted", status.Granted).Msg("Permission checked")
	return status, nil
}

// OpenPermissionSettings brings up developer options on the device.
func (a *App) OpenPermissionSettings(ctx context.Context) error {
	serial, err := a.device(ctx)
	if err != nil {
		return err
	}
	if _, err := a.shellFor(serial).Shell(ctx, "am start -a "+developerSettingsAction); err != nil {
		return fmt.Errorf("open developer settings: %w", err)
	}
	logging.Info("permission").Str("device", serial).Msg("Opened developer settings")
	return nil
}
