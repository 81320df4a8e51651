package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
)

// deviceIDPattern accepts USB serials ("emulator-5554"), IP:port pairs and
// mDNS names ("adb-xxxxx._adb-tls-connect._tcp.").
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ErrNoDevice is returned when adb lists no device to drive.
var ErrNoDevice = errors.New("no Android device connected")

// ValidateDeviceID rejects IDs that could smuggle shell syntax into an adb call.
func ValidateDeviceID(deviceId string) error {
	if deviceId == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceId) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceId) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	dangerousPatterns := []string{";", "&&", "||", "|", "`", "$", "(", ")", "{", "}", "<", ">", "!", "'", "\"", "\\"}
	for _, p := range dangerousPatterns {
		if strings.Contains(deviceId, p) {
			return fmt.Errorf("invalid device ID format: contains dangerous character '%s'", p)
		}
	}
	return nil
}

// GetDevices returns the devices adb currently knows about.
func (a *App) GetDevices(ctx context.Context) ([]types.Device, error) {
	if a.adbPath == "" {
		return nil, fmt.Errorf("ADB path is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := a.newAdbCommand(ctx, "devices", "-l")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices (path: %s): %w, output: %s", a.adbPath, err, string(output))
	}
	return parseDevices(string(output)), nil
}

// parseDevices reads the output of `adb devices -l`.
func parseDevices(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		d := types.Device{ID: parts[0], Serial: parts[0], State: parts[1], Type: "wired"}
		hasUSB := false
		for _, p := range parts[2:] {
			kv := strings.SplitN(p, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "model":
				d.Model = kv[1]
			case "product":
				d.Product = kv[1]
			case "usb":
				hasUSB = true
			}
		}
		if !hasUSB && (strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._tcp") || strings.Contains(d.ID, "._adb-tls-connect")) {
			d.Type = "wireless"
		}
		devices = append(devices, d)
	}
	return devices
}

// pickDevice chooses the device to drive: the configured one when set,
// otherwise the first authorised device, otherwise the first listed one so
// the permission check can report its state.
func pickDevice(configured string, devices []types.Device) (string, error) {
	if configured != "" {
		if err := ValidateDeviceID(configured); err != nil {
			return "", err
		}
		return configured, nil
	}
	if len(devices) == 0 {
		return "", ErrNoDevice
	}
	for _, d := range devices {
		if d.State == "device" {
			return d.ID, nil
		}
	}
	return devices[0].ID, nil
}

// RunAdbCommand executes an adb command against deviceId with a 30s timeout.
func (a *App) RunAdbCommand(deviceId string, fullCmd string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.RunAdbCommandWithContext(ctx, deviceId, fullCmd)
}

// RunAdbCommandWithContext executes an adb command against deviceId.
// A "shell " prefix sends the remainder to the device shell as one argument.
func (a *App) RunAdbCommandWithContext(ctx context.Context, deviceId string, fullCmd string) (string, error) {
	if err := ValidateDeviceID(deviceId); err != nil {
		return "", fmt.Errorf("invalid device ID: %w", err)
	}

	fullCmd = strings.TrimSpace(fullCmd)
	if fullCmd == "" {
		return "", nil
	}

	args := []string{"-s", deviceId}
	if strings.HasPrefix(fullCmd, "shell ") {
		args = append(args, "shell", strings.TrimPrefix(fullCmd, "shell "))
	} else {
		args = append(args, strings.Fields(fullCmd)...)
	}

	cmd := a.newAdbCommand(ctx, args...)
	output, err := cmd.CombinedOutput()
	res := string(output)
	if err != nil {
		return res, fmt.Errorf("command failed: %w, output: %s", err, res)
	}
	return strings.TrimSpace(res), nil
}

// shellRunner runs a command in a device shell. The adb host components
// depend on it rather than on App so they can run against a fake.
type shellRunner interface {
	Shell(ctx context.Context, cmd string) (string, error)
}

// adbShell is the shellRunner bound to one device.
type adbShell struct {
	app    *App
	serial string
}

func (s *adbShell) Shell(ctx context.Context, cmd string) (string, error) {
	timer := logging.StartOperation("adb", "shell").With("device", s.serial).With("cmd", cmd)
	out, err := s.app.RunAdbCommandWithContext(ctx, s.serial, "shell "+cmd)
	if err != nil {
		timer.EndWithError(err)
		return out, err
	}
	timer.End()
	return out, nil
}
