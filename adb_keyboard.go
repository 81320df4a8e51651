package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"ussdpilot/pkg/logging"
)

const (
	adbKeyboardPackage = "com.android.adbkeyboard"
	adbKeyboardIME     = "com.android.adbkeyboard/.AdbIME"
)

// textInput types into the focused field of a device.
type textInput struct {
	shell shellRunner
	// imeSettle is how long a freshly selected IME needs to bind to the field.
	imeSettle time.Duration
}

func newTextInput(shell shellRunner) *textInput {
	return &textInput{shell: shell, imeSettle: 800 * time.Millisecond}
}

// keyboardInstalled reports whether ADBKeyboard is on the device.
func (t *textInput) keyboardInstalled(ctx context.Context) bool {
	output, err := t.shell.Shell(ctx, "pm list packages "+adbKeyboardPackage)
	return err == nil && strings.Contains(output, "package:"+adbKeyboardPackage)
}

func (t *textInput) currentIME(ctx context.Context) string {
	output, err := t.shell.Shell(ctx, "settings get secure default_input_method")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(output)
}

// activateKeyboard switches to ADBKeyboard and returns the IME to restore.
func (t *textInput) activateKeyboard(ctx context.Context) string {
	previous := t.currentIME(ctx)
	if previous == adbKeyboardIME {
		return previous
	}
	_, _ = t.shell.Shell(ctx, "ime enable "+adbKeyboardIME)
	_, _ = t.shell.Shell(ctx, "ime set "+adbKeyboardIME)
	logging.Debug("adb_keyboard").Msg("ADBKeyboard temporarily activated")

	select {
	case <-ctx.Done():
	case <-time.After(t.imeSettle):
	}
	return previous
}

func (t *textInput) restoreIME(ctx context.Context, previous string) {
	if previous == "" || previous == adbKeyboardIME {
		return
	}
	if _, err := t.shell.Shell(ctx, "ime set "+previous); err != nil {
		logging.Debug("adb_keyboard").Err(err).Msg("Failed to restore previous IME")
		return
	}
	logging.Debug("adb_keyboard").Str("ime", previous).Msg("Restored previous IME")
}

// inputViaKeyboard sends text through ADBKeyboard's base64 broadcast.
func (t *textInput) inputViaKeyboard(ctx context.Context, text string) error {
	if !t.keyboardInstalled(ctx) {
		return fmt.Errorf("ADBKeyboard (%s) is required for non-ASCII input and is not installed", adbKeyboardPackage)
	}

	previous := t.activateKeyboard(ctx)
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	output, err := t.shell.Shell(ctx, "am broadcast -a ADB_INPUT_B64 --es msg "+encoded)
	t.restoreIME(ctx, previous)

	if err != nil {
		return fmt.Errorf("ADBKeyboard broadcast failed: %w", err)
	}
	if !strings.Contains(output, "result=0") && !strings.Contains(output, "result=-1") {
		logging.Debug("adb_keyboard").Str("output", output).Msg("Unexpected broadcast result")
	}
	return nil
}

// InputText types text into the focused field. ASCII goes through
// `input text`; anything else needs ADBKeyboard.
func (t *textInput) InputText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if containsNonASCII(text) {
		return t.inputViaKeyboard(ctx, text)
	}
	_, err := t.shell.Shell(ctx, "input text "+escapeForAdbInput(text))
	return err
}

// ClearText deletes count characters before the cursor after moving it to
// the end of the field.
func (t *textInput) ClearText(ctx context.Context, count int) error {
	if _, err := t.shell.Shell(ctx, fmt.Sprintf("input keyevent %d", keycodeMoveEnd)); err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}
	codes := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", keycodeDel), count))
	_, err := t.shell.Shell(ctx, "input keyevent "+codes)
	return err
}

func containsNonASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}

// escapeForAdbInput escapes ASCII text for `adb shell input text`.
func escapeForAdbInput(text string) string {
	// input text reads %s as a space
	result := strings.ReplaceAll(text, " ", "%s")

	shellSpecials := []string{
		"\\", "'", "\"", "`", "$",
		"(", ")", "{", "}", "[", "]",
		"&", "|", ";", "<", ">",
		"#", "!", "~", "*", "?",
	}
	for _, ch := range shellSpecials {
		result = strings.ReplaceAll(result, ch, "\\"+ch)
	}
	return result
}
