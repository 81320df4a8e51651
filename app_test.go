package main

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"ussdpilot/pkg/config"
	"ussdpilot/pkg/ussd"
)

func TestWithoutProxyEnv(t *testing.T) {
	env := []string{
		"PATH=/usr/bin",
		"HTTP_PROXY=http://proxy:3128",
		"https_proxy=http://proxy:3128",
		"NO_PROXY=localhost",
		"HTTP_PROXY_USER=kept",
		"HOME=/root",
	}
	got := withoutProxyEnv(env)
	want := []string{"PATH=/usr/bin", "HTTP_PROXY_USER=kept", "HOME=/root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("withoutProxyEnv = %v, want %v", got, want)
	}
}

func fakeAdb(t *testing.T, dir string) string {
	t.Helper()
	name := "adb"
	if runtime.GOOS == "windows" {
		name = "adb.exe"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write fake adb: %v", err)
	}
	return path
}

func TestResolveAdbPath_Configured(t *testing.T) {
	path := fakeAdb(t, t.TempDir())

	got, err := resolveAdbPath(path)
	if err != nil || got != path {
		t.Errorf("resolveAdbPath(%q) = %q, %v", path, got, err)
	}

	if _, err := resolveAdbPath(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Missing configured adb should be an error")
	}
}

func TestResolveAdbPath_Env(t *testing.T) {
	path := fakeAdb(t, t.TempDir())
	t.Setenv("ADB", path)

	got, err := resolveAdbPath("")
	if err != nil || got != path {
		t.Errorf("resolveAdbPath from $ADB = %q, %v", got, err)
	}
}

func TestResolveAdbPath_AndroidHome(t *testing.T) {
	sdk := t.TempDir()
	tools := filepath.Join(sdk, "platform-tools")
	if err := os.MkdirAll(tools, 0755); err != nil {
		t.Fatal(err)
	}
	path := fakeAdb(t, tools)

	t.Setenv("ADB", "")
	t.Setenv("PATH", "")
	t.Setenv("ANDROID_HOME", "")
	t.Setenv("ANDROID_SDK_ROOT", sdk)

	got, err := resolveAdbPath("")
	if err != nil || got != path {
		t.Errorf("resolveAdbPath from SDK = %q, %v", got, err)
	}
}

func TestResolveAdbPath_NotFound(t *testing.T) {
	t.Setenv("ADB", "")
	t.Setenv("PATH", "")
	t.Setenv("ANDROID_HOME", "")
	t.Setenv("ANDROID_SDK_ROOT", "")

	if _, err := resolveAdbPath(""); err == nil {
		t.Error("Expected adb not found error")
	}
}

func TestLocatorsFrom(t *testing.T) {
	cfg := config.Default()
	loc := locatorsFrom(cfg)
	def := ussd.DefaultLocators()
	if !reflect.DeepEqual(loc, def) {
		t.Errorf("Empty lists should keep the defaults, got %+v", loc)
	}

	cfg.ConfirmWords = []string{"Valider"}
	cfg.CancelWords = []string{"Annuler"}
	cfg.InputClasses = []string{"com.oem.UssdInput"}
	loc = locatorsFrom(cfg)
	if !reflect.DeepEqual(loc.ConfirmWords, []string{"Valider"}) ||
		!reflect.DeepEqual(loc.CancelWords, []string{"Annuler"}) ||
		!reflect.DeepEqual(loc.InputClasses, []string{"com.oem.UssdInput"}) {
		t.Errorf("Configured lists should replace the defaults, got %+v", loc)
	}

	cfg.ConfirmWords[0] = "changed"
	if loc.ConfirmWords[0] != "Valider" {
		t.Error("Locators should not alias the config slices")
	}
}

func TestTimingFrom(t *testing.T) {
	cfg := config.Default()
	cfg.ReplyDelay = 2 * time.Second
	cfg.MaxRetries = 5

	got := timingFrom(cfg)
	want := ussd.Timing{
		SettleDelay:      cfg.SettleDelay,
		ReplyDelay:       2 * time.Second,
		EventSettleDelay: cfg.EventSettleDelay,
		MaxRetries:       5,
	}
	if got != want {
		t.Errorf("timingFrom = %+v, want %+v", got, want)
	}
}

func TestOnMessageReceivedFansOut(t *testing.T) {
	app := NewApp(nil, "test")

	var first, second []string
	app.OnMessageReceived(func(text string) { first = append(first, text) })
	app.OnMessageReceived(func(text string) { second = append(second, text) })

	app.onInbound(ussd.Inbound{Text: "Your balance is 100"})

	if !reflect.DeepEqual(first, []string{"Your balance is 100"}) || !reflect.DeepEqual(second, first) {
		t.Errorf("Listeners got %v and %v", first, second)
	}
}

func TestApplyConfigWithoutEngine(t *testing.T) {
	app := NewApp(nil, "test")
	cfg := config.Default()
	cfg.HideDialogs = true

	app.applyConfig(cfg)
	if !app.Config().HideDialogs {
		t.Error("Config should be replaced")
	}
}

func TestCommandsWithoutEngine(t *testing.T) {
	app := NewApp(nil, "test")

	found, err := app.CancelSession(t.Context())
	if err != nil || found {
		t.Errorf("CancelSession without engine = %v, %v", found, err)
	}

	delivered, err := app.SendMessage(t.Context(), "1")
	if err != nil || delivered {
		t.Errorf("SendMessage without engine = %v, %v; want a silent no-op", delivered, err)
	}

	_, err = app.SendRequest(t.Context(), "", -1)
	if f := ussd.AsFailure(err); f == nil || f.Code != ussd.CodeInvalidArgument {
		t.Errorf("Blank code: expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestRecoverFailure(t *testing.T) {
	run := func() (err error) {
		defer recoverFailure("test", &err)
		panic("boom")
	}
	err := run()
	if f := ussd.AsFailure(err); f == nil || f.Code != ussd.CodeUnexpected {
		t.Errorf("Expected UNEXPECTED_ERROR, got %v", err)
	}
}
