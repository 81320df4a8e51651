package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ussdpilot/pkg/config"
	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/types"
	"ussdpilot/pkg/ussd"
)

// minDumpInterval spaces uiautomator dumps shared by the watcher and engine.
const minDumpInterval = 250 * time.Millisecond

// App owns the adb connection and the automation engine attached to it.
type App struct {
	ctx     context.Context
	cancel  context.CancelFunc
	version string
	adbPath string

	mu      sync.Mutex
	cfg     *config.Config
	serial  string
	engine  *ussd.Engine
	watcher *UIWatcher

	registry *prometheus.Registry
	metrics  *ussd.Metrics

	listenersMu sync.RWMutex
	listeners   []func(text string)
}

// NewApp creates an App for cfg. A nil cfg means the defaults.
func NewApp(cfg *config.Config, version string) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		ctx:      context.Background(),
		cancel:   func() {},
		cfg:      cfg,
		version:  version,
		registry: reg,
		metrics:  ussd.NewMetrics(reg),
	}
}

// startup resolves the adb binary. The device and engine are attached on
// first use.
func (a *App) startup(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a.setupBinaries()
}

// Shutdown detaches the engine and stops the watcher.
func (a *App) Shutdown() {
	a.mu.Lock()
	eng := a.engine
	a.engine = nil
	a.watcher = nil
	a.mu.Unlock()

	if eng != nil {
		eng.Detach()
	}
	a.cancel()
}

// GetAppVersion returns the application version.
func (a *App) GetAppVersion() string {
	return a.version
}

// Config returns the active settings.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Registry exposes the metrics registry for the HTTP endpoint.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) setupBinaries() error {
	path, err := resolveAdbPath(a.Config().AdbPath)
	if err != nil {
		return err
	}
	a.adbPath = path
	logging.Info("app").Str("adb", path).Msg("Using adb binary")
	return nil
}

// resolveAdbPath picks the adb binary: the configured path, $ADB, PATH, then
// the platform-tools of an Android SDK.
func resolveAdbPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured adb %s: %w", configured, err)
		}
		return configured, nil
	}
	if env := os.Getenv("ADB"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
	}
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}

	name := "adb"
	if runtime.GOOS == "windows" {
		name = "adb.exe"
	}
	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		root := os.Getenv(key)
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, "platform-tools", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("adb not found: set adbPath, $ADB or add platform-tools to PATH")
}

// newAdbCommand creates an adb command with proxy variables stripped: adb
// talks to its local server and some proxies break that connection.
func (a *App) newAdbCommand(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, a.adbPath, args...)
	} else {
		cmd = exec.Command(a.adbPath, args...)
	}
	cmd.Env = withoutProxyEnv(os.Environ())
	return cmd
}

func withoutProxyEnv(env []string) []string {
	proxyVars := []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}
	out := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			out = append(out, e)
		}
	}
	return out
}

// device returns the serial commands run against.
func (a *App) device(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceLocked(ctx)
}

func (a *App) deviceLocked(ctx context.Context) (string, error) {
	if a.serial != "" {
		return a.serial, nil
	}
	var devices []types.Device
	if a.cfg.Device == "" {
		list, err := a.GetDevices(ctx)
		if err != nil {
			return "", err
		}
		devices = list
	}
	serial, err := pickDevice(a.cfg.Device, devices)
	if err != nil {
		return "", err
	}
	a.serial = serial
	logging.Info("app").Str("device", serial).Msg("Device selected")
	return serial, nil
}

func (a *App) shellFor(serial string) shellRunner {
	return &adbShell{app: a, serial: serial}
}

// ensureEngine attaches the automation engine to the selected device and
// starts the UI watcher feeding it.
func (a *App) ensureEngine(ctx context.Context) (*ussd.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		return a.engine, nil
	}

	serial, err := a.deviceLocked(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	shell := a.shellFor(serial)
	dumper := newHierarchyDumper(shell, minDumpInterval)
	window := newDeviceWindow(a.ctx, dumper, shell, newTextInput(shell))

	eng, err := ussd.Attach(a.ctx, ussd.Options{
		Window:      window,
		Dialer:      &telephony{shell: shell},
		Locators:    locatorsFrom(cfg),
		Timing:      timingFrom(cfg),
		Metrics:     a.metrics,
		HideDialogs: cfg.HideDialogs,
	})
	if err != nil {
		return nil, fmt.Errorf("attach engine: %w", err)
	}
	eng.AddListener(a.onInbound)

	watcher := NewUIWatcher(dumper, window, cfg.PollInterval, cfg.DialogPackages, eng.Notify)
	go watcher.Run(a.ctx)

	a.engine, a.watcher = eng, watcher
	return eng, nil
}

func (a *App) currentEngine() *ussd.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

// applyConfig takes a reloaded config. Dialog hiding, vocabularies and the
// package filter apply live; timings and the device need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	eng, watcher := a.engine, a.watcher
	a.mu.Unlock()

	if eng != nil {
		eng.SetHideDialogs(cfg.HideDialogs)
		eng.SetLocators(*locatorsFrom(cfg))
	}
	if watcher != nil {
		watcher.SetPackages(cfg.DialogPackages)
	}
	logging.Info("app").Bool("hideDialogs", cfg.HideDialogs).Msg("Settings applied")
}

func locatorsFrom(cfg *config.Config) *ussd.Locators {
	loc := ussd.DefaultLocators()
	if len(cfg.InputClasses) > 0 {
		loc.InputClasses = append([]string(nil), cfg.InputClasses...)
	}
	if len(cfg.ConfirmWords) > 0 {
		loc.ConfirmWords = append([]string(nil), cfg.ConfirmWords...)
	}
	if len(cfg.CancelWords) > 0 {
		loc.CancelWords = append([]string(nil), cfg.CancelWords...)
	}
	return loc
}

func timingFrom(cfg *config.Config) ussd.Timing {
	return ussd.Timing{
		SettleDelay:      cfg.SettleDelay,
		ReplyDelay:       cfg.ReplyDelay,
		EventSettleDelay: cfg.EventSettleDelay,
		MaxRetries:       cfg.MaxRetries,
	}
}

// OnMessageReceived registers fn for every dialog message. fn runs on the
// engine goroutine and must not block.
func (a *App) OnMessageReceived(fn func(text string)) {
	a.listenersMu.Lock()
	a.listeners = append(a.listeners, fn)
	a.listenersMu.Unlock()
}

func (a *App) onInbound(in ussd.Inbound) {
	a.listenersMu.RLock()
	listeners := a.listeners
	a.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(in.Text)
	}
}
