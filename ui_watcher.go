package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/ussd"
)

// windowSignature summarises a dump so successive polls can be compared.
type windowSignature struct {
	pkg     string
	class   string
	layout  string
	content string
}

// signatureOf separates structure (classes and ids) from text. Editable
// fields are left out of content so typing a reply does not look like a
// new message.
func signatureOf(root *UINode) (windowSignature, []string) {
	var layout strings.Builder
	var texts []string
	var walk func(n *UINode)
	walk = func(n *UINode) {
		layout.WriteString(n.Class)
		layout.WriteByte('#')
		layout.WriteString(n.ResourceID)
		layout.WriteByte(';')
		if n.Text != "" && !strings.HasSuffix(n.Class, "EditText") {
			texts = append(texts, n.Text)
		}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
	}
	walk(root)
	return windowSignature{
		pkg:     root.Package,
		class:   root.Class,
		layout:  layout.String(),
		content: strings.Join(texts, "\x1f"),
	}, texts
}

// UIWatcher polls the device UI and raises notifications when it changes.
// uiautomator cannot stream events while dumps are taken, so changes are
// found by diffing successive dumps.
type UIWatcher struct {
	dumper   *hierarchyDumper
	window   *deviceWindow
	interval time.Duration
	notify   func(ussd.Notification)

	mu       sync.Mutex
	packages map[string]bool
	last     windowSignature
	hasLast  bool
}

// NewUIWatcher reports changes in packages only. No packages means all.
func NewUIWatcher(dumper *hierarchyDumper, window *deviceWindow, interval time.Duration, packages []string, notify func(ussd.Notification)) *UIWatcher {
	w := &UIWatcher{
		dumper:   dumper,
		window:   window,
		interval: interval,
		notify:   notify,
	}
	w.SetPackages(packages)
	return w
}

// SetPackages replaces the package filter.
func (w *UIWatcher) SetPackages(packages []string) {
	set := make(map[string]bool, len(packages))
	for _, p := range packages {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = true
		}
	}
	w.mu.Lock()
	w.packages = set
	w.mu.Unlock()
}

func (w *UIWatcher) allowed(pkg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.packages) == 0 || w.packages[pkg]
}

// observe compares root with the previous poll. It reports whether a
// notification should be raised.
func (w *UIWatcher) observe(root *UINode) (ussd.Notification, bool) {
	if root == nil {
		w.hasLast = false
		return ussd.Notification{}, false
	}
	sig, texts := signatureOf(root)
	prev, had := w.last, w.hasLast
	w.last, w.hasLast = sig, true

	if !w.allowed(sig.pkg) {
		return ussd.Notification{}, false
	}

	n := ussd.Notification{PackageName: sig.pkg, ClassName: sig.class, Text: texts}
	switch {
	case !had || prev.pkg != sig.pkg || prev.class != sig.class || prev.layout != sig.layout:
		n.Type = ussd.WindowStateChanged
	case prev.content != sig.content:
		n.Type = ussd.WindowContentChanged
	default:
		return ussd.Notification{}, false
	}
	return n, true
}

// Run polls until ctx is done.
func (w *UIWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logging.Info("watcher").Dur("interval", w.interval).Msg("UI watcher started")

	for {
		w.poll(ctx)
		select {
		case <-ctx.Done():
			logging.Info("watcher").Msg("UI watcher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *UIWatcher) poll(ctx context.Context) {
	root, err := w.dumper.Dump(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Debug("watcher").Err(err).Msg("Poll failed")
		}
		return
	}
	n, changed := w.observe(root)
	if !changed {
		return
	}
	if w.window != nil {
		w.window.remember(root)
	}
	logging.Debug("watcher").Str("type", n.Type.String()).Str("package", n.PackageName).Msg("UI change observed")
	w.notify(n)
}
