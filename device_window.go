package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"ussdpilot/pkg/logging"
	"ussdpilot/pkg/ussd"
)

// Android key codes sent with `input keyevent`.
const (
	keycodeUnknown = 0
	keycodeBack    = 4
	keycodeEnter   = 66
	keycodeDel     = 67
	keycodeMoveEnd = 123
)

// deviceWindow is the ussd.Window of a device reached over adb. Every Root
// call is a fresh uiautomator dump.
type deviceWindow struct {
	ctx     context.Context
	timeout time.Duration
	dumper  *hierarchyDumper
	shell   shellRunner
	input   *textInput

	mu       sync.Mutex
	snapshot *UINode
}

func newDeviceWindow(ctx context.Context, dumper *hierarchyDumper, shell shellRunner, input *textInput) *deviceWindow {
	return &deviceWindow{
		ctx:     ctx,
		timeout: 15 * time.Second,
		dumper:  dumper,
		shell:   shell,
		input:   input,
	}
}

func (w *deviceWindow) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(w.ctx, w.timeout)
}

func (w *deviceWindow) dump() *UINode {
	ctx, cancel := w.opContext()
	defer cancel()
	root, err := w.dumper.Dump(ctx)
	if err != nil {
		logging.Warn("window").Err(err).Msg("UI dump failed")
		return nil
	}
	return root
}

// Root returns the current window. It returns a nil interface when the dump
// fails so the engine treats the UI as not ready.
func (w *deviceWindow) Root() ussd.Node {
	root := w.dump()
	if root == nil {
		return nil
	}
	return w.wrap(root)
}

func (w *deviceWindow) keyevent(code int) bool {
	ctx, cancel := w.opContext()
	defer cancel()
	_, err := w.shell.Shell(ctx, fmt.Sprintf("input keyevent %d", code))
	if err != nil {
		logging.Debug("window").Int("keycode", code).Err(err).Msg("Key event failed")
	}
	return err == nil
}

// Back sends KEYCODE_BACK.
func (w *deviceWindow) Back() bool {
	return w.keyevent(keycodeBack)
}

// ConfirmGesture sends KEYCODE_ENTER to the focused field.
func (w *deviceWindow) ConfirmGesture() bool {
	return w.keyevent(keycodeEnter)
}

// remember stores the tree the watcher observed with its latest notification.
func (w *deviceWindow) remember(root *UINode) {
	w.mu.Lock()
	w.snapshot = root
	w.mu.Unlock()
}

// Acquire prefers a fresh dump of the notifying package, then the snapshot
// the notification was raised from, then the notification texts alone. The
// snapshot matters when dialogs are hidden: by the time the engine looks the
// dialog is gone. Release drops the snapshot so a later notification cannot
// be served the same stale tree.
func (w *deviceWindow) Acquire(n ussd.Notification) (ussd.Node, func()) {
	w.mu.Lock()
	snap := w.snapshot
	w.mu.Unlock()

	var src ussd.Node
	if root := w.dump(); root != nil && samePackage(root, n.PackageName) {
		src = w.wrap(root)
	} else {
		switch {
		case snap != nil && samePackage(snap, n.PackageName):
			src = w.wrap(snap)
		case len(n.Text) > 0:
			src = textNode(n.Text)
		}
	}

	var once sync.Once
	return src, func() {
		once.Do(func() {
			w.mu.Lock()
			if w.snapshot == snap {
				w.snapshot = nil
			}
			w.mu.Unlock()
		})
	}
}

func samePackage(root *UINode, pkg string) bool {
	return pkg == "" || root.Package == pkg
}

func (w *deviceWindow) wrap(n *UINode) *deviceNode {
	return &deviceNode{n: n, win: w}
}

// deviceNode is a ussd.Node over one dumped element. Actions are taps at the
// centre of its bounds.
type deviceNode struct {
	n   *UINode
	win *deviceWindow
}

func (d *deviceNode) ClassName() string {
	return d.n.Class
}

func (d *deviceNode) Text() string {
	return d.n.Text
}

func (d *deviceNode) ResourceID() string {
	return d.n.ResourceID
}

func (d *deviceNode) IsFocused() bool {
	return d.n.Focused
}

func (d *deviceNode) IsClickable() bool {
	return d.n.Clickable && d.n.Enabled
}

func (d *deviceNode) ChildCount() int {
	return len(d.n.Nodes)
}

// IsEditable is inferred from the class: uiautomator does not report it.
func (d *deviceNode) IsEditable() bool {
	return d.n.Enabled && strings.HasSuffix(d.n.Class, "EditText")
}

func (d *deviceNode) Child(i int) ussd.Node {
	if i < 0 || i >= len(d.n.Nodes) {
		return nil
	}
	return d.win.wrap(&d.n.Nodes[i])
}

func (d *deviceNode) tap(ctx context.Context) bool {
	x, y, ok := d.n.center()
	if !ok {
		return false
	}
	_, err := d.win.shell.Shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	if err != nil {
		logging.Debug("window").Str("bounds", d.n.Bounds).Err(err).Msg("Tap failed")
	}
	return err == nil
}

func (d *deviceNode) Click() bool {
	ctx, cancel := d.win.opContext()
	defer cancel()
	return d.tap(ctx)
}

func (d *deviceNode) Focus() bool {
	if d.n.Focused {
		return true
	}
	return d.Click()
}

// SetText replaces the field content: focus, move to the end, delete what
// the dump showed, then type.
func (d *deviceNode) SetText(text string) bool {
	ctx, cancel := d.win.opContext()
	defer cancel()

	if !d.n.Focused && !d.tap(ctx) {
		return false
	}
	if err := d.win.input.ClearText(ctx, utf8.RuneCountInString(d.n.Text)); err != nil {
		logging.Debug("window").Err(err).Msg("Clearing field failed")
		return false
	}
	if err := d.win.input.InputText(ctx, text); err != nil {
		logging.Warn("window").Err(err).Msg("Text input failed")
		return false
	}
	return true
}

// textNode stands in for a window that could not be captured: a layout of
// TextViews carrying the notification texts. It accepts no actions.
type textNode []string

func (t textNode) ClassName() string {
	return "android.widget.LinearLayout"
}

func (t textNode) Text() string {
	return ""
}

func (t textNode) ResourceID() string {
	return ""
}

func (t textNode) IsEditable() bool {
	return false
}

func (t textNode) IsFocused() bool {
	return false
}

func (t textNode) IsClickable() bool {
	return false
}

func (t textNode) ChildCount() int {
	return len(t)
}

func (t textNode) Click() bool {
	return false
}

func (t textNode) Focus() bool {
	return false
}

func (t textNode) SetText(string) bool {
	return false
}

func (t textNode) Child(i int) ussd.Node {
	if i < 0 || i >= len(t) {
		return nil
	}
	return textLeaf(t[i])
}

type textLeaf string

func (l textLeaf) ClassName() string {
	return ussd.ClassTextView
}

func (l textLeaf) Text() string {
	return string(l)
}

func (l textLeaf) ResourceID() string {
	return ""
}

func (l textLeaf) IsEditable() bool {
	return false
}

func (l textLeaf) IsFocused() bool {
	return false
}

func (l textLeaf) IsClickable() bool {
	return false
}

func (l textLeaf) ChildCount() int {
	return 0
}

func (l textLeaf) Child(int) ussd.Node {
	return nil
}

func (l textLeaf) Click() bool {
	return false
}

func (l textLeaf) Focus() bool {
	return false
}

func (l textLeaf) SetText(string) bool {
	return false
}
