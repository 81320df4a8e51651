// Package ussd drives USSD dialogs through a live UI tree.
//
// The package never talks to a device directly. A host supplies a Window
// (the connection to the OS UI) whose Root returns a Node snapshot; the
// engine scans that snapshot for input fields and confirm controls, injects
// queued replies and reports dialog text upstream. All engine state is
// mutated on a single Scheduler goroutine.
package ussd

// Well-known Android widget classes used by the locators.
const (
	ClassEditText = "android.widget.EditText"
	ClassTextView = "android.widget.TextView"
	ClassButton   = "android.widget.Button"

	// CancelButtonID is the resource id AlertDialog assigns to its negative button.
	CancelButtonID = "android:id/button2"
)

// Node is a view into one element of the OS-owned UI tree.
// A Node is only valid inside the snapshot it was read from.
type Node interface {
	ClassName() string
	Text() string
	ResourceID() string
	IsEditable() bool
	IsFocused() bool
	IsClickable() bool
	ChildCount() int
	// Child returns nil when the child at i is not available.
	Child(i int) Node

	Click() bool
	Focus() bool
	SetText(text string) bool
}

// NotificationType mirrors the accessibility event types the engine reacts to.
type NotificationType int

const (
	NotificationOther NotificationType = iota
	WindowStateChanged
	WindowContentChanged
)

func (t NotificationType) String() string {
	switch t {
	case WindowStateChanged:
		return "window_state_changed"
	case WindowContentChanged:
		return "window_content_changed"
	default:
		return "other"
	}
}

// Notification is a UI-change event delivered by the host.
type Notification struct {
	Type        NotificationType
	PackageName string
	ClassName   string
	// Text is whatever text the host captured with the event, if any.
	Text []string
}

// Window is the host's connection to the OS UI.
type Window interface {
	// Root returns the current active window root, or nil when the UI is
	// not ready.
	Root() Node
	// Back issues a global back action.
	Back() bool
	// ConfirmGesture attempts an OS-level confirm signal. Its effect is not
	// verified by the engine.
	ConfirmGesture() bool
	// Acquire returns the source node of a notification and a release func.
	// The release func is non-nil and must be called exactly once.
	Acquire(n Notification) (Node, func())
}
