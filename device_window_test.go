package main

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"ussdpilot/pkg/ussd"
)

var _ ussd.Window = (*deviceWindow)(nil)
var _ ussd.Node = (*deviceNode)(nil)
var _ ussd.Node = textNode(nil)

func newTestWindow(shell *fakeShell) *deviceWindow {
	dumper := newHierarchyDumper(shell, 0)
	dumper.retryDelay = time.Millisecond
	input := newTextInput(shell)
	input.imeSettle = 0
	return newDeviceWindow(context.Background(), dumper, shell, input)
}

func dialogShell() *fakeShell {
	return newFakeShell(func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "uiautomator dump") {
			return ussdDialogXML, nil
		}
		return "", nil
	})
}

func TestDeviceWindow_Root(t *testing.T) {
	w := newTestWindow(dialogShell())

	root := w.Root()
	if root == nil {
		t.Fatal("Expected a root node")
	}
	if root.ClassName() != "android.widget.FrameLayout" {
		t.Errorf("Unexpected root class %q", root.ClassName())
	}
	if root.ChildCount() != 4 {
		t.Fatalf("Expected 4 children, got %d", root.ChildCount())
	}
	if root.Child(4) != nil || root.Child(-1) != nil {
		t.Error("Out of range children should be nil")
	}

	field := root.Child(1)
	if !field.IsEditable() || !field.IsClickable() {
		t.Error("EditText should be editable and clickable")
	}
	if root.Child(0).IsEditable() {
		t.Error("TextView should not be editable")
	}
	if field.ResourceID() != "com.android.phone:id/input_field" {
		t.Errorf("Unexpected resource id %q", field.ResourceID())
	}
}

func TestDeviceWindow_RootNilOnDumpFailure(t *testing.T) {
	shell := newFakeShell(func(cmd string) (string, error) {
		return "", errors.New("device offline")
	})
	w := newTestWindow(shell)

	if root := w.Root(); root != nil {
		t.Errorf("Expected nil interface, got %#v", root)
	}
}

func TestDeviceNode_Click(t *testing.T) {
	shell := dialogShell()
	w := newTestWindow(shell)

	send := w.Root().Child(3)
	if !send.Click() {
		t.Fatal("Click should succeed")
	}
	taps := shell.commandsWithPrefix("input tap")
	if !reflect.DeepEqual(taps, []string{"input tap 880 1375"}) {
		t.Errorf("Unexpected taps %v", taps)
	}
}

func TestDeviceNode_ClickWithoutBounds(t *testing.T) {
	shell := newFakeShell(nil)
	w := newTestWindow(shell)

	n := w.wrap(&UINode{Class: "android.widget.Button", Clickable: true, Enabled: true, Bounds: "[0,0][0,0]"})
	if n.Click() {
		t.Error("Click on a zero-area node should fail")
	}
	if len(shell.commands()) != 0 {
		t.Errorf("No command expected, got %v", shell.commands())
	}
}

func TestDeviceNode_DisabledIsNotClickable(t *testing.T) {
	w := newTestWindow(newFakeShell(nil))
	n := w.wrap(&UINode{Class: "android.widget.Button", Clickable: true})
	if n.IsClickable() {
		t.Error("Disabled node should not be clickable")
	}
}

func TestDeviceNode_Focus(t *testing.T) {
	shell := newFakeShell(nil)
	w := newTestWindow(shell)

	focused := w.wrap(&UINode{Class: "android.widget.EditText", Enabled: true, Focused: true, Bounds: "[0,0][100,100]"})
	if !focused.Focus() {
		t.Fatal("Focus on a focused node should succeed")
	}
	if len(shell.commands()) != 0 {
		t.Errorf("Focused node should not be tapped, got %v", shell.commands())
	}

	blurred := w.wrap(&UINode{Class: "android.widget.EditText", Enabled: true, Bounds: "[0,0][100,100]"})
	if !blurred.Focus() {
		t.Fatal("Focus should tap the node")
	}
	if got := shell.commands(); !reflect.DeepEqual(got, []string{"input tap 50 50"}) {
		t.Errorf("Unexpected commands %v", got)
	}
}

func TestDeviceNode_SetText(t *testing.T) {
	shell := newFakeShell(nil)
	w := newTestWindow(shell)

	field := w.wrap(&UINode{Class: "android.widget.EditText", Enabled: true, Bounds: "[100,1120][980,1240]"})
	if !field.SetText("1") {
		t.Fatal("SetText should succeed")
	}
	want := []string{"input tap 540 1180", "input keyevent 123", "input text 1"}
	if got := shell.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("Commands:\n got %v\nwant %v", got, want)
	}
}

func TestDeviceNode_SetTextReplacesExisting(t *testing.T) {
	shell := newFakeShell(nil)
	w := newTestWindow(shell)

	field := w.wrap(&UINode{Class: "android.widget.EditText", Enabled: true, Focused: true, Text: "12", Bounds: "[0,0][10,10]"})
	if !field.SetText("500") {
		t.Fatal("SetText should succeed")
	}
	want := []string{"input keyevent 123", "input keyevent 67 67", "input text 500"}
	if got := shell.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("Commands:\n got %v\nwant %v", got, want)
	}
}

func TestDeviceNode_SetTextFailsWhenInputFails(t *testing.T) {
	shell := newFakeShell(func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "input text") {
			return "", errors.New("closed")
		}
		return "", nil
	})
	w := newTestWindow(shell)

	field := w.wrap(&UINode{Class: "android.widget.EditText", Enabled: true, Focused: true, Bounds: "[0,0][10,10]"})
	if field.SetText("1") {
		t.Error("SetText should report the failed input")
	}
}

func TestDeviceWindow_BackAndConfirm(t *testing.T) {
	shell := newFakeShell(nil)
	w := newTestWindow(shell)

	if !w.Back() || !w.ConfirmGesture() {
		t.Fatal("Key events should succeed")
	}
	want := []string{"input keyevent 4", "input keyevent 66"}
	if got := shell.commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("Commands: got %v want %v", got, want)
	}

	failing := newTestWindow(newFakeShell(func(string) (string, error) {
		return "", errors.New("offline")
	}))
	if failing.Back() {
		t.Error("Back should fail when the shell fails")
	}
}

func TestDeviceWindow_AcquireFreshDump(t *testing.T) {
	w := newTestWindow(dialogShell())

	src, release := w.Acquire(ussd.Notification{Type: ussd.WindowStateChanged, PackageName: "com.android.phone"})
	if src == nil || src.ChildCount() != 4 {
		t.Fatalf("Expected the dumped dialog, got %#v", src)
	}

	release()
	release()
}

func TestDeviceWindow_AcquireFallsBackToSnapshot(t *testing.T) {
	shell := newFakeShell(func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "uiautomator dump") {
			// The dialog was dismissed: only the launcher is left.
			return `<hierarchy><node class="android.widget.FrameLayout" package="com.android.launcher3" bounds="[0,0][1080,2400]" /></hierarchy>`, nil
		}
		return "", nil
	})
	w := newTestWindow(shell)

	snap, err := ParseHierarchy(ussdDialogXML)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}
	w.remember(snap)

	src, release := w.Acquire(ussd.Notification{PackageName: "com.android.phone"})
	if src == nil || src.ChildCount() != 4 {
		t.Fatalf("Expected the remembered dialog, got %#v", src)
	}

	release()
	if w.snapshot != nil {
		t.Error("Release should drop the consumed snapshot")
	}
	src, release = w.Acquire(ussd.Notification{PackageName: "com.android.phone"})
	defer release()
	if src != nil {
		t.Errorf("A released snapshot must not be served again, got %#v", src)
	}
}

func TestDeviceWindow_ReleaseKeepsNewerSnapshot(t *testing.T) {
	w := newTestWindow(dialogShell())

	first, err := ParseHierarchy(ussdDialogXML)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}
	w.remember(first)
	_, release := w.Acquire(ussd.Notification{PackageName: "com.android.phone"})

	second, err := ParseHierarchy(ussdDialogXML)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}
	w.remember(second)
	release()

	if w.snapshot != second {
		t.Error("Release must not drop a snapshot stored after Acquire")
	}
}

func TestDeviceWindow_AcquireFallsBackToText(t *testing.T) {
	shell := newFakeShell(func(cmd string) (string, error) {
		return "", errors.New("offline")
	})
	w := newTestWindow(shell)

	src, release := w.Acquire(ussd.Notification{
		PackageName: "com.android.phone",
		Text:        []string{"Your balance is 100", "OK"},
	})
	defer release()

	if src == nil {
		t.Fatal("Expected a text node")
	}
	if src.ChildCount() != 2 || src.Child(0).Text() != "Your balance is 100" {
		t.Errorf("Unexpected text node %#v", src)
	}
	if src.Child(0).ClassName() != ussd.ClassTextView {
		t.Errorf("Leaves should be TextViews, got %q", src.Child(0).ClassName())
	}
	if src.Click() || src.Child(1).SetText("x") {
		t.Error("Text nodes accept no actions")
	}
}

func TestDeviceWindow_AcquireNothing(t *testing.T) {
	shell := newFakeShell(func(cmd string) (string, error) {
		return "", errors.New("offline")
	})
	w := newTestWindow(shell)

	src, release := w.Acquire(ussd.Notification{PackageName: "com.android.phone"})
	if src != nil {
		t.Errorf("Expected nil source, got %#v", src)
	}
	if release == nil {
		t.Fatal("Release must not be nil")
	}
	release()
}
