package ussd

import (
	"strings"

	"golang.org/x/text/cases"
)

// Default locator vocabularies. Input widget classes vary by OEM, so the
// class list is a priority-ordered allow-list rather than a single match.
var (
	DefaultInputClasses = []string{
		ClassEditText,
		ClassTextView,
		"android.widget.CustomEditText", // Samsung
		"android.widget.NumberPicker",
		"android.widget.ImeEditText",
	}
	DefaultConfirmWords = []string{"send", "ok", "submit", "confirmer", "envoyer", "valider", "enviar", "aceptar"}
	DefaultCancelWords  = []string{"cancel", "annuler", "cancelar", "dismiss"}
)

// Locators finds the controls the orchestrator acts on.
type Locators struct {
	InputClasses []string
	ConfirmWords []string
	CancelWords  []string
}

// DefaultLocators returns locators with the default vocabularies.
func DefaultLocators() *Locators {
	return &Locators{
		InputClasses: append([]string(nil), DefaultInputClasses...),
		ConfirmWords: append([]string(nil), DefaultConfirmWords...),
		CancelWords:  append([]string(nil), DefaultCancelWords...),
	}
}

// foldLabel case-folds and trims a control label for vocabulary matching.
func foldLabel(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func containsLabel(words []string, label string) bool {
	folded := foldLabel(label)
	if folded == "" {
		return false
	}
	for _, w := range words {
		if foldLabel(w) == folded {
			return true
		}
	}
	return false
}

// LocateInputField returns the first input candidate across the ordered
// class list, or nil.
func (l *Locators) LocateInputField(root Node) Node {
	if root == nil {
		return nil
	}
	usable := AnyOf(Editable, Focused, Clickable)
	for _, className := range l.InputClasses {
		for _, n := range FindByClass(root, className) {
			if usable(n) {
				return n
			}
		}
	}
	return nil
}

// LocateConfirmControl returns the first button labelled with a confirm word.
func (l *Locators) LocateConfirmControl(root Node) Node {
	for _, b := range FindByClass(root, ClassButton) {
		if containsLabel(l.ConfirmWords, b.Text()) {
			return b
		}
	}
	return nil
}

// LocateAnyClickable returns every clickable node in level order.
func (l *Locators) LocateAnyClickable(root Node) []Node {
	return FindByPredicate(root, Clickable)
}

// LocateCancelControl returns the dialog's negative button: the AlertDialog
// button2 id first, then a button labelled with a cancel word.
func (l *Locators) LocateCancelControl(root Node) Node {
	if n := FindFirst(root, func(n Node) bool { return n.ResourceID() == CancelButtonID }); n != nil {
		return n
	}
	for _, b := range FindByClass(root, ClassButton) {
		if containsLabel(l.CancelWords, b.Text()) {
			return b
		}
	}
	return nil
}

// ExtractMessage returns the dialog text shown under node: EditText subtrees
// are skipped and the first non-empty TextView found depth-first wins.
func ExtractMessage(node Node) string {
	if node == nil {
		return ""
	}
	switch node.ClassName() {
	case ClassEditText:
		return ""
	case ClassTextView:
		if t := node.Text(); t != "" {
			return t
		}
	}
	for i := 0; i < node.ChildCount(); i++ {
		if msg := ExtractMessage(node.Child(i)); msg != "" {
			return msg
		}
	}
	return ""
}

var defaultLocators = DefaultLocators()

// LocateInputField uses the default vocabularies.
func LocateInputField(root Node) Node { return defaultLocators.LocateInputField(root) }

// LocateConfirmControl uses the default vocabularies.
func LocateConfirmControl(root Node) Node { return defaultLocators.LocateConfirmControl(root) }

// LocateAnyClickable returns every clickable node under root.
func LocateAnyClickable(root Node) []Node { return defaultLocators.LocateAnyClickable(root) }
