package ussd

import (
	"sort"
	"time"
)

// fakeNode is an in-memory Node. A nil entry in children is a gap.
type fakeNode struct {
	class     string
	text      string
	id        string
	editable  bool
	focused   bool
	clickable bool
	children  []*fakeNode

	refuseClick bool

	clicks  int
	focuses int
	texts   []string
}

func (n *fakeNode) ClassName() string {
	return n.class
}

func (n *fakeNode) Text() string {
	return n.text
}

func (n *fakeNode) ResourceID() string {
	return n.id
}

func (n *fakeNode) IsEditable() bool {
	return n.editable
}

func (n *fakeNode) IsFocused() bool {
	return n.focused
}

func (n *fakeNode) IsClickable() bool {
	return n.clickable
}

func (n *fakeNode) ChildCount() int {
	return len(n.children)
}

func (n *fakeNode) Child(i int) Node {
	if i < 0 || i >= len(n.children) || n.children[i] == nil {
		return nil
	}
	return n.children[i]
}

func (n *fakeNode) Click() bool {
	n.clicks++
	return !n.refuseClick
}

func (n *fakeNode) Focus() bool {
	n.focuses++
	n.focused = true
	return true
}

func (n *fakeNode) SetText(text string) bool {
	n.texts = append(n.texts, text)
	n.text = text
	return n.editable
}

func layout(children ...*fakeNode) *fakeNode {
	return &fakeNode{class: "android.widget.LinearLayout", children: children}
}

func textView(text string) *fakeNode {
	return &fakeNode{class: ClassTextView, text: text}
}

func editText() *fakeNode {
	return &fakeNode{class: ClassEditText, editable: true, clickable: true}
}

func button(label string) *fakeNode {
	return &fakeNode{class: ClassButton, text: label, clickable: true}
}

// fakeWindow serves a fixed root and records host actions.
type fakeWindow struct {
	root   *fakeNode
	source *fakeNode

	rootCalls int
	backs     int
	gestures  int
	acquired  int
	released  int
}

func (w *fakeWindow) Root() Node {
	w.rootCalls++
	if w.root == nil {
		return nil
	}
	return w.root
}

func (w *fakeWindow) Back() bool {
	w.backs++
	return true
}

func (w *fakeWindow) ConfirmGesture() bool {
	w.gestures++
	return true
}

func (w *fakeWindow) Acquire(Notification) (Node, func()) {
	w.acquired++
	release := func() { w.released++ }
	src := w.source
	if src == nil {
		src = w.root
	}
	if src == nil {
		return nil, release
	}
	return src, release
}

type timedTask struct {
	at  time.Duration
	seq int
	fn  func()
}

// manualScheduler runs Post inline and PostDelayed on a virtual clock that
// only moves in Advance.
type manualScheduler struct {
	now   time.Duration
	seq   int
	tasks []timedTask
}

func (s *manualScheduler) Post(fn func()) {
	fn()
}

func (s *manualScheduler) PostDelayed(d time.Duration, fn func()) {
	s.seq++
	s.tasks = append(s.tasks, timedTask{at: s.now + d, seq: s.seq, fn: fn})
}

// Advance moves the clock by d, running due tasks in time then post order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		sort.SliceStable(s.tasks, func(i, j int) bool {
			if s.tasks[i].at != s.tasks[j].at {
				return s.tasks[i].at < s.tasks[j].at
			}
			return s.tasks[i].seq < s.tasks[j].seq
		})
		if len(s.tasks) == 0 || s.tasks[0].at > target {
			break
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.now = task.at
		task.fn()
	}
	s.now = target
}

func (s *manualScheduler) Pending() int {
	return len(s.tasks)
}

var testTiming = Timing{
	SettleDelay:      800 * time.Millisecond,
	ReplyDelay:       3000 * time.Millisecond,
	EventSettleDelay: 1000 * time.Millisecond,
	MaxRetries:       3,
}

type harness struct {
	sched *manualScheduler
	win   *fakeWindow
	queue *PendingQueue
	orch  *Orchestrator
	disp  *Dispatcher
	ctl   *SessionController
}

func newHarness(root *fakeNode) *harness {
	h := &harness{
		sched: &manualScheduler{},
		win:   &fakeWindow{root: root},
		queue: &PendingQueue{},
	}
	loc := DefaultLocators()
	h.orch = NewOrchestrator(h.win, h.sched, loc, h.queue, testTiming, nil)
	h.disp = NewDispatcher(h.win, h.sched, h.queue, h.orch, testTiming, nil)
	h.ctl = NewSessionController(h.win, loc, h.queue, h.orch)
	h.orch.OnSent = h.ctl.MarkSent
	return h
}

func (h *harness) send(msgs ...string) {
	h.queue.Replace(msgs)
	h.orch.Trigger()
}
