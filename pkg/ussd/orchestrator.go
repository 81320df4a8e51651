package ussd

import (
	"time"

	"ussdpilot/pkg/logging"
)

// State is a reply orchestrator state.
type State int

const (
	Idle State = iota
	AwaitingTree
	Injecting
	Confirming
	FallbackClicking
	FallbackKeyEvent
	// Advancing is the wait after a confirmed reply, before the next cycle.
	Advancing
	Aborted
)

var stateNames = map[State]string{
	Idle:             "idle",
	AwaitingTree:     "awaiting_tree",
	Injecting:        "injecting",
	Confirming:       "confirming",
	FallbackClicking: "fallback_clicking",
	FallbackKeyEvent: "fallback_key_event",
	Advancing:        "advancing",
	Aborted:          "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Timing holds the fixed delays of the automation.
type Timing struct {
	// SettleDelay precedes every tree inspection of a reply attempt.
	SettleDelay time.Duration
	// ReplyDelay separates a confirmed reply from the next cycle.
	ReplyDelay time.Duration
	// EventSettleDelay precedes notification processing.
	EventSettleDelay time.Duration
	// MaxRetries bounds input-field lookups after the first one.
	MaxRetries int
}

// DefaultTiming returns the stock delays.
func DefaultTiming() Timing {
	return Timing{
		SettleDelay:      800 * time.Millisecond,
		ReplyDelay:       3000 * time.Millisecond,
		EventSettleDelay: 1000 * time.Millisecond,
		MaxRetries:       3,
	}
}

// PendingQueue is the FIFO of outgoing replies.
type PendingQueue struct {
	items []string
}

// Replace drops unsent messages and queues batch in order.
func (q *PendingQueue) Replace(batch []string) {
	q.items = append(q.items[:0:0], batch...)
}

// Pop removes and returns the head.
func (q *PendingQueue) Pop() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Len returns the number of queued messages.
func (q *PendingQueue) Len() int { return len(q.items) }

// Clear drops every queued message.
func (q *PendingQueue) Clear() { q.items = nil }

// Items returns a copy of the queue contents.
func (q *PendingQueue) Items() []string {
	return append([]string(nil), q.items...)
}

// Orchestrator injects queued replies into the dialog one at a time.
// Every method must run on the scheduler goroutine.
type Orchestrator struct {
	win     Window
	sched   Scheduler
	loc     *Locators
	queue   *PendingQueue
	timing  Timing
	metrics *Metrics

	state State
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
	// OnSent, when set, observes every reply that reached a click.
	OnSent func(msg string)
}

// NewOrchestrator wires an orchestrator over win.
func NewOrchestrator(win Window, sched Scheduler, loc *Locators, queue *PendingQueue, timing Timing, metrics *Metrics) *Orchestrator {
	if loc == nil {
		loc = DefaultLocators()
	}
	if queue == nil {
		queue = &PendingQueue{}
	}
	return &Orchestrator{
		win:     win,
		sched:   sched,
		loc:     loc,
		queue:   queue,
		timing:  timing,
		metrics: metrics,
		state:   Idle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// InFlight reports whether an attempt still has pending steps.
func (o *Orchestrator) InFlight() bool {
	return o.state != Idle && o.state != Aborted
}

func (o *Orchestrator) setState(s State) {
	if s == o.state {
		return
	}
	from := o.state
	o.state = s
	o.metrics.setState(s)
	logging.Debug("orchestrator").Str("from", from.String()).Str("to", s.String()).Msg("State change")
	if o.OnTransition != nil {
		o.OnTransition(from, s)
	}
}

// Trigger starts a reply cycle when messages are queued and no attempt is in
// flight. Triggers that arrive during an attempt are coalesced into it.
func (o *Orchestrator) Trigger() {
	if o.InFlight() {
		logging.Debug("orchestrator").Str("state", o.state.String()).Msg("Reply already in flight, trigger coalesced")
		return
	}
	if o.queue.Len() == 0 {
		o.setState(Idle)
		return
	}
	o.awaitTree(0)
}

func (o *Orchestrator) awaitTree(retry int) {
	o.setState(AwaitingTree)
	o.sched.PostDelayed(o.timing.SettleDelay, func() { o.inspect(retry) })
}

func (o *Orchestrator) inspect(retry int) {
	root := o.win.Root()
	if root == nil {
		logging.Debug("orchestrator").Msg("Active window unavailable, waiting for next trigger")
		o.setState(Idle)
		return
	}

	field := o.loc.LocateInputField(root)
	if field == nil {
		next := retry + 1
		if next > o.timing.MaxRetries {
			logging.Warn("orchestrator").Int("attempts", next).Int("queued", o.queue.Len()).Msg("Input field not found, reply abandoned")
			o.metrics.replyAborted()
			o.setState(Aborted)
			return
		}
		logging.Debug("orchestrator").Int("retry", next).Msg("Input field not found, retrying")
		o.awaitTree(next)
		return
	}

	msg, ok := o.queue.Pop()
	if !ok {
		o.setState(Idle)
		return
	}

	o.setState(Injecting)
	focused := field.Focus()
	set := field.SetText(msg)
	logging.Info("orchestrator").Str("class", field.ClassName()).Bool("focused", focused).Bool("textSet", set).Msg("Reply injected")

	o.setState(Confirming)
	if btn := o.loc.LocateConfirmControl(root); btn != nil {
		clicked := btn.Click()
		logging.Debug("orchestrator").Str("label", btn.Text()).Bool("clicked", clicked).Msg("Confirm control clicked")
		o.advance(msg)
		return
	}

	o.setState(FallbackClicking)
	if o.clickFallback(root) {
		o.advance(msg)
		return
	}

	o.setState(FallbackKeyEvent)
	o.metrics.fallback("gesture")
	dispatched := o.win.ConfirmGesture()
	logging.Info("orchestrator").Bool("dispatched", dispatched).Msg("No clickable confirm control, sent confirm gesture")
	o.setState(Idle)
}

// clickFallback clicks every button, then every clickable node that is not an
// input candidate, until one click succeeds.
func (o *Orchestrator) clickFallback(root Node) bool {
	for _, b := range FindByClass(root, ClassButton) {
		if b.Click() {
			logging.Debug("orchestrator").Str("label", b.Text()).Msg("Fallback button clicked")
			o.metrics.fallback("button")
			return true
		}
	}
	for _, n := range o.loc.LocateAnyClickable(root) {
		if n.ClassName() == ClassButton || n.IsEditable() || o.isInputClass(n.ClassName()) {
			continue
		}
		if n.Click() {
			logging.Debug("orchestrator").Str("class", n.ClassName()).Msg("Fallback node clicked")
			o.metrics.fallback("clickable")
			return true
		}
	}
	return false
}

func (o *Orchestrator) isInputClass(className string) bool {
	for _, c := range o.loc.InputClasses {
		if c == className {
			return true
		}
	}
	return false
}

func (o *Orchestrator) advance(msg string) {
	o.setState(Advancing)
	o.metrics.replySent()
	if o.OnSent != nil {
		o.OnSent(msg)
	}
	o.sched.PostDelayed(o.timing.ReplyDelay, func() {
		o.setState(Idle)
		o.Trigger()
	})
}
