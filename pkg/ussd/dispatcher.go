package ussd

import (
	"ussdpilot/pkg/logging"
)

// Inbound is one dialog message extracted from a notification.
type Inbound struct {
	Text string
	// AwaitsReply is true when the dialog carrying Text has an input field.
	AwaitsReply bool
	Source      Notification
}

// Listener receives inbound messages on the scheduler goroutine.
type Listener func(Inbound)

// Dispatcher turns UI-change notifications into inbound messages and wakes
// the orchestrator while replies are queued.
type Dispatcher struct {
	win     Window
	sched   Scheduler
	queue   *PendingQueue
	orch    *Orchestrator
	timing  Timing
	metrics *Metrics

	// HideDialogs issues a global back on every window state change so the
	// raw dialog stays hidden while it is driven programmatically.
	HideDialogs bool

	listeners []Listener
}

// NewDispatcher wires a dispatcher to orch.
func NewDispatcher(win Window, sched Scheduler, queue *PendingQueue, orch *Orchestrator, timing Timing, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		win:     win,
		sched:   sched,
		queue:   queue,
		orch:    orch,
		timing:  timing,
		metrics: metrics,
	}
}

// AddListener registers l for every extracted message.
func (d *Dispatcher) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Handle processes n after the event settle delay.
func (d *Dispatcher) Handle(n Notification) {
	if n.Type != WindowStateChanged && n.Type != WindowContentChanged {
		return
	}
	if d.HideDialogs && n.Type == WindowStateChanged {
		ok := d.win.Back()
		d.metrics.dialogDismissed()
		logging.Debug("dispatcher").Bool("ok", ok).Str("package", n.PackageName).Msg("Dialog dismissed")
	}
	d.sched.PostDelayed(d.timing.EventSettleDelay, func() { d.process(n) })
}

func (d *Dispatcher) process(n Notification) {
	src, release := d.win.Acquire(n)
	defer release()

	if src != nil {
		if text := ExtractMessage(src); text != "" {
			in := Inbound{
				Text:        text,
				AwaitsReply: FindFirst(src, AnyOf(Editable, ByClass(ClassEditText))) != nil,
				Source:      n,
			}
			logging.Info("dispatcher").Str("type", n.Type.String()).Bool("awaitsReply", in.AwaitsReply).Str("text", text).Msg("USSD message received")
			d.metrics.messageReceived()
			d.emit(in)
		}
	}

	if d.queue.Len() > 0 {
		d.orch.Trigger()
	}
}

func (d *Dispatcher) emit(in Inbound) {
	for _, l := range d.listeners {
		l(in)
	}
}
