package ussd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ussdpilot/pkg/logging"
)

// Options configures an Engine.
type Options struct {
	Window Window
	Dialer Dialer
	// Scheduler runs every engine mutation. When nil the engine owns a Loop.
	Scheduler   Scheduler
	Locators    *Locators
	Timing      Timing
	Metrics     *Metrics
	HideDialogs bool
}

// Engine is the automation service connected to one host UI. All state is
// confined to the scheduler goroutine; exported methods are safe to call from
// any goroutine.
type Engine struct {
	win    Window
	dialer Dialer
	sched  Scheduler
	loop   *Loop

	timing   Timing
	loc      *Locators
	queue    *PendingQueue
	orch     *Orchestrator
	disp     *Dispatcher
	sessions *SessionController

	closed    chan struct{}
	closeOnce sync.Once
}

// New builds an engine over opts.Window without attaching it.
func New(opts Options) (*Engine, error) {
	if opts.Window == nil {
		return nil, errors.New("ussd: window is required")
	}
	timing := opts.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	loc := opts.Locators
	if loc == nil {
		loc = DefaultLocators()
	}

	e := &Engine{
		win:    opts.Window,
		dialer: opts.Dialer,
		sched:  opts.Scheduler,
		timing: timing,
		loc:    loc,
		queue:  &PendingQueue{},
		closed: make(chan struct{}),
	}
	if e.sched == nil {
		e.loop = NewLoop(0)
		e.sched = e.loop
	}

	e.orch = NewOrchestrator(e.win, e.sched, e.loc, e.queue, timing, opts.Metrics)
	e.disp = NewDispatcher(e.win, e.sched, e.queue, e.orch, timing, opts.Metrics)
	e.disp.HideDialogs = opts.HideDialogs
	e.sessions = NewSessionController(e.win, e.loc, e.queue, e.orch)

	e.orch.OnSent = e.sessions.MarkSent
	e.disp.AddListener(e.sessions.HandleInbound)
	return e, nil
}

// Start runs the owned loop until ctx is done or the engine is closed. The
// engine detaches itself when ctx ends.
func (e *Engine) Start(ctx context.Context) {
	if e.loop != nil {
		e.loop.Start(ctx)
	}
	go func() {
		select {
		case <-ctx.Done():
			e.Detach()
		case <-e.closed:
		}
	}()
}

// Close stops the engine. Waiting callers receive ErrNotAttached.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.loop != nil {
			e.loop.Stop()
		}
	})
}

var current atomic.Pointer[Engine]

// Attach builds and starts an engine and makes it the process-wide handle.
// A previously attached engine is closed.
func Attach(ctx context.Context, opts Options) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	e.Start(ctx)
	if prev := current.Swap(e); prev != nil {
		prev.Close()
	}
	logging.Info("engine").Msg("Automation engine attached")
	return e, nil
}

// Detach clears the process-wide handle if it still points at e, then closes e.
func (e *Engine) Detach() {
	if current.CompareAndSwap(e, nil) {
		logging.Info("engine").Msg("Automation engine detached")
	}
	e.Close()
}

// Current returns the attached engine, or nil.
func Current() *Engine {
	return current.Load()
}

// SendReply replaces the queued replies of the attached engine. It reports
// false when nothing is attached.
func SendReply(msgs []string) bool {
	e := Current()
	if e == nil {
		logging.Debug("engine").Msg("SendReply ignored, engine not attached")
		return false
	}
	e.SendReply(msgs)
	return true
}

// CancelSession cancels the open dialog of the attached engine. It reports
// whether a cancel control was clicked.
func CancelSession() bool {
	e := Current()
	if e == nil {
		return false
	}
	ok, err := e.CancelSession(context.Background())
	return err == nil && ok
}

// Notify forwards a UI-change notification to the attached engine.
func Notify(n Notification) bool {
	e := Current()
	if e == nil {
		return false
	}
	e.Notify(n)
	return true
}

// do runs fn on the scheduler and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	select {
	case <-e.closed:
		return ErrNotAttached
	default:
	}
	finished := make(chan struct{})
	e.sched.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-e.closed:
		return ErrNotAttached
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendReply replaces the pending queue with msgs and starts a reply cycle.
func (e *Engine) SendReply(msgs []string) {
	batch := append([]string(nil), msgs...)
	e.sched.Post(func() { e.sessions.Reply(batch) })
}

// Notify hands n to the dispatcher.
func (e *Engine) Notify(n Notification) {
	e.sched.Post(func() { e.disp.Handle(n) })
}

// AddListener registers l for every extracted message. l runs on the
// scheduler goroutine and must not block.
func (e *Engine) AddListener(l Listener) {
	e.sched.Post(func() { e.disp.AddListener(l) })
}

// SetHideDialogs toggles dismissing dialogs on window state changes.
func (e *Engine) SetHideDialogs(hide bool) {
	e.sched.Post(func() { e.disp.HideDialogs = hide })
}

// SetLocators replaces the locator vocabularies. Empty lists keep the
// current ones.
func (e *Engine) SetLocators(l Locators) {
	e.sched.Post(func() {
		if len(l.InputClasses) > 0 {
			e.loc.InputClasses = append([]string(nil), l.InputClasses...)
		}
		if len(l.ConfirmWords) > 0 {
			e.loc.ConfirmWords = append([]string(nil), l.ConfirmWords...)
		}
		if len(l.CancelWords) > 0 {
			e.loc.CancelWords = append([]string(nil), l.CancelWords...)
		}
	})
}

// State returns the orchestrator state.
func (e *Engine) State(ctx context.Context) (State, error) {
	var s State
	if err := e.do(ctx, func() { s = e.orch.State() }); err != nil {
		return Idle, err
	}
	return s, nil
}

// PendingReplies returns a copy of the reply queue.
func (e *Engine) PendingReplies(ctx context.Context) ([]string, error) {
	var items []string
	if err := e.do(ctx, func() { items = e.queue.Items() }); err != nil {
		return nil, err
	}
	return items, nil
}

// SendRequest dials code on line and returns the first dialog message.
func (e *Engine) SendRequest(ctx context.Context, code string, line int) (string, error) {
	return e.run(ctx, code, line, NewSession(SingleSession, nil, Callbacks{}))
}

// SendMultiStep dials code and answers each menu round with the next option.
// It returns the final message, which is also passed to cb.OnOver.
func (e *Engine) SendMultiStep(ctx context.Context, code string, line int, options []string, cb Callbacks) (string, error) {
	return e.run(ctx, code, line, NewSession(MultiSession, options, cb))
}

// SendMessage sends a freeform reply to the open dialog. Blank text is a
// valid reply.
func (e *Engine) SendMessage(text string) {
	e.sched.Post(func() { e.sessions.SendMessage(text) })
}

// CancelSession clicks the dialog's cancel control. It reports false, with no
// error, when no control is on screen.
func (e *Engine) CancelSession(ctx context.Context) (bool, error) {
	var found bool
	if err := e.do(ctx, func() { found = e.sessions.Cancel() }); err != nil {
		return false, err
	}
	return found, nil
}

func (e *Engine) run(ctx context.Context, code string, line int, s *Session) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", InvalidArgument("ussd code is required")
	}
	if e.dialer == nil {
		return "", errors.New("ussd: no dialer configured")
	}
	if err := e.do(ctx, func() { e.sessions.Begin(s) }); err != nil {
		return "", err
	}

	timer := logging.StartOperation("engine", "dial").With("code", code).With("line", strconv.Itoa(line))
	if err := e.dial(ctx, code, line); err != nil {
		timer.EndWithError(err)
		e.sched.Post(func() { e.sessions.Abandon(s, err) })
		return "", fmt.Errorf("dial %s: %w", code, err)
	}
	timer.End()

	select {
	case r := <-s.done:
		return r.text, r.err
	case <-ctx.Done():
		err := ctx.Err()
		e.sched.Post(func() { e.sessions.Abandon(s, err) })
		return "", err
	case <-e.closed:
		return "", ErrNotAttached
	}
}

// dial retries transient dial faults up to MaxRetries times, SettleDelay
// apart. Any other error ends the attempt.
func (e *Engine) dial(ctx context.Context, code string, line int) error {
	for attempt := 0; ; attempt++ {
		err := e.dialer.Dial(ctx, code, line)
		if err == nil || !IsTransient(err) || attempt >= e.timing.MaxRetries {
			return err
		}
		logging.Warn("engine").Err(err).Int("attempt", attempt+1).Msg("Dial failed, retrying")
		select {
		case <-time.After(e.timing.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closed:
			return ErrNotAttached
		}
	}
}
