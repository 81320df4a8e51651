package ussd

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"ussdpilot/pkg/logging"
)

// Dialer starts a USSD request on the device.
type Dialer interface {
	Dial(ctx context.Context, code string, line int) error
}

// Mode selects how a session consumes dialog rounds.
type Mode int

const (
	// SingleSession completes on the first dialog message.
	SingleSession Mode = iota
	// MultiSession consumes one predefined option per dialog round.
	MultiSession
)

func (m Mode) String() string {
	if m == MultiSession {
		return "multi"
	}
	return "single"
}

// Callbacks are the continuations of a multi-step session.
type Callbacks struct {
	// OnUpdate receives every intermediate message.
	OnUpdate func(msg string)
	// OnOver receives the final message.
	OnOver func(msg string)
}

// DefaultProgressPhrases match the transient "running" dialog Android shows
// while a code is in flight.
var DefaultProgressPhrases = []string{"ussd code running", "running ussd code", "code ussd en cours", "ejecutando código ussd"}

type sessionResult struct {
	text string
	err  error
}

// Session is one request/response or menu-driven exchange.
type Session struct {
	ID   string
	Mode Mode

	options   []string
	freeform  bool
	callbacks Callbacks

	lastText      string
	sentSinceLast bool
	finished      bool
	done          chan sessionResult
}

// NewSession creates a session; options are consumed in order by a
// MultiSession.
func NewSession(mode Mode, options []string, cb Callbacks) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		options:   append([]string(nil), options...),
		callbacks: cb,
		done:      make(chan sessionResult, 1),
	}
}

// SessionController routes inbound messages to the open session and owns
// the cancel path. Every method must run on the scheduler goroutine.
type SessionController struct {
	win   Window
	loc   *Locators
	queue *PendingQueue
	orch  *Orchestrator

	// ProgressPhrases are ignored as session results.
	ProgressPhrases []string

	current *Session
}

// NewSessionController wires a controller to orch.
func NewSessionController(win Window, loc *Locators, queue *PendingQueue, orch *Orchestrator) *SessionController {
	c := &SessionController{
		win:             win,
		loc:             loc,
		queue:           queue,
		orch:            orch,
		ProgressPhrases: append([]string(nil), DefaultProgressPhrases...),
	}
	return c
}

// Current returns the open session or nil.
func (c *SessionController) Current() *Session { return c.current }

// Begin opens s, superseding any open session and unsent replies.
func (c *SessionController) Begin(s *Session) {
	if prev := c.current; prev != nil {
		logging.Info("session").Str("session", prev.ID).Msg("Session superseded")
		c.finish(prev, "", ErrSessionSuperseded)
	}
	c.queue.Clear()
	c.current = s
	logging.Info("session").Str("session", s.ID).Str("mode", s.Mode.String()).Int("options", len(s.options)).Msg("Session started")
}

// Abandon closes s without a result, for callers that stopped waiting.
func (c *SessionController) Abandon(s *Session, err error) {
	c.finish(s, "", err)
}

// Reply replaces the pending queue with batch and triggers the orchestrator.
func (c *SessionController) Reply(batch []string) {
	c.queue.Replace(batch)
	c.orch.Trigger()
}

// SendMessage injects a freeform reply. In a multi-step session it replaces
// the remaining predefined options.
func (c *SessionController) SendMessage(text string) {
	if s := c.current; s != nil && s.Mode == MultiSession {
		s.freeform = true
		s.options = nil
	}
	c.Reply([]string{text})
}

// MarkSent records that a reply reached the dialog, so the next message is
// accepted even if its text repeats.
func (c *SessionController) MarkSent(string) {
	if c.current != nil {
		c.current.sentSinceLast = true
	}
}

func (c *SessionController) isProgress(text string) bool {
	folded := foldLabel(text)
	for _, p := range c.ProgressPhrases {
		if strings.Contains(folded, foldLabel(p)) {
			return true
		}
	}
	return false
}

// HandleInbound advances the open session with in.
func (c *SessionController) HandleInbound(in Inbound) {
	s := c.current
	if s == nil || c.isProgress(in.Text) {
		return
	}
	if in.Text == s.lastText && !s.sentSinceLast {
		return
	}
	s.lastText = in.Text
	s.sentSinceLast = false

	if s.Mode == SingleSession {
		c.finish(s, in.Text, nil)
		return
	}

	final := !in.AwaitsReply || (!s.freeform && len(s.options) == 0)
	if final {
		if s.callbacks.OnOver != nil {
			s.callbacks.OnOver(in.Text)
		}
		c.finish(s, in.Text, nil)
		return
	}

	if s.callbacks.OnUpdate != nil {
		s.callbacks.OnUpdate(in.Text)
	}
	if !s.freeform && len(s.options) > 0 {
		next := s.options[0]
		s.options = s.options[1:]
		logging.Debug("session").Str("session", s.ID).Int("remaining", len(s.options)).Msg("Sending next menu option")
		c.Reply([]string{next})
	}
}

// Cancel clicks the dialog's cancel control. It returns false, changing
// nothing, when no such control is on screen.
func (c *SessionController) Cancel() bool {
	btn := c.loc.LocateCancelControl(c.win.Root())
	if btn == nil {
		logging.Info("session").Msg("Cancel control not found")
		return false
	}
	clicked := btn.Click()
	logging.Info("session").Bool("clicked", clicked).Msg("USSD cancel control clicked")

	c.queue.Clear()
	if s := c.current; s != nil {
		c.finish(s, "", ErrSessionCanceled)
	}
	return true
}

func (c *SessionController) finish(s *Session, text string, err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.callbacks = Callbacks{}
	s.options = nil
	s.done <- sessionResult{text: text, err: err}
	if c.current == s {
		c.current = nil
	}
	logging.Debug("session").Str("session", s.ID).AnErr("err", err).Msg("Session finished")
}
