package ussd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(t *testing.T, s *Session) sessionResult {
	t.Helper()
	select {
	case r := <-s.done:
		return r
	default:
		require.FailNow(t, "session has not completed")
		return sessionResult{}
	}
}

func assertOpen(t *testing.T, s *Session) {
	t.Helper()
	assert.Empty(t, s.done, "session completed early")
}

func TestSingleSessionCompletesOnce(t *testing.T) {
	h := newHarness(nil)
	s := NewSession(SingleSession, nil, Callbacks{})
	h.ctl.Begin(s)

	h.ctl.HandleInbound(Inbound{Text: "USSD code running..."})
	assertOpen(t, s)

	h.ctl.HandleInbound(Inbound{Text: "Your balance is 10"})
	h.ctl.HandleInbound(Inbound{Text: "Your balance is 10 again"})

	r := result(t, s)
	assert.NoError(t, r.err)
	assert.Equal(t, "Your balance is 10", r.text)
	assert.Empty(t, s.done)
	assert.Nil(t, h.ctl.Current())
	assert.NotEmpty(t, s.ID)
}

func TestMultiSessionConsumesOptions(t *testing.T) {
	h := newHarness(nil)
	var updates, over []string
	s := NewSession(MultiSession, []string{"1", "2"}, Callbacks{
		OnUpdate: func(m string) { updates = append(updates, m) },
		OnOver:   func(m string) { over = append(over, m) },
	})
	h.ctl.Begin(s)

	h.ctl.HandleInbound(Inbound{Text: "1. Balance 2. Bundles", AwaitsReply: true})
	assert.Equal(t, []string{"1"}, h.queue.Items())

	h.ctl.HandleInbound(Inbound{Text: "1. Daily 2. Weekly", AwaitsReply: true})
	assert.Equal(t, []string{"2"}, h.queue.Items())
	assertOpen(t, s)

	h.ctl.HandleInbound(Inbound{Text: "Weekly bundle activated", AwaitsReply: true})

	assert.Equal(t, []string{"1. Balance 2. Bundles", "1. Daily 2. Weekly"}, updates)
	assert.Equal(t, []string{"Weekly bundle activated"}, over)
	r := result(t, s)
	assert.NoError(t, r.err)
	assert.Equal(t, "Weekly bundle activated", r.text)
}

func TestMultiSessionEndsWhenNoInput(t *testing.T) {
	h := newHarness(nil)
	var over string
	s := NewSession(MultiSession, []string{"1", "2", "3"}, Callbacks{OnOver: func(m string) { over = m }})
	h.ctl.Begin(s)

	h.ctl.HandleInbound(Inbound{Text: "Service unavailable"})

	assert.Equal(t, "Service unavailable", over)
	assert.Equal(t, "Service unavailable", result(t, s).text)
	assert.Zero(t, h.queue.Len())
}

func TestMultiSessionIgnoresRepeatedText(t *testing.T) {
	h := newHarness(nil)
	var updates []string
	s := NewSession(MultiSession, []string{"1", "2"}, Callbacks{OnUpdate: func(m string) { updates = append(updates, m) }})
	h.ctl.Begin(s)

	menu := Inbound{Text: "Main menu", AwaitsReply: true}
	h.ctl.HandleInbound(menu)
	h.ctl.HandleInbound(menu)
	assert.Len(t, updates, 1)
	assert.Equal(t, []string{"1"}, h.queue.Items())

	// After a reply reaches the dialog the same text is a new round.
	h.ctl.MarkSent("1")
	h.ctl.HandleInbound(menu)
	assert.Len(t, updates, 2)
	assert.Equal(t, []string{"2"}, h.queue.Items())
}

func TestSendMessageSwitchesToFreeform(t *testing.T) {
	h := newHarness(nil)
	var updates []string
	s := NewSession(MultiSession, []string{"1", "2"}, Callbacks{OnUpdate: func(m string) { updates = append(updates, m) }})
	h.ctl.Begin(s)

	h.ctl.SendMessage("0771234567")
	assert.Equal(t, []string{"0771234567"}, h.queue.Items())

	h.ctl.HandleInbound(Inbound{Text: "Enter amount", AwaitsReply: true})
	assert.Equal(t, []string{"Enter amount"}, updates)
	assert.Equal(t, []string{"0771234567"}, h.queue.Items(), "no predefined option queued")
	assertOpen(t, s)

	h.ctl.HandleInbound(Inbound{Text: "Transfer complete"})
	assert.Equal(t, "Transfer complete", result(t, s).text)
}

func TestCancelWithoutControlChangesNothing(t *testing.T) {
	h := newHarness(layout(textView("Menu"), editText(), button("Send")))
	s := NewSession(MultiSession, []string{"1"}, Callbacks{})
	h.ctl.Begin(s)
	h.queue.Replace([]string{"9"})

	assert.False(t, h.ctl.Cancel())
	assert.Same(t, s, h.ctl.Current())
	assert.Equal(t, []string{"9"}, h.queue.Items())
	assertOpen(t, s)
}

func TestCancelClicksControlAndEndsSession(t *testing.T) {
	neg := &fakeNode{class: ClassButton, text: "Cancel", id: CancelButtonID, clickable: true}
	h := newHarness(layout(textView("Menu"), editText(), neg, button("Send")))

	overCalled := false
	s := NewSession(MultiSession, []string{"1"}, Callbacks{OnOver: func(string) { overCalled = true }})
	h.ctl.Begin(s)
	h.queue.Replace([]string{"1"})

	assert.True(t, h.ctl.Cancel())
	assert.Equal(t, 1, neg.clicks)
	assert.Zero(t, h.queue.Len())
	assert.Nil(t, h.ctl.Current())
	assert.ErrorIs(t, result(t, s).err, ErrSessionCanceled)

	h.ctl.HandleInbound(Inbound{Text: "late message"})
	assert.False(t, overCalled, "callbacks released on cancel")
}

func TestNewSessionSupersedesOpenOne(t *testing.T) {
	h := newHarness(nil)
	first := NewSession(SingleSession, nil, Callbacks{})
	second := NewSession(SingleSession, nil, Callbacks{})

	h.ctl.Begin(first)
	h.queue.Replace([]string{"stale"})
	h.ctl.Begin(second)

	assert.ErrorIs(t, result(t, first).err, ErrSessionSuperseded)
	assert.Same(t, second, h.ctl.Current())
	assert.Zero(t, h.queue.Len())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMultiSessionDrivesDialog(t *testing.T) {
	edit := editText()
	h := newHarness(layout(textView("1. Balance 2. Data"), edit, button("Send")))
	h.disp.AddListener(h.ctl.HandleInbound)

	s := NewSession(MultiSession, []string{"2"}, Callbacks{})
	h.ctl.Begin(s)

	h.disp.Handle(stateChanged())
	h.sched.Advance(testTiming.EventSettleDelay + testTiming.SettleDelay)
	assert.Equal(t, []string{"2"}, edit.texts)

	h.win.root = layout(textView("Data: 2GB left"), button("OK"))
	h.disp.Handle(stateChanged())
	h.sched.Advance(time.Minute)

	r := result(t, s)
	assert.NoError(t, r.err)
	assert.Equal(t, "Data: 2GB left", r.text)
}
