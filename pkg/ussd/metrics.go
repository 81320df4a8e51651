package ussd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine activity. A nil *Metrics records nothing.
type Metrics struct {
	repliesSent      prometheus.Counter
	replyAborts      prometheus.Counter
	fallbacks        *prometheus.CounterVec
	messagesReceived prometheus.Counter
	dialogsDismissed prometheus.Counter
	state            prometheus.Gauge
}

// NewMetrics registers engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		repliesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "ussd_replies_sent_total",
			Help: "Replies injected and confirmed.",
		}),
		replyAborts: f.NewCounter(prometheus.CounterOpts{
			Name: "ussd_reply_aborts_total",
			Help: "Reply attempts abandoned after exhausting input-field retries.",
		}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ussd_fallbacks_total",
			Help: "Confirm fallbacks taken, by kind.",
		}, []string{"kind"}),
		messagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "ussd_messages_received_total",
			Help: "Dialog messages extracted and emitted upstream.",
		}),
		dialogsDismissed: f.NewCounter(prometheus.CounterOpts{
			Name: "ussd_dialogs_dismissed_total",
			Help: "Dialogs hidden with a global back action.",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Name: "ussd_orchestrator_state",
			Help: "Current reply orchestrator state.",
		}),
	}
}

func (m *Metrics) replySent() {
	if m != nil {
		m.repliesSent.Inc()
	}
}

func (m *Metrics) replyAborted() {
	if m != nil {
		m.replyAborts.Inc()
	}
}

func (m *Metrics) fallback(kind string) {
	if m != nil {
		m.fallbacks.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) messageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) dialogDismissed() {
	if m != nil {
		m.dialogsDismissed.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
