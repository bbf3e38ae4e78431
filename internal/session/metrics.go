package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	messages     *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	sequence     *prometheus.GaugeVec
	phase        *prometheus.GaugeVec
	resends      *prometheus.CounterVec
	disconnects  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_messages_total",
			Help: "Messages sent and received, by direction and MsgType.",
		}, []string{"session", "direction", "msg_type"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_decode_errors_total",
			Help: "Inbound messages that failed to decode.",
		}, []string{"session", "fatal"}),
		sequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixengine_next_sequence_number",
			Help: "Next outbound and expected inbound MsgSeqNum.",
		}, []string{"session", "direction"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fixengine_session_phase",
			Help: "Current lifecycle phase as its numeric value.",
		}, []string{"session"}),
		resends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_resend_requests_total",
			Help: "ResendRequests sent to the peer.",
		}, []string{"session"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fixengine_disconnects_total",
			Help: "Transport disconnects, by whether an error caused them.",
		}, []string{"session", "error"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.decodeErrors, m.sequence, m.phase, m.resends, m.disconnects)
	}
	return m
}

func (m *Metrics) message(session, direction, msgType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(session, direction, msgType).Inc()
	if direction == "out" && msgType == "2" {
		m.resends.WithLabelValues(session).Inc()
	}
}

func (m *Metrics) decodeError(session string, fatal bool) {
	if m == nil {
		return
	}
	v := "false"
	if fatal {
		v = "true"
	}
	m.decodeErrors.WithLabelValues(session, v).Inc()
}

func (m *Metrics) snapshot(session string, s Snapshot) {
	if m == nil {
		return
	}
	m.sequence.WithLabelValues(session, "out").Set(float64(s.NextOutbound))
	m.sequence.WithLabelValues(session, "in").Set(float64(s.NextInbound))
	m.phase.WithLabelValues(session).Set(float64(s.Phase))
}

func (m *Metrics) disconnect(session string, err error) {
	if m == nil {
		return
	}
	v := "false"
	if err != nil {
		v = "true"
	}
	m.disconnects.WithLabelValues(session, v).Inc()
}
