package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ocpp-rpc/message"
)

// Metrics counts session events as prometheus series under the "ocpp" namespace.
type Metrics struct {
	unexpected  *prometheus.CounterVec
	decodeFails *prometheus.CounterVec
	faults      *prometheus.CounterVec
	calls       *prometheus.CounterVec
	callTime    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		unexpected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocpp",
			Subsystem: "session",
			Name:      "unexpected_responses_total",
			Help:      "Responses that matched no pending call.",
		}, []string{"type"}),
		decodeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocpp",
			Subsystem: "session",
			Name:      "decode_failures_total",
			Help:      "Inbound frames that could not be decoded.",
		}, []string{"code"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocpp",
			Subsystem: "router",
			Name:      "handler_faults_total",
			Help:      "Inbound calls answered with InternalError.",
		}, []string{"action"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocpp",
			Subsystem: "session",
			Name:      "calls_total",
			Help:      "Outbound calls by action and outcome code.",
		}, []string{"action", "code"}),
		callTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ocpp",
			Subsystem: "session",
			Name:      "call_duration_seconds",
			Help:      "Outbound call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocpp",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"to"}),
	}
	for _, c := range []prometheus.Collector{m.unexpected, m.decodeFails, m.faults, m.calls, m.callTime, m.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) UnexpectedResponse(_ string, typ message.Type) {
	m.unexpected.WithLabelValues(typ.String()).Inc()
}

func (m *Metrics) DecodeFailure(err error) {
	m.decodeFails.WithLabelValues(codeOf(err)).Inc()
}

func (m *Metrics) HandlerFault(action string, _ error) {
	m.faults.WithLabelValues(action).Inc()
}

func (m *Metrics) CallFinished(action string, took time.Duration, err error) {
	code := "OK"
	if err != nil {
		code = codeOf(err)
	}
	m.calls.WithLabelValues(action, code).Inc()
	m.callTime.WithLabelValues(action).Observe(took.Seconds())
}

func (m *Metrics) StateChanged(_, to string) {
	m.transitions.WithLabelValues(to).Inc()
}

// codeOf labels err by its error code. Codes a peer invents are folded into "Other".
func codeOf(err error) string {
	var pe *message.Error
	if errors.As(err, &pe) && pe.Code.Known() {
		return string(pe.Code)
	}
	return "Other"
}
