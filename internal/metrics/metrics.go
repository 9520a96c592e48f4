package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// Results used as label values
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultExpired  = "expired"
	ResultError    = "error"
)

// Counters of credential lifecycle events
// All methods are safe to call on nil *Metrics, so services may run without metrics
type Metrics struct {
	sessionsIssued prometheus.Counter
	rotations      *prometheus.CounterVec
	logins         *prometheus.CounterVec
	resetRequests  prometheus.Counter
	resetConsumed  *prometheus.CounterVec
	revocations    prometheus.Counter
	sweptRecords   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Sessions created by login, registration or rotation.",
		}),
		rotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rotations_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_checks_total",
			Help:      "Email and password checks by result.",
		}, []string{"result"}),
		resetRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_requests_total",
			Help:      "Password reset requests, known and unknown emails alike.",
		}),
		resetConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_consumed_total",
			Help:      "Password reset token consumption attempts by result.",
		}, []string{"result"}),
		revocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_revocations_total",
			Help:      "Sessions deleted by logout everywhere.",
		}),
		sweptRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_records_total",
			Help:      "Dead sessions and reset tokens removed by sweeper.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) Rotation(result string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(result).Inc()
}

func (m *Metrics) CredentialCheck(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ResetRequested() {
	if m == nil {
		return
	}
	m.resetRequests.Inc()
}

func (m *Metrics) ResetConsumed(result string) {
	if m == nil {
		return
	}
	m.resetConsumed.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionsRevoked(n int64) {
	if m == nil {
		return
	}
	m.revocations.Add(float64(n))
}

func (m *Metrics) Swept(kind string, n int64) {
	if m == nil {
		return
	}
	m.sweptRecords.WithLabelValues(kind).Add(float64(n))
}
