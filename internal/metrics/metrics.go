package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultPermission  = "permission_denied"
	ResultUnavailable = "unavailable"
	ResultNotFound    = "not_found"
	ResultError       = "error"
)

// Metrics exposes application-level instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	storeOps      *prometheus.CounterVec
	subscriptions prometheus.Gauge
	sessions      prometheus.Gauge
	reconnects    prometheus.Counter
}

var Module = fx.Module("metrics",
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
	fx.Provide(New),
)

func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "productdesk_store_operations_total",
			Help: "Store adapter calls by operation and result.",
		}, []string{"op", "result"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "productdesk_subscriptions_active",
			Help: "Live product subscriptions currently open.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "productdesk_ui_sessions_active",
			Help: "Form controller sessions currently open.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "productdesk_reconnect_attempts_total",
			Help: "Subscription reconnect attempts made by form controllers.",
		}),
	}

	var err error
	if m.storeOps, err = register(registerer, m.storeOps); err != nil {
		return nil, err
	}
	if m.subscriptions, err = register(registerer, m.subscriptions); err != nil {
		return nil, err
	}
	if m.sessions, err = register(registerer, m.sessions); err != nil {
		return nil, err
	}
	if m.reconnects, err = register(registerer, m.reconnects); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordStoreOp(op, result string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(strings.TrimSpace(op), strings.TrimSpace(result)).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// register returns the already registered collector when one with the same
// descriptor exists.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
