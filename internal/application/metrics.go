package application

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "tgkz"

// Metrics holds the client's Prometheus collectors. A nil *Metrics records
// nothing, so components can take one unconditionally.
type Metrics struct {
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	dedupShared       prometheus.Counter
	transportRequests *prometheus.CounterVec
	socketReconnects  prometheus.Counter
	socketDropped     prometheus.Counter
	authRefresh       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_cache_hits_total",
			Help:      "Cached command results served without a transport call.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_cache_misses_total",
			Help:      "Cached command lookups that went to the transport.",
		}),
		dedupShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gateway_dedup_shared_total",
			Help:      "Callers that received a result shared with an identical in-flight command.",
		}),
		transportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transport_requests_total",
			Help:      "Transport calls by transport and outcome.",
		}, []string{"transport", "outcome"}),
		socketReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "socket_reconnects_total",
			Help:      "Socket reconnect attempts scheduled.",
		}),
		socketDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "socket_messages_dropped_total",
			Help:      "Inbound socket messages dropped as malformed.",
		}),
		authRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.cacheHits,
			m.cacheMisses,
			m.dedupShared,
			m.transportRequests,
			m.socketReconnects,
			m.socketDropped,
			m.authRefresh,
		)
	}
	return m
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) DedupShared() {
	if m != nil {
		m.dedupShared.Inc()
	}
}

func (m *Metrics) TransportRequest(transport string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.transportRequests.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) SocketReconnectScheduled() {
	if m != nil {
		m.socketReconnects.Inc()
	}
}

func (m *Metrics) SocketMessageDropped() {
	if m != nil {
		m.socketDropped.Inc()
	}
}

func (m *Metrics) RefreshOutcome(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.authRefresh.WithLabelValues(outcome).Inc()
}
