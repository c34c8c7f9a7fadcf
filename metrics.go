package ipernity

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	apiCalls  *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipernity",
			Name:      "api_calls_total",
			Help:      "API calls made to Ipernity, by method.",
		}, []string{"method"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipernity",
			Name:      "cache_hits_total",
			Help:      "API calls answered from the session cache, by method.",
		}, []string{"method"}),
	}
	reg.MustRegister(m.apiCalls, m.cacheHits)
	return m
}

func (m *metrics) apiCall(method string) {
	if m != nil {
		m.apiCalls.WithLabelValues(method).Inc()
	}
}

func (m *metrics) cacheHit(method string) {
	if m != nil {
		m.cacheHits.WithLabelValues(method).Inc()
	}
}
