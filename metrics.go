package rendercache

import (
	"github.com/prometheus/client_golang/prometheus"

	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
)

// Metrics counts engine outcomes. A nil *Metrics is a no-op, so embedded
// deployments can skip metrics entirely.
type Metrics struct {
	cacheStatus *prometheus.CounterVec
	renders     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "render_cache",
			Name:      "cache_status_total",
			Help:      "Cache lookup outcomes for statically generated pages.",
		}, []string{"status"}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "render_cache",
			Name:      "renders_total",
			Help:      "Renderer invocations.",
		}),
	}
	reg.MustRegister(m.cacheStatus, m.renders)
	return m
}

func (m *Metrics) ObserveCacheStatus(status cachestatus.Status) {
	if m == nil {
		return
	}
	m.cacheStatus.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveRender() {
	if m == nil {
		return
	}
	m.renders.Inc()
}
