package module

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ImageReads     *prometheus.CounterVec
	ImageCacheHits prometheus.Counter
	Loads          *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ImageReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "module_image_reads_total",
			Help: "Total number of module image reads from disk",
		}, []string{"result"}),
		ImageCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "module_image_cache_hits_total",
			Help: "Total number of module images served from the in-memory cache",
		}),
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "module_loads_total",
			Help: "Total number of attempts to map a module image into the process",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ImageReads,
			m.ImageCacheHits,
			m.Loads,
		)
	}

	return m
}
