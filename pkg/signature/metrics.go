package signature

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Resolutions  *prometheus.CounterVec
	ScannedBytes *prometheus.CounterVec
}

// defaultMetrics is used by signatures created without WithMetrics. It is
// never registered.
var defaultMetrics = NewMetrics(nil)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signature_resolutions_total",
			Help: "Total number of uncached signature resolutions by outcome",
		}, []string{"kind", "result"}),
		ScannedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signature_scanned_bytes_total",
			Help: "Total number of live module bytes scanned by dynamic signatures",
		}, []string{"module"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Resolutions,
			m.ScannedBytes,
		)
	}

	return m
}
