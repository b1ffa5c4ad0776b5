package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	modelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "models",
			Name:      "loads_total",
			Help:      "Model instances loaded",
		},
		[]string{"model"},
	)

	modelEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "models",
			Name:      "evictions_total",
			Help:      "Idle model instances evicted to make room",
		},
	)

	modelsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "omnid",
			Subsystem: "models",
			Name:      "loaded",
			Help:      "Model instances currently held",
		},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "omnid",
			Subsystem: "models",
			Name:      "load_duration_seconds",
			Help:      "Time to load a model instance",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "omnid",
			Subsystem: "models",
			Name:      "admission_wait_seconds",
			Help:      "Time queued before the generation slot was granted",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(modelLoads, modelEvictions, modelsLoaded, loadDuration, admissionWait)
}

func (m *Manager) updateLoadedGauge() {
	m.mu.RLock()
	n := len(m.instances)
	m.mu.RUnlock()
	modelsLoaded.Set(float64(n))
}
