package speech

import "github.com/prometheus/client_golang/prometheus"

var (
	workersBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "omnid",
			Subsystem: "speech",
			Name:      "workers_busy",
			Help:      "Transcription workers currently running whisper-cli",
		},
		[]string{"model"},
	)

	transcriptionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnid",
			Subsystem: "speech",
			Name:      "transcription_duration_seconds",
			Help:      "Wall time of one whisper-cli run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model", "status"},
	)

	audioSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnid",
			Subsystem: "speech",
			Name:      "audio_seconds_total",
			Help:      "Seconds of audio transcribed",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(workersBusy, transcriptionDuration, audioSeconds)
}
