package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var pipelineStageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ragd",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of retrieval pipeline stages in seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"stage"},
)

func init() {
	prometheus.MustRegister(pipelineStageDuration)
}

func observeStage(stage string, start time.Time) {
	pipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
