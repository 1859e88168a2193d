package launcher

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/browserkit/pkg/progress"
)

var (
	metricLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browserkit",
		Name:      "launches_total",
		Help:      "Browser launches by family and outcome.",
	}, []string{"family", "result"})
	metricLaunchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browserkit",
		Name:      "launch_retries_total",
		Help:      "Launches restarted after hitting the glibc loader race.",
	}, []string{"family"})
	metricLaunchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "browserkit",
		Name:      "launch_duration_seconds",
		Help:      "Time from launch request to a connected session.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"family"})
	metricProcessesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browserkit",
		Name:      "processes_running",
		Help:      "Browser processes currently alive.",
	})
)

func recordLaunch(family string, started time.Time, err error) {
	result := "success"
	var timeout *progress.TimeoutError
	switch {
	case err == nil:
		metricLaunchDuration.WithLabelValues(family).Observe(time.Since(started).Seconds())
	case errors.As(err, &timeout):
		result = "timeout"
	default:
		result = "error"
	}
	metricLaunches.WithLabelValues(family, result).Inc()
}

func recordRetry(family string) {
	metricLaunchRetries.WithLabelValues(family).Inc()
}

// trackProcess counts the process as running until done closes.
func trackProcess(done <-chan struct{}) {
	metricProcessesRunning.Inc()
	go func() {
		<-done
		metricProcessesRunning.Dec()
	}()
}
