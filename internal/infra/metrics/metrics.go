// Package metrics records migration runs in a private Prometheus registry
// and writes them out in the text exposition format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

const namespace = "storemigrate"

type Recorder struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	steps    prometheus.Counter
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Structural transactions run, by mode and outcome",
		}, []string{"mode", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of structural transactions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Migration steps completed",
		}),
	}
	reg.MustRegister(r.runs, r.duration, r.steps)
	return r
}

func (r *Recorder) ObserveRun(mode domain.RunMode, status string, elapsed time.Duration, steps int) {
	r.runs.WithLabelValues(string(mode), status).Inc()
	r.duration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	if steps > 0 {
		r.steps.Add(float64(steps))
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric to path atomically, in the format read
// by the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics file path required")
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
