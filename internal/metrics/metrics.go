// Package metrics exposes agent run telemetry as Prometheus collectors on a
// private registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/agent"
)

const namespace = "novact"

// Recorder implements agent.Recorder.
type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	oracle      *prometheus.HistogramVec
}

var _ agent.Recorder = (*Recorder)(nil)

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished agent runs by terminal outcome and error kind.",
		}, []string{"outcome", "error_kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of agent runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed steps by action kind and outcome status.",
		}, []string{"action", "status"}),
		oracle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_request_duration_seconds",
			Help:      "Latency of action oracle calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.runs, r.runDuration, r.steps, r.oracle)
	return r
}

// Registry returns the registry holding the agent collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) RunFinished(outcome schemas.RunOutcome, kind agent.ErrorKind, elapsed time.Duration) {
	r.runs.WithLabelValues(string(outcome), string(kind)).Inc()
	r.runDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (r *Recorder) StepFinished(action schemas.ActionKind, status schemas.OutcomeStatus) {
	r.steps.WithLabelValues(string(action), string(status)).Inc()
}

func (r *Recorder) OracleCall(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(agent.KindOf(err))
	}
	r.oracle.WithLabelValues(result).Observe(elapsed.Seconds())
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
