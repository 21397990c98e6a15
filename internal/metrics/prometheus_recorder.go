package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pkgbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stepDuration  *prom.HistogramVec
	stepResults   *prom.CounterVec
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	inProgress    prom.Gauge
	remotePolls   *prom.CounterVec
	httpRetries   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the collectors on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual toolchain steps",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
		stepResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}, []string{"strategy"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"strategy", "outcome"}),
		inProgress: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "build_in_progress",
			Help:      "1 while a build is running",
		}),
		remotePolls: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "remote_polls_total",
			Help:      "CI API polls by phase",
		}, []string{"phase"}),
		httpRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "HTTP request retries by reason",
		}, []string{"reason"}),
	}
	reg.MustRegister(pr.stepDuration, pr.stepResults, pr.buildDuration, pr.buildOutcome,
		pr.inProgress, pr.remotePolls, pr.httpRetries)
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(strategy string, d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(strategy string, outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(strategy, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetBuildInProgress(active bool) {
	if p == nil {
		return
	}
	if active {
		p.inProgress.Set(1)
		return
	}
	p.inProgress.Set(0)
}

func (p *PrometheusRecorder) IncRemotePoll(phase string) {
	if p == nil {
		return
	}
	p.remotePolls.WithLabelValues(phase).Inc()
}

func (p *PrometheusRecorder) IncHTTPRetry(reason string) {
	if p == nil {
		return
	}
	p.httpRetries.WithLabelValues(reason).Inc()
}
