package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	processDuration *prom.HistogramVec
	processResults  *prom.CounterVec
	llmDuration     *prom.HistogramVec
	attempts        *prom.CounterVec
	rotations       *prom.CounterVec
	postOutcomes    *prom.CounterVec
	jobsInFlight    prom.Gauge
}

// NewPrometheusRecorder constructs and registers the pipeline metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.processDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "billflow",
			Name:      "process_duration_seconds",
			Help:      "Duration of individual stage processor runs",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.processResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "billflow",
			Name:      "process_results_total",
			Help:      "Processor run counts by outcome",
		}, []string{"stage", "result"})
		pr.llmDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "billflow",
			Name:      "llm_call_duration_seconds",
			Help:      "Duration of individual LLM extraction calls",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"schema", "result"})
		pr.attempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "billflow",
			Name:      "extraction_attempts_total",
			Help:      "Extraction attempts by schema",
		}, []string{"schema"})
		pr.rotations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "billflow",
			Name:      "key_rotations_total",
			Help:      "API key rotations by pool",
		}, []string{"pool"})
		pr.postOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "billflow",
			Name:      "post_outcomes_total",
			Help:      "Accounting-API posting outcomes",
		}, []string{"outcome"})
		pr.jobsInFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: "billflow",
			Name:      "chunk_jobs_in_flight",
			Help:      "Chunk jobs currently in processing status",
		})
		reg.MustRegister(pr.processDuration, pr.processResults, pr.llmDuration,
			pr.attempts, pr.rotations, pr.postOutcomes, pr.jobsInFlight)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveProcessDuration(stage string, d time.Duration) {
	if p == nil || p.processDuration == nil {
		return
	}
	p.processDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncProcessResult(stage string, result ResultLabel) {
	if p == nil || p.processResults == nil {
		return
	}
	p.processResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveLLMCall(schema string, d time.Duration, success bool) {
	if p == nil || p.llmDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.llmDuration.WithLabelValues(schema, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncExtractionAttempt(schema string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(schema).Inc()
}

func (p *PrometheusRecorder) IncKeyRotation(pool string) {
	if p == nil || p.rotations == nil {
		return
	}
	p.rotations.WithLabelValues(pool).Inc()
}

func (p *PrometheusRecorder) IncPostOutcome(outcome string) {
	if p == nil || p.postOutcomes == nil {
		return
	}
	p.postOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetJobsInFlight(n int) {
	if p == nil || p.jobsInFlight == nil {
		return
	}
	p.jobsInFlight.Set(float64(n))
}
