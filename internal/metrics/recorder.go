// Package metrics defines the observability hooks for pipeline
// processors. Components take a Recorder by injection; the default
// NoopRecorder makes metrics strictly optional.
package metrics

import "time"

// ResultLabel enumerates processor result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultRetried ResultLabel = "retried"
	ResultParked  ResultLabel = "parked"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines the metrics operations processors emit. Implementations
// forward to Prometheus; all methods are safe on a nil concrete receiver.
type Recorder interface {
	ObserveProcessDuration(stage string, d time.Duration)
	IncProcessResult(stage string, result ResultLabel)
	ObserveLLMCall(schema string, d time.Duration, success bool)
	IncExtractionAttempt(schema string)
	IncKeyRotation(pool string)
	IncPostOutcome(outcome string) // success|duplicate|error
	SetJobsInFlight(n int)
}

// NoopRecorder is the default Recorder: every method does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveProcessDuration(string, time.Duration) {}
func (NoopRecorder) IncProcessResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveLLMCall(string, time.Duration, bool)   {}
func (NoopRecorder) IncExtractionAttempt(string)                  {}
func (NoopRecorder) IncKeyRotation(string)                        {}
func (NoopRecorder) IncPostOutcome(string)                        {}
func (NoopRecorder) SetJobsInFlight(int)                          {}
