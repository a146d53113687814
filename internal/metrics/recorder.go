// Package metrics exposes the capture loop's counters and gauges.
package metrics

import "time"

// ResultLabel is the outcome of one capture or transfer.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder receives observations from the cadence controller. The
// controller works with NoopRecorder when metrics are not configured.
type Recorder interface {
	IncCapture(result ResultLabel)
	ObserveReplication(d time.Duration, result ResultLabel)
	SetDay(day, totalDays int)
	SetSequence(seq int)
	SetState(state string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncCapture(ResultLabel)                        {}
func (NoopRecorder) ObserveReplication(time.Duration, ResultLabel) {}
func (NoopRecorder) SetDay(int, int)                               {}
func (NoopRecorder) SetSequence(int)                               {}
func (NoopRecorder) SetState(string)                               {}
