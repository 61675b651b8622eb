// Package metrics records call-lifecycle events (call placed, answered,
// bridged, timed out, ended) for offline inspection. Volume is a
// handful of events per call, so observers favor simplicity over
// throughput.
package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// CallEvent builds a per-call metrics event tagged with the call control
// id and trace id so one call's timeline can be filtered out of the log.
func CallEvent(name, callControlID, traceID string, value float64) MetricsEvent {
	return MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags: map[string]string{
			"call_control_id": callControlID,
			"trace_id":        traceID,
		},
	}
}
