// Package metrics exposes Prometheus instrumentation for the stream
// pipeline, fed by the event bus so the processing hot path never touches a
// metrics registry directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vidflow/vidflow/internal/events"
)

var (
	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidflow",
		Subsystem: "pipeline",
		Name:      "frames_processed_total",
		Help:      "Frames that completed the effect chain and sink fan-out",
	}, []string{"stream_id"})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidflow",
		Subsystem: "pipeline",
		Name:      "active_streams",
		Help:      "Number of currently registered streams",
	})

	sinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidflow",
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Sink write or spawn failures, isolated per sink",
	}, []string{"stream_id", "kind"})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidflow",
		Subsystem: "pipeline",
		Name:      "state_transitions_total",
		Help:      "Stream lifecycle state transitions",
	}, []string{"to"})
)

// Observe wires the metric sinks to the event bus. The returned function
// unsubscribes everything.
func Observe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StreamStartedEvent) {
			activeStreams.Inc()
		}),
		bus.Subscribe(func(e events.StreamRemovedEvent) {
			activeStreams.Dec()
			framesProcessed.DeleteLabelValues(e.StreamID)
		}),
		bus.Subscribe(func(e events.FrameProcessedEvent) {
			framesProcessed.WithLabelValues(e.StreamID).Inc()
		}),
		bus.Subscribe(func(e events.SinkErrorEvent) {
			sinkErrors.WithLabelValues(e.StreamID, e.SinkKind).Inc()
		}),
		bus.Subscribe(func(e events.StreamStateChangedEvent) {
			stateTransitions.WithLabelValues(e.To).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
