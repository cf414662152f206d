package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStateChanged
	TypeStreamRemoved
	TypeFrameProcessed
	TypeSinkError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent fires when a stream's processing loop begins reading
// frames.
type StreamStartedEvent struct {
	StreamID  string    `json:"stream_id"`
	InputKind string    `json:"input_kind"`
	Outputs   []string  `json:"outputs"`
	Timestamp time.Time `json:"timestamp"`
}

func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStateChangedEvent fires on every lifecycle transition.
type StreamStateChangedEvent struct {
	StreamID  string    `json:"stream_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamRemovedEvent fires after a stream's sinks are torn down and its
// registry entry erased.
type StreamRemovedEvent struct {
	StreamID   string    `json:"stream_id"`
	FrameCount int64     `json:"frame_count"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e StreamRemovedEvent) Type() uint32 { return TypeStreamRemoved }

// FrameProcessedEvent fires once per frame that completed the effect chain
// and fan-out.
type FrameProcessedEvent struct {
	StreamID string `json:"stream_id"`
}

func (e FrameProcessedEvent) Type() uint32 { return TypeFrameProcessed }

// SinkErrorEvent fires when a sink write or spawn fails. The failure is
// already isolated; this event exists for observability.
type SinkErrorEvent struct {
	StreamID  string    `json:"stream_id"`
	SinkKind  string    `json:"sink_kind"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e SinkErrorEvent) Type() uint32 { return TypeSinkError }
