// Package sink delivers processed frames to the enabled output
// representations of a stream: a low-latency still-image push and persistent
// segmented encoders for HTTP streaming.
package sink

import (
	"context"
	"fmt"

	"github.com/vidflow/vidflow/internal/media"
)

// Kind names one output representation.
type Kind string

const (
	KindLowLatency Kind = "lowlatency"
	KindHLS        Kind = "hls"
	KindDASH       Kind = "dash"
)

// ParseKind validates an output format name from configuration or the API.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLowLatency, KindHLS, KindDASH:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Sink receives every processed frame of one stream for one output kind.
// WriteFrame errors are isolated by the caller: they never stop the stream or
// the other sinks.
type Sink interface {
	Kind() Kind

	// WriteFrame delivers one processed frame. Implementations may spawn
	// their backing process lazily on the first call.
	WriteFrame(ctx context.Context, frame *media.Frame) error

	// Close tears the sink down. Implementations with a backing process
	// escalate from graceful termination to kill, bounded by their grace
	// period.
	Close(ctx context.Context) error
}

// Stats is a point-in-time view of one sink, reported through stream stats.
type Stats struct {
	Kind         Kind    `json:"kind"`
	BytesWritten int64   `json:"bytes_written,omitempty"`
	Segments     int     `json:"segments,omitempty"`
	CPUPercent   float64 `json:"cpu_percent,omitempty"`
	MemoryRSS    uint64  `json:"memory_rss_bytes,omitempty"`
}

// StatsReporter is implemented by sinks that can report runtime stats.
type StatsReporter interface {
	Stats() Stats
}
