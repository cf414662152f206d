package sink

import (
	"fmt"
	"log/slog"
)

// Factory materializes sinks for a stream. The supervisor calls it once per
// (stream, kind) when the first frame arrives for that kind.
type Factory interface {
	New(streamID string, kind Kind) (Sink, error)
}

// DefaultFactory builds the production sinks: a transport-backed low-latency
// sink and ffmpeg-backed segmenters.
type DefaultFactory struct {
	Transport Transport
	HLS       SegmenterConfig
	DASH      SegmenterConfig
	Logger    *slog.Logger
}

func (f *DefaultFactory) New(streamID string, kind Kind) (Sink, error) {
	switch kind {
	case KindLowLatency:
		if f.Transport == nil {
			return nil, fmt.Errorf("no low-latency transport configured")
		}
		return NewLowLatency(streamID, f.Transport, f.Logger), nil
	case KindHLS:
		return NewSegmenter(KindHLS, streamID, f.HLS, f.Logger), nil
	case KindDASH:
		return NewSegmenter(KindDASH, streamID, f.DASH, f.Logger), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", kind)
	}
}
