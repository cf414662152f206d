package sink

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync/atomic"

	"github.com/vidflow/vidflow/internal/media"
)

// jpegQuality is the fixed encode quality for low-latency payloads.
const jpegQuality = 80

// Transport receives encoded low-latency payloads. The network side (WebRTC
// data channel, websocket, whatever carries the frame) lives behind this
// hook.
type Transport interface {
	SendFrame(ctx context.Context, streamID string, payload []byte) error
}

// LowLatency JPEG-encodes each frame and pushes the bytes to a transport. It
// holds no persistent process, so Close only has to flush nothing.
type LowLatency struct {
	streamID  string
	transport Transport
	logger    *slog.Logger

	bytesSent atomic.Int64
}

// NewLowLatency creates the low-latency sink for a stream.
func NewLowLatency(streamID string, transport Transport, logger *slog.Logger) *LowLatency {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowLatency{
		streamID:  streamID,
		transport: transport,
		logger:    logger.With("component", "sink", "kind", KindLowLatency, "stream_id", streamID),
	}
}

func (s *LowLatency) Kind() Kind { return KindLowLatency }

// WriteFrame encodes the frame as JPEG and hands it to the transport.
func (s *LowLatency) WriteFrame(ctx context.Context, frame *media.Frame) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frameImage(frame), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	if err := s.transport.SendFrame(ctx, s.streamID, buf.Bytes()); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	s.bytesSent.Add(int64(buf.Len()))
	return nil
}

func (s *LowLatency) Close(_ context.Context) error { return nil }

func (s *LowLatency) Stats() Stats {
	return Stats{Kind: KindLowLatency, BytesWritten: s.bytesSent.Load()}
}

// frameImage wraps a BGR frame as an image.Image for the stdlib encoder.
func frameImage(frame *media.Frame) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			b, g, r := frame.At(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = 0xff
		}
	}
	return img
}
