package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vidflow/vidflow/internal/media"
)

// Sample is one decoded buffer pushed out of a decode pipeline, dimensions
// taken from the pipeline's negotiated format, pixel data 3-channel
// interleaved BGR.
type Sample struct {
	Width  int
	Height int
	Data   []byte
}

// DecodeBackend is a push-based decode pipeline: once started it delivers
// decoded samples through the push callback until stopped or the input ends,
// after which it calls eos.
type DecodeBackend interface {
	Name() string
	Start(ctx context.Context, url string, push func(Sample), eos func()) error
	Stop() error
}

// PipelineSource adapts a push-based decode backend to the Source interface.
// Decoded samples land in a single-slot buffer: if the consumer has not taken
// the previous frame yet, it is dropped in favor of the newer one. This
// bounds both memory and latency when the consumer cannot keep up.
type PipelineSource struct {
	backend DecodeBackend
	desc    Descriptor
	logger  *slog.Logger

	mu   sync.Mutex
	slot *media.Frame

	notify chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewPipelineSource creates a push-variant source over the given decode
// backend.
func NewPipelineSource(backend DecodeBackend, desc Descriptor, logger *slog.Logger) *PipelineSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineSource{
		backend: backend,
		desc:    desc,
		logger:  logger.With("component", "ingest", "backend", backend.Name()),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *PipelineSource) Kind() string { return s.desc.Kind }

// Open starts the decode pipeline. Samples begin arriving via the push
// callback as soon as the backend produces them.
func (s *PipelineSource) Open(ctx context.Context) error {
	return s.backend.Start(ctx, s.desc.URL, s.push, s.endOfStream)
}

// push converts a decoded sample into a frame and stores it in the slot.
// A sample that cannot be converted is dropped, not fatal.
func (s *PipelineSource) push(sample Sample) {
	frame, err := media.FrameFromBytes(sample.Width, sample.Height, sample.Data)
	if err != nil {
		s.logger.Warn("dropping unconvertible sample",
			"url", s.desc.URL,
			"width", sample.Width,
			"height", sample.Height,
			"error", err)
		return
	}

	s.mu.Lock()
	if s.slot != nil {
		s.dropped.Add(1)
	}
	s.slot = frame
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *PipelineSource) endOfStream() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// ReadFrame takes the buffered frame, waiting for one to arrive. Returns
// io.EOF once the pipeline has ended and the slot is empty.
func (s *PipelineSource) ReadFrame(ctx context.Context) (*media.Frame, error) {
	for {
		s.mu.Lock()
		frame := s.slot
		s.slot = nil
		s.mu.Unlock()

		if frame != nil {
			return frame, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			// A sample may have raced in just before the end.
			s.mu.Lock()
			frame = s.slot
			s.slot = nil
			s.mu.Unlock()
			if frame != nil {
				return frame, nil
			}
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped reports how many frames were discarded under the drop-oldest
// policy.
func (s *PipelineSource) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the decode backend and unblocks any pending ReadFrame.
func (s *PipelineSource) Close() error {
	err := s.backend.Stop()
	s.endOfStream()
	return err
}
