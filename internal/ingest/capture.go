package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidflow/vidflow/internal/media"
)

// FrameReader is an open capture handle delivering frames one at a time.
// ReadFrame returns io.EOF when no more frames are available.
type FrameReader interface {
	ReadFrame(ctx context.Context) (*media.Frame, error)
	Close() error
}

// CaptureBackend opens capture handles. Open failing means the URL is not
// readable and the stream must not be registered.
type CaptureBackend interface {
	Name() string
	Open(ctx context.Context, url string) (FrameReader, error)
}

// CaptureSource is the pull-variant source: it owns a capture handle and
// reads frames from it on demand.
type CaptureSource struct {
	backend CaptureBackend
	desc    Descriptor
	logger  *slog.Logger
	reader  FrameReader
}

// NewCaptureSource creates a pull-variant source over the given capture
// backend.
func NewCaptureSource(backend CaptureBackend, desc Descriptor, logger *slog.Logger) *CaptureSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureSource{
		backend: backend,
		desc:    desc,
		logger:  logger.With("component", "ingest", "backend", backend.Name()),
	}
}

func (s *CaptureSource) Kind() string { return s.desc.Kind }

// Open acquires the capture handle.
func (s *CaptureSource) Open(ctx context.Context) error {
	reader, err := s.backend.Open(ctx, s.desc.URL)
	if err != nil {
		return fmt.Errorf("opening capture for %s: %w", s.desc, err)
	}
	s.reader = reader
	return nil
}

// ReadFrame reads the next frame from the capture handle.
func (s *CaptureSource) ReadFrame(ctx context.Context) (*media.Frame, error) {
	return s.reader.ReadFrame(ctx)
}

// Close releases the capture handle.
func (s *CaptureSource) Close() error {
	if s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
