package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vidflow/vidflow/internal/ffmpeg"
	"github.com/vidflow/vidflow/internal/media"
)

const defaultStopGrace = 5 * time.Second

// Geometry is the frame format a decode process is asked to produce. Inputs
// are scaled to this size so downstream stages see a stable shape.
type Geometry struct {
	Width  int
	Height int
	FPS    int
}

func (g Geometry) frameSize() int {
	return g.Width * g.Height * media.Channels
}

// FFmpegCaptureBackend opens URLs by spawning an FFmpeg decode process that
// emits raw bgr24 frames on stdout.
type FFmpegCaptureBackend struct {
	Binary    string
	Geometry  Geometry
	StopGrace time.Duration
}

func (b *FFmpegCaptureBackend) Name() string { return "ffmpeg" }

func (b *FFmpegCaptureBackend) Open(ctx context.Context, url string) (FrameReader, error) {
	cmd := ffmpeg.NewCommandBuilder(b.Binary).
		HideBanner().
		Input(url).
		OutputArgs("-s", fmt.Sprintf("%dx%d", b.Geometry.Width, b.Geometry.Height)).
		RawVideoOutput().
		Build()

	stdout, err := cmd.StartReader(ctx)
	if err != nil {
		return nil, err
	}

	grace := b.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	return &rawFrameReader{
		cmd:      cmd,
		r:        stdout,
		geometry: b.Geometry,
		grace:    grace,
	}, nil
}

// rawFrameReader slices an FFmpeg rawvideo byte stream into frames.
type rawFrameReader struct {
	cmd      *ffmpeg.Command
	r        io.ReadCloser
	geometry Geometry
	grace    time.Duration
}

func (r *rawFrameReader) ReadFrame(ctx context.Context) (*media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, r.geometry.frameSize())
	if _, err := io.ReadFull(r.r, buf); err != nil {
		// A truncated trailing frame ends the stream like a clean EOF.
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	return media.FrameFromBytes(r.geometry.Width, r.geometry.Height, buf)
}

func (r *rawFrameReader) Close() error {
	return r.cmd.Stop(r.grace)
}

// FFmpegDecodeBackend is the push-variant decode pipeline built on the same
// raw bgr24 process: a reader goroutine delivers each decoded frame through
// the push callback as soon as it is available.
type FFmpegDecodeBackend struct {
	Binary    string
	Geometry  Geometry
	StopGrace time.Duration

	mu     sync.Mutex
	reader FrameReader
}

func (b *FFmpegDecodeBackend) Name() string { return "ffmpeg-pipeline" }

func (b *FFmpegDecodeBackend) Start(ctx context.Context, url string, push func(Sample), eos func()) error {
	capture := &FFmpegCaptureBackend{
		Binary:    b.Binary,
		Geometry:  b.Geometry,
		StopGrace: b.StopGrace,
	}
	reader, err := capture.Open(ctx, url)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.reader = reader
	b.mu.Unlock()

	go func() {
		defer eos()
		for {
			frame, err := reader.ReadFrame(ctx)
			if err != nil {
				return
			}
			push(Sample{Width: frame.Width, Height: frame.Height, Data: frame.Pix})
		}
	}()
	return nil
}

func (b *FFmpegDecodeBackend) Stop() error {
	b.mu.Lock()
	reader := b.reader
	b.reader = nil
	b.mu.Unlock()

	if reader == nil {
		return nil
	}
	return reader.Close()
}
