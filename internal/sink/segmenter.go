package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vidflow/vidflow/internal/ffmpeg"
	"github.com/vidflow/vidflow/internal/media"
	"github.com/vidflow/vidflow/pkg/bytesize"
)

// SegmenterConfig carries the encoder parameters shared by both segmented
// kinds.
type SegmenterConfig struct {
	FFmpegPath     string
	OutputRoot     string
	Bitrate        int
	SegmentSeconds int
	FPS            int
	StopGrace      time.Duration
}

// Segmenter owns one persistent encoding process for one (stream, kind)
// pair. The process is spawned lazily on the first frame, because frame
// geometry is only known then, and reused for the stream's lifetime.
type Segmenter struct {
	kind       Kind
	streamID   string
	instanceID string
	cfg        SegmenterConfig
	logger     *slog.Logger

	// mu serializes writes into the encoder's stdin and guards spawn.
	mu     sync.Mutex
	cmd    *ffmpeg.Command
	stdin  *ffmpeg.CountingWriter
	broken bool
}

// NewSegmenter creates a segmented sink of the given kind for a stream.
func NewSegmenter(kind Kind, streamID string, cfg SegmenterConfig, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	id := ulid.Make().String()
	return &Segmenter{
		kind:       kind,
		streamID:   streamID,
		instanceID: id,
		cfg:        cfg,
		logger: logger.With("component", "sink", "kind", kind,
			"stream_id", streamID, "instance_id", id),
	}
}

func (s *Segmenter) Kind() Kind { return s.kind }

// OutputDir is the per-stream directory this sink writes segments into.
func (s *Segmenter) OutputDir() string {
	return filepath.Join(s.cfg.OutputRoot, s.streamID, string(s.kind))
}

// manifestPath is the playlist or manifest the encoder maintains.
func (s *Segmenter) manifestPath() string {
	switch s.kind {
	case KindHLS:
		return filepath.Join(s.OutputDir(), "playlist.m3u8")
	default:
		return filepath.Join(s.OutputDir(), "manifest.mpd")
	}
}

// WriteFrame feeds one raw frame to the encoder, spawning it on first use.
func (s *Segmenter) WriteFrame(ctx context.Context, frame *media.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return fmt.Errorf("%s sink for stream %s is not accepting frames after a write failure", s.kind, s.streamID)
	}

	if s.cmd == nil {
		if err := s.spawn(ctx, frame.Width, frame.Height); err != nil {
			return fmt.Errorf("spawning %s encoder: %w", s.kind, err)
		}
	}

	if _, err := s.stdin.Write(frame.Pix); err != nil {
		s.broken = true
		s.logger.Error("encoder write failed",
			"error", err,
			"stderr", s.cmd.GetStderrLines())
		return fmt.Errorf("writing frame to %s encoder: %w", s.kind, err)
	}
	return nil
}

// spawn creates the output directory and starts the encoder. Callers hold
// s.mu.
func (s *Segmenter) spawn(ctx context.Context, width, height int) error {
	if err := os.MkdirAll(s.OutputDir(), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	fps := s.cfg.FPS
	if fps <= 0 {
		fps = 30
	}

	builder := ffmpeg.NewCommandBuilder(s.cfg.FFmpegPath).
		HideBanner().
		Overwrite().
		RawVideoInput(width, height, fps).
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(23)
	if s.cfg.Bitrate > 0 {
		builder.VideoBitrate(s.cfg.Bitrate)
	}
	switch s.kind {
	case KindHLS:
		builder.HLSArgs(s.cfg.SegmentSeconds)
	case KindDASH:
		builder.DASHArgs(s.cfg.SegmentSeconds)
	}
	cmd := builder.Output(s.manifestPath()).Build()

	stdin, err := cmd.StartWriter(ctx)
	if err != nil {
		return err
	}

	s.cmd = cmd
	s.stdin = ffmpeg.NewCountingWriter(stdin)
	s.logger.Info("encoder started",
		"pid", cmd.Pid(),
		"geometry", fmt.Sprintf("%dx%d", width, height),
		"segment_seconds", s.cfg.SegmentSeconds)
	return nil
}

// Close shuts the encoder down, letting it finalize open segments before the
// grace period expires and killing it after.
func (s *Segmenter) Close(_ context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	grace := s.cfg.StopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if err := cmd.Stop(grace); err != nil {
		s.logger.Warn("encoder did not exit cleanly", "error", err)
		return err
	}
	s.logger.Info("encoder stopped",
		"ran_for", cmd.Duration().Round(time.Millisecond),
		"fed", bytesize.Format(stdin.BytesWritten()))
	return nil
}

// Stats reports bytes fed to the encoder, its resource usage, and for HLS the
// number of published segments.
func (s *Segmenter) Stats() Stats {
	stats := Stats{Kind: s.kind}

	s.mu.Lock()
	cmd := s.cmd
	if s.stdin != nil {
		stats.BytesWritten = s.stdin.BytesWritten()
	}
	s.mu.Unlock()

	if cmd != nil {
		if mon := cmd.Monitor(); mon != nil {
			ps := mon.Stats()
			stats.CPUPercent = ps.CPUPercent
			stats.MemoryRSS = ps.MemoryRSS
		}
	}
	if s.kind == KindHLS {
		if n, err := countPlaylistSegments(s.manifestPath()); err == nil {
			stats.Segments = n
		}
	}
	return stats
}
