// Package supervisor owns the registry of active streams and the lifecycle
// rules around them: registration, draining removal, stats, and shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vidflow/vidflow/internal/effects"
	"github.com/vidflow/vidflow/internal/events"
	"github.com/vidflow/vidflow/internal/ingest"
	"github.com/vidflow/vidflow/internal/sink"
)

const defaultCloseGrace = 5 * time.Second

// Options configures a Supervisor. SourceFactory and SinkFactory carry the
// capability decisions made at startup; the supervisor never probes for
// capabilities itself.
type Options struct {
	MaxWorkers    int
	CloseGrace    time.Duration
	SourceFactory ingest.Factory
	SinkFactory   sink.Factory
	Chain         *effects.Chain
	Bus           *events.Bus
	Logger        *slog.Logger
}

// Supervisor is the root of the pipeline: one instance per process.
type Supervisor struct {
	opts    Options
	workers *semaphore.Weighted
	logger  *slog.Logger

	// mu guards the streams map only. It is never held across I/O, so
	// stats reads and removals of unrelated streams never block on a slow
	// source or sink.
	mu      sync.RWMutex
	streams map[string]*Stream

	shuttingDown atomic.Bool
}

// New creates a supervisor.
func New(opts Options) *Supervisor {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:    opts,
		workers: semaphore.NewWeighted(int64(opts.MaxWorkers)),
		logger:  logger.With("component", "supervisor"),
		streams: make(map[string]*Stream),
	}
}

// AddStream registers a new stream and starts its processing loop
// asynchronously. The call itself never blocks on I/O. A source that later
// fails to open ends the stream without it ever reaching the running state.
func (s *Supervisor) AddStream(id string, input ingest.Descriptor, outputs []sink.Kind) error {
	if s.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if id == "" {
		return fmt.Errorf("stream id must not be empty")
	}
	if len(outputs) == 0 {
		return fmt.Errorf("stream %s: at least one output is required", id)
	}

	st := newStream(id, input, outputs, s.opts.SourceFactory(input), s.opts.Chain,
		s.opts.SinkFactory, s.opts.Bus, s.logger, s.opts.CloseGrace)

	// Re-adding an existing id replaces it. The old stream is drained and its
	// sinks torn down before the replacement starts processing, so the two
	// never write into the same output directory at once.
	s.mu.Lock()
	prev := s.streams[id]
	s.streams[id] = st
	s.mu.Unlock()

	if prev != nil {
		prev.beginDrain()
		s.logger.Info("stream replaced", "stream_id", id)
	}

	s.logger.Info("stream registered", "stream_id", id,
		"input", input.String(), "outputs", outputs)

	go s.supervise(st, prev)
	return nil
}

// supervise runs one stream to completion on bounded worker capacity and
// erases it from the registry afterwards. When the stream replaces an earlier
// one under the same id, its predecessor's teardown completes first.
func (s *Supervisor) supervise(st, prev *Stream) {
	if prev != nil {
		<-prev.done
		s.finalize(prev)
	}

	// A removal that arrives while the stream is still queued for capacity
	// aborts the wait.
	acqCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-st.drain
		cancel()
	}()

	if err := s.workers.Acquire(acqCtx, 1); err != nil {
		st.transition(StateStopped)
		close(st.done)
		s.reap(st)
		return
	}
	defer s.workers.Release(1)

	openErr := make(chan error, 1)
	go st.run(openErr)

	if err := <-openErr; err != nil {
		<-st.done
		s.reap(st)
		return
	}

	<-st.done
	s.reap(st)
}

// reap erases a stream from the registry once its loop has finished. Both
// the supervise goroutine and RemoveStream converge here; only the caller
// that actually removes the entry publishes the removal event.
func (s *Supervisor) reap(st *Stream) {
	s.mu.Lock()
	current, ok := s.streams[st.ID]
	if ok && current == st {
		delete(s.streams, st.ID)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.finalize(st)
}

// finalize logs and publishes a stream's removal exactly once. Callers ensure
// the stream is already out of the registry (or was replaced in it).
func (s *Supervisor) finalize(st *Stream) {
	s.logger.Info("stream removed", "stream_id", st.ID, "frames", st.FrameCount())
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.StreamRemovedEvent{
			StreamID:   st.ID,
			FrameCount: st.FrameCount(),
			Timestamp:  time.Now(),
		})
	}
}

// RemoveStream drains a stream, waits for its in-flight frame and sink
// teardown to finish, and erases it. Removing an unknown id is a no-op.
func (s *Supervisor) RemoveStream(ctx context.Context, id string) error {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	st.beginDrain()
	select {
	case <-st.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.reap(st)
	return nil
}

// Stats is a point-in-time view of one stream.
type Stats struct {
	ID          string        `json:"id"`
	State       string        `json:"state"`
	Duration    time.Duration `json:"duration"`
	FrameCount  int64         `json:"frame_count"`
	FPS         float64       `json:"fps"`
	InputKind   string        `json:"input_kind"`
	OutputKinds []string      `json:"output_kinds"`
	Sinks       []sink.Stats  `json:"sinks,omitempty"`
}

// GetStats returns stats for one stream, or ErrStreamNotFound.
func (s *Supervisor) GetStats(id string) (Stats, error) {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	if !ok {
		return Stats{}, fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}
	return s.collect(st), nil
}

// List returns stats for every registered stream. The registry lock is held
// only while snapshotting the map; stats are collected outside it.
func (s *Supervisor) List() []Stats {
	s.mu.RLock()
	snapshot := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		snapshot = append(snapshot, st)
	}
	s.mu.RUnlock()

	stats := make([]Stats, 0, len(snapshot))
	for _, st := range snapshot {
		stats = append(stats, s.collect(st))
	}
	return stats
}

func (s *Supervisor) collect(st *Stream) Stats {
	duration := time.Since(st.startTime)
	frames := st.FrameCount()

	var fps float64
	if duration > 0 {
		fps = float64(frames) / duration.Seconds()
	}

	outputs := make([]string, len(st.Outputs))
	for i, k := range st.Outputs {
		outputs[i] = string(k)
	}
	return Stats{
		ID:          st.ID,
		State:       st.State().String(),
		Duration:    duration,
		FrameCount:  frames,
		FPS:         fps,
		InputKind:   st.Input.Kind,
		OutputKinds: outputs,
		Sinks:       st.sinkStats(),
	}
}

// Has reports whether a stream with the given id is registered.
func (s *Supervisor) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[id]
	return ok
}

// Count returns the number of registered streams.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// Shutdown removes every stream and waits for all worker capacity to drain.
// Safe to call more than once.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	s.mu.RLock()
	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			return s.RemoveStream(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("draining streams: %w", err)
	}

	if err := s.workers.Acquire(ctx, int64(s.opts.MaxWorkers)); err != nil {
		return fmt.Errorf("waiting for workers: %w", err)
	}
	s.workers.Release(int64(s.opts.MaxWorkers))

	s.logger.Info("supervisor shut down", "streams_drained", len(ids))
	return nil
}
