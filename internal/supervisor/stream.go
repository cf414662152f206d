package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vidflow/vidflow/internal/effects"
	"github.com/vidflow/vidflow/internal/events"
	"github.com/vidflow/vidflow/internal/ingest"
	"github.com/vidflow/vidflow/internal/media"
	"github.com/vidflow/vidflow/internal/sink"
)

// Stream binds one ingest source, the effect chain, and the stream's sinks.
// Its run loop is the only goroutine that touches the source and writes
// frames; removal happens by signalling the drain flag and waiting for the
// loop to finish its in-flight frame.
type Stream struct {
	ID      string
	Input   ingest.Descriptor
	Outputs []sink.Kind

	source  ingest.Source
	chain   *effects.Chain
	factory sink.Factory
	logger  *slog.Logger
	bus     *events.Bus

	state      atomic.Int32
	frameCount atomic.Int64
	startTime  time.Time

	// drain is closed to stop the loop; readCancel unblocks a pending
	// frame read. Sink writes intentionally do not share the read context
	// so an in-flight frame still reaches every sink before teardown.
	drain      chan struct{}
	drainOnce  sync.Once
	readCtx    context.Context
	readCancel context.CancelFunc

	// done is closed after the loop has exited and all sinks are closed.
	done chan struct{}

	sinksMu sync.Mutex
	sinks   map[sink.Kind]sink.Sink

	closeGrace time.Duration
}

func newStream(id string, input ingest.Descriptor, outputs []sink.Kind, source ingest.Source,
	chain *effects.Chain, factory sink.Factory, bus *events.Bus, logger *slog.Logger,
	closeGrace time.Duration) *Stream {

	readCtx, readCancel := context.WithCancel(context.Background())
	s := &Stream{
		ID:         id,
		Input:      input,
		Outputs:    outputs,
		source:     source,
		chain:      chain,
		factory:    factory,
		bus:        bus,
		logger:     logger.With("stream_id", id),
		startTime:  time.Now(),
		drain:      make(chan struct{}),
		readCtx:    readCtx,
		readCancel: readCancel,
		done:       make(chan struct{}),
		sinks:      make(map[sink.Kind]sink.Sink),
		closeGrace: closeGrace,
	}
	s.state.Store(int32(StateStarting))
	return s
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// FrameCount returns how many frames have completed processing.
func (s *Stream) FrameCount() int64 {
	return s.frameCount.Load()
}

func (s *Stream) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.announce(from, to)
}

// transitionFrom moves to the target state only if the stream is still in
// from. A drain that lands between open and the running transition keeps the
// state at draining.
func (s *Stream) transitionFrom(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.announce(from, to)
	return true
}

func (s *Stream) announce(from, to State) {
	s.logger.Debug("state transition", "from", from.String(), "to", to.String())
	if s.bus != nil {
		s.bus.Publish(events.StreamStateChangedEvent{
			StreamID:  s.ID,
			From:      from.String(),
			To:        to.String(),
			Timestamp: time.Now(),
		})
	}
}

// beginDrain signals the run loop to stop pulling frames. Safe to call more
// than once and concurrently with an in-flight frame.
func (s *Stream) beginDrain() {
	s.drainOnce.Do(func() {
		if s.State() != StateStopped {
			s.transition(StateDraining)
		}
		close(s.drain)
		s.readCancel()
	})
}

func (s *Stream) draining() bool {
	select {
	case <-s.drain:
		return true
	default:
		return false
	}
}

// run is the stream's processing loop. openErr reports a source that could
// not be opened; the supervisor uses it to abort the registration.
func (s *Stream) run(openErr chan<- error) {
	defer close(s.done)
	defer s.closeSinks()

	if err := s.source.Open(s.readCtx); err != nil {
		s.logger.Error("source open failed", "input", s.Input.String(), "error", err)
		openErr <- err
		s.transition(StateStopped)
		// The drain flag also ends the supervisor's capacity watcher;
		// nothing else closes it on this path.
		s.beginDrain()
		return
	}
	openErr <- nil
	s.transitionFrom(StateStarting, StateRunning)

	if s.bus != nil {
		outputs := make([]string, len(s.Outputs))
		for i, k := range s.Outputs {
			outputs[i] = string(k)
		}
		s.bus.Publish(events.StreamStartedEvent{
			StreamID:  s.ID,
			InputKind: s.Input.Kind,
			Outputs:   outputs,
			Timestamp: time.Now(),
		})
	}

	defer s.closeSource()

	for {
		// Drain check at the top of every iteration is the cooperative
		// cancellation point.
		if s.draining() {
			return
		}

		frame, err := s.source.ReadFrame(s.readCtx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("source exhausted", "frames", s.FrameCount())
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// Drain signalled mid-read.
			default:
				s.logger.Error("source read failed", "error", err)
			}
			s.beginDrain()
			return
		}

		s.processFrame(frame)
	}
}

// processFrame runs one frame through the chain and fans it out to every
// sink. Sink failures are logged and skipped, never fatal.
func (s *Stream) processFrame(frame *media.Frame) {
	processed := s.chain.Apply(frame)

	for _, kind := range s.Outputs {
		out, err := s.sinkFor(kind)
		if err != nil {
			s.sinkError(kind, err)
			continue
		}
		if err := out.WriteFrame(context.Background(), processed); err != nil {
			s.sinkError(kind, err)
		}
	}

	s.frameCount.Add(1)
	if s.bus != nil {
		s.bus.Publish(events.FrameProcessedEvent{StreamID: s.ID})
	}
}

// sinkFor lazily materializes the sink for a kind on first use.
func (s *Stream) sinkFor(kind sink.Kind) (sink.Sink, error) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()

	if out, ok := s.sinks[kind]; ok {
		return out, nil
	}
	out, err := s.factory.New(s.ID, kind)
	if err != nil {
		return nil, err
	}
	s.sinks[kind] = out
	return out, nil
}

func (s *Stream) sinkError(kind sink.Kind, err error) {
	s.logger.Warn("sink delivery failed", "kind", kind, "error", err)
	if s.bus != nil {
		s.bus.Publish(events.SinkErrorEvent{
			StreamID:  s.ID,
			SinkKind:  string(kind),
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
	}
}

// closeSinks tears down every materialized sink, bounded per sink by the
// close grace period, then marks the stream stopped.
func (s *Stream) closeSinks() {
	s.sinksMu.Lock()
	sinks := make([]sink.Sink, 0, len(s.sinks))
	for _, out := range s.sinks {
		sinks = append(sinks, out)
	}
	s.sinks = make(map[sink.Kind]sink.Sink)
	s.sinksMu.Unlock()

	for _, out := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.closeGrace)
		if err := out.Close(ctx); err != nil {
			s.logger.Warn("sink teardown failed", "kind", out.Kind(), "error", err)
		}
		cancel()
	}
	s.transition(StateStopped)
}

func (s *Stream) closeSource() {
	if err := s.source.Close(); err != nil {
		s.logger.Warn("source close failed", "error", err)
	}
}

// sinkStats snapshots stats from every materialized sink that reports them.
func (s *Stream) sinkStats() []sink.Stats {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()

	var stats []sink.Stats
	for _, out := range s.sinks {
		if reporter, ok := out.(sink.StatsReporter); ok {
			stats = append(stats, reporter.Stats())
		}
	}
	return stats
}
