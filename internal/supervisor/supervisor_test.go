package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidflow/vidflow/internal/effects"
	"github.com/vidflow/vidflow/internal/events"
	"github.com/vidflow/vidflow/internal/ingest"
	"github.com/vidflow/vidflow/internal/media"
	"github.com/vidflow/vidflow/internal/sink"
)

// chanSource feeds frames from a channel; closing the channel is source
// exhaustion.
type chanSource struct {
	frames  chan *media.Frame
	openErr error
	closed  atomic.Bool
}

func (s *chanSource) Open(_ context.Context) error { return s.openErr }

func (s *chanSource) ReadFrame(ctx context.Context) (*media.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *chanSource) Kind() string { return "test" }

// recordingSink counts writes and records close calls; writeErr makes every
// write fail.
type recordingSink struct {
	kind     sink.Kind
	writeErr error

	mu     sync.Mutex
	writes int
	closed bool
}

func (s *recordingSink) Kind() sink.Kind { return s.kind }

func (s *recordingSink) WriteFrame(_ context.Context, _ *media.Frame) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recordingFactory hands out pre-built sinks per kind and remembers them.
type recordingFactory struct {
	mu       sync.Mutex
	writeErr map[sink.Kind]error
	made     map[string][]*recordingSink
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{
		writeErr: make(map[sink.Kind]error),
		made:     make(map[string][]*recordingSink),
	}
}

func (f *recordingFactory) New(streamID string, kind sink.Kind) (sink.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &recordingSink{kind: kind, writeErr: f.writeErr[kind]}
	f.made[streamID] = append(f.made[streamID], s)
	return s, nil
}

func (f *recordingFactory) sinksFor(streamID string) []*recordingSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*recordingSink(nil), f.made[streamID]...)
}

type testHarness struct {
	sup     *Supervisor
	factory *recordingFactory
	sources map[string]*chanSource
	mu      sync.Mutex
}

func newHarness(t *testing.T, cfg effects.Config) *testHarness {
	t.Helper()
	h := &testHarness{
		factory: newRecordingFactory(),
		sources: make(map[string]*chanSource),
	}
	h.sup = New(Options{
		MaxWorkers: 4,
		CloseGrace: time.Second,
		SourceFactory: func(desc ingest.Descriptor) ingest.Source {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.sources[desc.URL]
		},
		SinkFactory: h.factory,
		Chain:       effects.NewChain(cfg, nil, nil),
		Bus:         events.New(),
	})
	return h
}

func (h *testHarness) addSource(url string, src *chanSource) {
	h.mu.Lock()
	h.sources[url] = src
	h.mu.Unlock()
}

func testFrame() *media.Frame {
	f := media.NewFrame(8, 8)
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	return f
}

func waitForFrames(t *testing.T, sup *Supervisor, id string, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats, err := sup.GetStats(id)
		return err == nil && stats.FrameCount >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFrameCountMatchesFramesFed(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	src := &chanSource{frames: make(chan *media.Frame, 16)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}))

	for i := 0; i < 5; i++ {
		src.frames <- testFrame()
	}
	waitForFrames(t, h.sup, "s1", 5)

	stats, err := h.sup.GetStats("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.FrameCount)
	assert.Equal(t, "running", stats.State)
	assert.Equal(t, "test", stats.InputKind)
	assert.Greater(t, stats.FPS, 0.0)

	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))
}

func TestGetStatsUnknownID(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	_, err := h.sup.GetStats("nope")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestReAddSameIDReplacesStream(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	oldSrc := &chanSource{frames: make(chan *media.Frame, 16)}
	newSrc := &chanSource{frames: make(chan *media.Frame, 16)}
	h.addSource("cam-old", oldSrc)
	h.addSource("cam-new", newSrc)

	require.NoError(t, h.sup.AddStream("dup", ingest.Descriptor{Kind: "test", URL: "cam-old"},
		[]sink.Kind{sink.KindLowLatency}))
	oldSrc.frames <- testFrame()
	oldSrc.frames <- testFrame()
	waitForFrames(t, h.sup, "dup", 2)

	// Same id again: the first stream is torn down, the second takes over.
	require.NoError(t, h.sup.AddStream("dup", ingest.Descriptor{Kind: "test", URL: "cam-new"},
		[]sink.Kind{sink.KindHLS}))

	require.Eventually(t, func() bool {
		return oldSrc.closed.Load()
	}, 2*time.Second, 5*time.Millisecond)

	newSrc.frames <- testFrame()
	waitForFrames(t, h.sup, "dup", 1)

	assert.Equal(t, 1, h.sup.Count())
	stats, err := h.sup.GetStats("dup")
	require.NoError(t, err)
	assert.Equal(t, []string{"hls"}, stats.OutputKinds)

	sinks := h.factory.sinksFor("dup")
	require.Len(t, sinks, 2)
	assert.True(t, sinks[0].Closed(), "replaced stream's sink should be torn down")
	assert.False(t, sinks[1].Closed())

	require.NoError(t, h.sup.RemoveStream(context.Background(), "dup"))
}

func TestRemoveStreamTearsDownSinksAndIsIdempotent(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	src := &chanSource{frames: make(chan *media.Frame, 4)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindHLS, sink.KindDASH}))
	src.frames <- testFrame()
	waitForFrames(t, h.sup, "s1", 1)

	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))

	for _, made := range h.factory.sinksFor("s1") {
		assert.True(t, made.Closed(), "sink %s must be torn down", made.Kind())
	}
	assert.True(t, src.closed.Load(), "source must be closed")
	assert.Equal(t, 0, h.sup.Count())

	// Second removal of the same id is a no-op.
	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))
}

func TestSourceExhaustionStopsStream(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	src := &chanSource{frames: make(chan *media.Frame, 4)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}))
	src.frames <- testFrame()
	src.frames <- testFrame()
	close(src.frames)

	require.Eventually(t, func() bool {
		return h.sup.Count() == 0
	}, 2*time.Second, 5*time.Millisecond)

	for _, made := range h.factory.sinksFor("s1") {
		assert.True(t, made.Closed())
		assert.Equal(t, 2, made.Writes())
	}
}

func TestSinkFailureIsIsolated(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	h.factory.writeErr[sink.KindHLS] = errors.New("pipe broke")

	src := &chanSource{frames: make(chan *media.Frame, 16)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency, sink.KindHLS, sink.KindDASH}))

	for i := 0; i < 4; i++ {
		src.frames <- testFrame()
	}
	waitForFrames(t, h.sup, "s1", 4)

	stats, err := h.sup.GetStats("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.FrameCount, "failing sink must not stop the stream")
	assert.Equal(t, "running", stats.State)

	for _, made := range h.factory.sinksFor("s1") {
		switch made.Kind() {
		case sink.KindHLS:
			assert.Equal(t, 0, made.Writes())
		default:
			assert.Equal(t, 4, made.Writes(), "healthy sinks keep receiving frames")
		}
	}

	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))
}

func TestSourceOpenFailureIsolatedFromOtherStream(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	h.addSource("bad", &chanSource{openErr: errors.New("connection refused")})
	good := &chanSource{frames: make(chan *media.Frame, 16)}
	h.addSource("good", good)

	require.NoError(t, h.sup.AddStream("b", ingest.Descriptor{Kind: "test", URL: "good"},
		[]sink.Kind{sink.KindLowLatency}))
	good.frames <- testFrame()
	waitForFrames(t, h.sup, "b", 1)

	require.NoError(t, h.sup.AddStream("a", ingest.Descriptor{Kind: "test", URL: "bad"},
		[]sink.Kind{sink.KindLowLatency}))

	// The failed registration erases itself.
	require.Eventually(t, func() bool {
		_, err := h.sup.GetStats("a")
		return errors.Is(err, ErrStreamNotFound)
	}, 2*time.Second, 5*time.Millisecond)

	good.frames <- testFrame()
	waitForFrames(t, h.sup, "b", 2)

	stats, err := h.sup.GetStats("b")
	require.NoError(t, err)
	assert.Equal(t, "running", stats.State)
	assert.Equal(t, int64(2), stats.FrameCount)

	require.NoError(t, h.sup.RemoveStream(context.Background(), "b"))
}

func TestSourceOpenFailureSignalsDrain(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	h.addSource("bad", &chanSource{openErr: errors.New("connection refused")})

	require.NoError(t, h.sup.AddStream("a", ingest.Descriptor{Kind: "test", URL: "bad"},
		[]sink.Kind{sink.KindLowLatency}))

	h.sup.mu.RLock()
	st := h.sup.streams["a"]
	h.sup.mu.RUnlock()
	require.NotNil(t, st)

	require.Eventually(t, func() bool {
		return h.sup.Count() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// The capacity watcher exits only when the drain flag closes, so a
	// failed open must set it like every other loop exit does.
	assert.True(t, st.draining())
	assert.Equal(t, StateStopped, st.State())
}

func TestFailedRegistrationsLeakNoGoroutines(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	h.addSource("bad", &chanSource{openErr: errors.New("connection refused")})

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		require.NoError(t, h.sup.AddStream(fmt.Sprintf("bad-%d", i),
			ingest.Descriptor{Kind: "test", URL: "bad"},
			[]sink.Kind{sink.KindLowLatency}))
	}

	require.Eventually(t, func() bool {
		return h.sup.Count() == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatsFPSZeroForNonPositiveDuration(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	src := &chanSource{frames: make(chan *media.Frame, 4)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}))
	src.frames <- testFrame()
	waitForFrames(t, h.sup, "s1", 1)

	// A start time in the future, as after a clock step, must not yield a
	// negative or infinite rate.
	h.sup.mu.Lock()
	h.sup.streams["s1"].startTime = time.Now().Add(time.Hour)
	h.sup.mu.Unlock()

	stats, err := h.sup.GetStats("s1")
	require.NoError(t, err)
	assert.Zero(t, stats.FPS)
	assert.Positive(t, stats.FrameCount)

	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))
}

func TestDrainBlocksRunningTransition(t *testing.T) {
	st := newStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}, &chanSource{}, effects.NewChain(effects.DefaultConfig(), nil, nil),
		newRecordingFactory(), nil, slog.Default(), time.Second)

	st.beginDrain()
	assert.False(t, st.transitionFrom(StateStarting, StateRunning))
	assert.Equal(t, StateDraining, st.State())

	// Without a competing drain the claim succeeds.
	st2 := newStream("s2", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}, &chanSource{}, effects.NewChain(effects.DefaultConfig(), nil, nil),
		newRecordingFactory(), nil, slog.Default(), time.Second)
	assert.True(t, st2.transitionFrom(StateStarting, StateRunning))
	assert.Equal(t, StateRunning, st2.State())
}

func TestShutdownDrainsEverything(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	for _, id := range []string{"s1", "s2", "s3"} {
		src := &chanSource{frames: make(chan *media.Frame, 4)}
		h.addSource(id, src)
		require.NoError(t, h.sup.AddStream(id, ingest.Descriptor{Kind: "test", URL: id},
			[]sink.Kind{sink.KindLowLatency}))
		src.frames <- testFrame()
		waitForFrames(t, h.sup, id, 1)
	}

	require.NoError(t, h.sup.Shutdown(context.Background()))
	assert.Equal(t, 0, h.sup.Count())

	// Shutdown is idempotent and further registrations are refused.
	require.NoError(t, h.sup.Shutdown(context.Background()))
	err := h.sup.AddStream("late", ingest.Descriptor{Kind: "test", URL: "late"},
		[]sink.Kind{sink.KindLowLatency})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestEndToEndTenFrames(t *testing.T) {
	cfg := effects.DefaultConfig()
	cfg.EdgeDetection.Enabled = true
	cfg.EdgeDetection.Threshold1 = 100
	cfg.EdgeDetection.Threshold2 = 200

	h := newHarness(t, cfg)
	src := &chanSource{frames: make(chan *media.Frame, 16)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency, sink.KindHLS}))

	for i := 0; i < 10; i++ {
		src.frames <- testFrame()
	}
	waitForFrames(t, h.sup, "s1", 10)

	stats, err := h.sup.GetStats("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.FrameCount)

	made := h.factory.sinksFor("s1")
	require.Len(t, made, 2, "one sink per kind, reused across frames")
	for _, s := range made {
		assert.Equal(t, 10, s.Writes())
	}

	require.NoError(t, h.sup.RemoveStream(context.Background(), "s1"))
}

func TestRemoveDuringSlowReadUnblocks(t *testing.T) {
	h := newHarness(t, effects.DefaultConfig())
	src := &chanSource{frames: make(chan *media.Frame)}
	h.addSource("cam", src)

	require.NoError(t, h.sup.AddStream("s1", ingest.Descriptor{Kind: "test", URL: "cam"},
		[]sink.Kind{sink.KindLowLatency}))

	require.Eventually(t, func() bool {
		stats, err := h.sup.GetStats("s1")
		return err == nil && stats.State == "running"
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.sup.RemoveStream(ctx, "s1"))
	assert.Equal(t, 0, h.sup.Count())
}
