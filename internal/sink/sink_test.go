package sink

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidflow/vidflow/internal/media"
)

type captureTransport struct {
	payloads [][]byte
	err      error
}

func (t *captureTransport) SendFrame(_ context.Context, _ string, payload []byte) error {
	if t.err != nil {
		return t.err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.payloads = append(t.payloads, cp)
	return nil
}

func gradientFrame(w, h int) *media.Frame {
	f := media.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, byte(x*8), byte(y*8), byte((x+y)*4))
		}
	}
	return f
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"lowlatency", "hls", "dash"} {
		k, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(k))
	}
	_, err := ParseKind("rtmp")
	assert.Error(t, err)
}

func TestLowLatencyProducesDecodableJPEG(t *testing.T) {
	transport := &captureTransport{}
	s := NewLowLatency("cam1", transport, nil)

	frame := gradientFrame(16, 16)
	require.NoError(t, s.WriteFrame(context.Background(), frame))
	require.Len(t, transport.payloads, 1)

	img, err := jpeg.Decode(bytes.NewReader(transport.payloads[0]))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())

	stats := s.Stats()
	assert.Equal(t, KindLowLatency, stats.Kind)
	assert.Equal(t, int64(len(transport.payloads[0])), stats.BytesWritten)
}

func TestLowLatencyTransportErrorSurfaces(t *testing.T) {
	transport := &captureTransport{err: errors.New("peer gone")}
	s := NewLowLatency("cam1", transport, nil)

	err := s.WriteFrame(context.Background(), gradientFrame(4, 4))
	require.Error(t, err)
	assert.Equal(t, int64(0), s.Stats().BytesWritten)
	assert.NoError(t, s.Close(context.Background()))
}

func TestSegmenterPaths(t *testing.T) {
	cfg := SegmenterConfig{OutputRoot: "output", SegmentSeconds: 6}

	hls := NewSegmenter(KindHLS, "cam1", cfg, nil)
	assert.Equal(t, filepath.Join("output", "cam1", "hls"), hls.OutputDir())
	assert.Equal(t, filepath.Join("output", "cam1", "hls", "playlist.m3u8"), hls.manifestPath())

	dash := NewSegmenter(KindDASH, "cam1", cfg, nil)
	assert.Equal(t, filepath.Join("output", "cam1", "dash", "manifest.mpd"), dash.manifestPath())
}

func TestSegmenterCloseWithoutSpawnIsNoop(t *testing.T) {
	s := NewSegmenter(KindHLS, "cam1", SegmenterConfig{OutputRoot: t.TempDir()}, nil)
	assert.NoError(t, s.Close(context.Background()))
	assert.Equal(t, Stats{Kind: KindHLS}, s.Stats())
}

func TestCountPlaylistSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u8")
	content := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:6\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXTINF:6.000000,\n" +
		"playlist0.ts\n" +
		"#EXTINF:6.000000,\n" +
		"playlist1.ts\n" +
		"#EXTINF:4.200000,\n" +
		"playlist2.ts\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	n, err := countPlaylistSegments(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = countPlaylistSegments(filepath.Join(dir, "missing.m3u8"))
	assert.Error(t, err)
}

func TestDefaultFactory(t *testing.T) {
	f := &DefaultFactory{
		Transport: &captureTransport{},
		HLS:       SegmenterConfig{OutputRoot: "output", SegmentSeconds: 6},
		DASH:      SegmenterConfig{OutputRoot: "output", SegmentSeconds: 4},
	}

	for _, kind := range []Kind{KindLowLatency, KindHLS, KindDASH} {
		s, err := f.New("cam1", kind)
		require.NoError(t, err)
		assert.Equal(t, kind, s.Kind())
	}

	_, err := f.New("cam1", Kind("bogus"))
	assert.Error(t, err)

	_, err = (&DefaultFactory{}).New("cam1", KindLowLatency)
	assert.Error(t, err, "low-latency sink needs a transport")
}
