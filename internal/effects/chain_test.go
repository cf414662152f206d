package effects

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidflow/vidflow/internal/media"
)

// testFrame builds a frame with a vertical color gradient so every stage has
// real structure to chew on.
func testFrame(w, h int) *media.Frame {
	f := media.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, byte(x*255/w), byte(y*255/h), byte((x+y)*255/(w+h)))
		}
	}
	return f
}

func TestChainDisabledIsPassthrough(t *testing.T) {
	in := testFrame(16, 16)
	chain := NewChain(DefaultConfig(), nil, nil)

	out := chain.Apply(in)

	assert.Equal(t, in.Pix, out.Pix)
}

func TestChainDoesNotMutateInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blur.Enabled = true
	cfg.Blur.KernelSize = 5
	in := testFrame(16, 16)
	orig := in.Clone()

	NewChain(cfg, nil, nil).Apply(in)

	assert.Equal(t, orig.Pix, in.Pix, "input frame must stay untouched")
}

func TestChainIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blur.Enabled = true
	cfg.Blur.KernelSize = 7
	cfg.ColorFilter.Enabled = true
	cfg.ColorFilter.HueShift = 45
	chain := NewChain(cfg, nil, nil)
	in := testFrame(24, 24)

	first := chain.Apply(in)
	second := chain.Apply(in)

	assert.Equal(t, first.Pix, second.Pix)
}

// Edge detection before color filter is the contract: edges discard color, so
// the combined output must equal the literal edge-then-color sequence and not
// the reverse. The input is built so the two orderings provably disagree:
// pure red next to a gray of equal luma has no luminance edge, but after a
// 120-degree hue rotation the red half becomes green and the boundary lights
// up.
func TestChainStageOrderEdgeBeforeColor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EdgeDetection.Enabled = true
	cfg.EdgeDetection.Threshold1 = 50
	cfg.EdgeDetection.Threshold2 = 150
	cfg.ColorFilter.Enabled = true
	cfg.ColorFilter.HueShift = 60

	in := media.NewFrame(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				in.Set(x, y, 0, 0, 255) // pure red, luma 76
			} else {
				in.Set(x, y, 76, 76, 76) // gray of matching luma
			}
		}
	}

	combined := NewChain(cfg, nil, nil).Apply(in)

	edges, err := detectEdges(in, 50, 150)
	require.NoError(t, err)
	want := shiftHue(edges, 60)
	assert.Equal(t, want.Pix, combined.Pix)

	reverse := shiftHue(in, 60)
	reverseEdges, err := detectEdges(reverse, 50, 150)
	require.NoError(t, err)
	assert.NotEqual(t, reverseEdges.Pix, combined.Pix,
		"reversed stage order must produce a different result for this input")
}

func TestChainBlurBeforeEdge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blur.Enabled = true
	cfg.Blur.KernelSize = 5
	cfg.EdgeDetection.Enabled = true
	cfg.EdgeDetection.Threshold1 = 50
	cfg.EdgeDetection.Threshold2 = 150

	in := testFrame(32, 32)
	combined := NewChain(cfg, nil, nil).Apply(in)

	blurred, err := gaussianBlur(in, 5)
	require.NoError(t, err)
	want, err := detectEdges(blurred, 50, 150)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, combined.Pix)
}

func TestChainInvalidBlurKernelPassesThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blur.Enabled = true
	cfg.Blur.KernelSize = 4 // even: stage must fail soft

	in := testFrame(8, 8)
	out := NewChain(cfg, nil, nil).Apply(in)

	assert.Equal(t, in.Pix, out.Pix)
}

type failingProvider struct{ err error }

func (p *failingProvider) Name() string { return "failing" }
func (p *failingProvider) Enhance(*media.Frame) (*media.Frame, error) {
	return nil, p.err
}

type wrongShapeProvider struct{}

func (p *wrongShapeProvider) Name() string { return "wrong-shape" }
func (p *wrongShapeProvider) Enhance(f *media.Frame) (*media.Frame, error) {
	return media.NewFrame(f.Width/2, f.Height/2), nil
}

func TestChainEnhancementFailureReturnsOriginal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enhancement.Enabled = true

	in := testFrame(8, 8)

	tests := []struct {
		name     string
		provider Provider
	}{
		{"provider error", &failingProvider{err: errors.New("out of device memory")}},
		{"shape mismatch", &wrongShapeProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewChain(cfg, tt.provider, nil).Apply(in)
			assert.Equal(t, in.Pix, out.Pix)
		})
	}
}

func TestChainEnhancementWithoutProviderIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enhancement.Enabled = true

	in := testFrame(8, 8)
	out := NewChain(cfg, nil, nil).Apply(in)

	assert.Equal(t, in.Pix, out.Pix)
}

func TestSharpenProviderKeepsShape(t *testing.T) {
	in := testFrame(16, 12)
	out, err := NewSharpenProvider("esrgan").Enhance(in)

	require.NoError(t, err)
	assert.True(t, in.SameShape(out))
	assert.Len(t, out.Pix, len(in.Pix))
}
