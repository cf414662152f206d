package effects

import (
	"github.com/vidflow/vidflow/internal/media"
)

// sharpenProvider is the built-in CPU enhancement provider: a 3x3 unsharp
// convolution that approximates the reference enhancement model's output
// without any accelerator. It exists so the enhancement stage can be exercised
// on hosts without a GPU capability.
type sharpenProvider struct {
	model string
}

// NewSharpenProvider returns a CPU-only enhancement provider. The model name
// is carried through for logging and stats only.
func NewSharpenProvider(model string) Provider {
	if model == "" {
		model = "sharpen"
	}
	return &sharpenProvider{model: model}
}

func (p *sharpenProvider) Name() string { return p.model }

// Enhance applies the sharpening kernel. Output always matches the input
// shape; an invalid frame is reported as an error so the chain falls back to
// the original.
func (p *sharpenProvider) Enhance(frame *media.Frame) (*media.Frame, error) {
	if err := validateShape(frame); err != nil {
		return nil, err
	}

	// 0 -1  0
	// -1  5 -1
	// 0 -1  0
	w, h := frame.Width, frame.Height
	stride := frame.Stride()
	out := frame.Clone()

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			for ch := 0; ch < media.Channels; ch++ {
				i := y*stride + x*media.Channels + ch
				acc := 5*int(frame.Pix[i]) -
					int(frame.Pix[i-stride]) -
					int(frame.Pix[i+stride]) -
					int(frame.Pix[i-media.Channels]) -
					int(frame.Pix[i+media.Channels])
				out.Pix[i] = clampByte(float64(acc))
			}
		}
	}
	return out, nil
}
