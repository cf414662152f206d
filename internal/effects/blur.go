package effects

import (
	"fmt"
	"math"

	"github.com/vidflow/vidflow/internal/media"
)

// gaussianBlur applies separable Gaussian smoothing with the given odd kernel
// size. Sigma is derived from the kernel size the same way OpenCV does when
// sigma is left at zero, so configurations ported from the reference tooling
// produce comparable output.
func gaussianBlur(frame *media.Frame, kernelSize int) (*media.Frame, error) {
	if err := validateShape(frame); err != nil {
		return nil, err
	}
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel size must be a positive odd number, got %d", kernelSize)
	}
	if kernelSize == 1 {
		return frame, nil
	}

	kernel := gaussianKernel(kernelSize)
	radius := kernelSize / 2

	w, h := frame.Width, frame.Height
	stride := frame.Stride()

	// Horizontal pass into a temporary buffer, then vertical pass into the
	// output. Edges are clamped.
	tmp := make([]float64, len(frame.Pix))
	for y := 0; y < h; y++ {
		row := y * stride
		for x := 0; x < w; x++ {
			for ch := 0; ch < media.Channels; ch++ {
				var acc float64
				for k := -radius; k <= radius; k++ {
					sx := clampInt(x+k, 0, w-1)
					acc += kernel[k+radius] * float64(frame.Pix[row+sx*media.Channels+ch])
				}
				tmp[row+x*media.Channels+ch] = acc
			}
		}
	}

	out := media.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < media.Channels; ch++ {
				var acc float64
				for k := -radius; k <= radius; k++ {
					sy := clampInt(y+k, 0, h-1)
					acc += kernel[k+radius] * tmp[sy*stride+x*media.Channels+ch]
				}
				out.Pix[y*stride+x*media.Channels+ch] = clampByte(acc)
			}
		}
	}

	return out, nil
}

// gaussianKernel builds a normalized 1D Gaussian kernel of the given odd size.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	radius := size / 2

	kernel := make([]float64, size)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
