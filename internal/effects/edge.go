package effects

import (
	"fmt"
	"math"

	"github.com/vidflow/vidflow/internal/media"
)

// detectEdges converts the frame to grayscale, runs a Sobel gradient with
// two-threshold hysteresis, and re-expands the result to the 3-channel layout
// so downstream stages stay shape-compatible. Pixels at or above threshold2
// are strong edges; pixels between the thresholds survive only when connected
// to a strong edge.
func detectEdges(frame *media.Frame, threshold1, threshold2 int) (*media.Frame, error) {
	if err := validateShape(frame); err != nil {
		return nil, err
	}
	if threshold1 < 0 || threshold2 < 0 {
		return nil, fmt.Errorf("thresholds must be non-negative, got %d/%d", threshold1, threshold2)
	}
	if threshold1 > threshold2 {
		threshold1, threshold2 = threshold2, threshold1
	}

	w, h := frame.Width, frame.Height
	gray := grayscale(frame)

	// Sobel gradient magnitude.
	mag := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -float64(gray[(y-1)*w+x-1]) + float64(gray[(y-1)*w+x+1]) +
				-2*float64(gray[y*w+x-1]) + 2*float64(gray[y*w+x+1]) +
				-float64(gray[(y+1)*w+x-1]) + float64(gray[(y+1)*w+x+1])
			gy := -float64(gray[(y-1)*w+x-1]) - 2*float64(gray[(y-1)*w+x]) - float64(gray[(y-1)*w+x+1]) +
				float64(gray[(y+1)*w+x-1]) + 2*float64(gray[(y+1)*w+x]) + float64(gray[(y+1)*w+x+1])
			mag[y*w+x] = math.Hypot(gx, gy)
		}
	}

	const (
		none   = 0
		weak   = 1
		strong = 2
	)
	class := make([]byte, w*h)
	lo, hi := float64(threshold1), float64(threshold2)
	for i, m := range mag {
		switch {
		case m >= hi:
			class[i] = strong
		case m >= lo:
			class[i] = weak
		}
	}

	// Hysteresis: promote weak pixels connected to a strong one. Iterate until
	// stable; promotions only ever add edges so this terminates.
	changed := true
	for changed {
		changed = false
		for y := 1; y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				if class[y*w+x] != weak {
					continue
				}
				if hasStrongNeighbor(class, w, x, y) {
					class[y*w+x] = strong
					changed = true
				}
			}
		}
	}

	out := media.NewFrame(w, h)
	for i, c := range class {
		if c == strong {
			out.Pix[i*media.Channels] = 255
			out.Pix[i*media.Channels+1] = 255
			out.Pix[i*media.Channels+2] = 255
		}
	}
	return out, nil
}

// grayscale converts BGR pixels to luma using the BT.601 weights.
func grayscale(frame *media.Frame) []byte {
	gray := make([]byte, frame.Width*frame.Height)
	for i := 0; i < len(gray); i++ {
		b := float64(frame.Pix[i*media.Channels])
		g := float64(frame.Pix[i*media.Channels+1])
		r := float64(frame.Pix[i*media.Channels+2])
		gray[i] = clampByte(0.114*b + 0.587*g + 0.299*r)
	}
	return gray
}

func hasStrongNeighbor(class []byte, w, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if class[(y+dy)*w+x+dx] == 2 {
				return true
			}
		}
	}
	return false
}
