package effects

import (
	"math"

	"github.com/vidflow/vidflow/internal/media"
)

// hueRange is the 8-bit HSV hue range: hue is stored as degrees/2 so the full
// circle fits a byte.
const hueRange = 180

// shiftHue rotates every pixel's hue by shift, wrapped modulo the hue range.
// The conversion round-trips through HSV, leaving saturation and value
// untouched. A shift of 0 (mod 180) returns the input unchanged.
func shiftHue(frame *media.Frame, shift int) *media.Frame {
	shift = ((shift % hueRange) + hueRange) % hueRange
	if shift == 0 {
		return frame
	}

	out := media.NewFrame(frame.Width, frame.Height)
	n := frame.Width * frame.Height
	for i := 0; i < n; i++ {
		b := frame.Pix[i*media.Channels]
		g := frame.Pix[i*media.Channels+1]
		r := frame.Pix[i*media.Channels+2]

		h, s, v := bgrToHSV(b, g, r)
		h = (h + float64(shift)) // hue in [0,180)
		if h >= hueRange {
			h -= hueRange
		}
		nb, ng, nr := hsvToBGR(h, s, v)

		out.Pix[i*media.Channels] = nb
		out.Pix[i*media.Channels+1] = ng
		out.Pix[i*media.Channels+2] = nr
	}
	return out
}

// bgrToHSV converts a BGR pixel to HSV with hue in [0,180), saturation and
// value in [0,1].
func bgrToHSV(b, g, r byte) (h, s, v float64) {
	bf := float64(b) / 255
	gf := float64(g) / 255
	rf := float64(r) / 255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	v = maxC
	if maxC > 0 {
		s = delta / maxC
	}

	if delta == 0 {
		return 0, s, v
	}

	var deg float64
	switch maxC {
	case rf:
		deg = 60 * math.Mod((gf-bf)/delta, 6)
	case gf:
		deg = 60 * ((bf-rf)/delta + 2)
	default:
		deg = 60 * ((rf-gf)/delta + 4)
	}
	if deg < 0 {
		deg += 360
	}
	return deg / 2, s, v
}

// hsvToBGR converts back from the same HSV representation.
func hsvToBGR(h, s, v float64) (b, g, r byte) {
	deg := h * 2
	c := v * s
	x := c * (1 - math.Abs(math.Mod(deg/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case deg < 60:
		rf, gf, bf = c, x, 0
	case deg < 120:
		rf, gf, bf = x, c, 0
	case deg < 180:
		rf, gf, bf = 0, c, x
	case deg < 240:
		rf, gf, bf = 0, x, c
	case deg < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}

	return clampByte((bf + m) * 255), clampByte((gf + m) * 255), clampByte((rf + m) * 255)
}
