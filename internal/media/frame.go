// Package media defines the raw frame type that flows through the vidflow
// processing pipeline, from ingestion through the effect chain to the sinks.
package media

import "fmt"

// Channels is the fixed number of interleaved channels per pixel. Every frame
// in the pipeline is 8-bit BGR, matching the rawvideo bgr24 layout the decode
// and encode processes speak.
const Channels = 3

// Frame is a single decoded picture in interleaved BGR order, row-major.
// Pix holds exactly Width*Height*Channels bytes.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

// FrameFromBytes wraps a raw BGR buffer as a frame. The buffer is not copied.
// Returns an error if the buffer length does not match the declared dimensions.
func FrameFromBytes(width, height int, pix []byte) (*Frame, error) {
	if want := width * height * Channels; len(pix) != want {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d bgr24", len(pix), want, width, height)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * Channels
}

// Size returns the total byte length of the pixel buffer.
func (f *Frame) Size() int {
	return len(f.Pix)
}

// At returns the BGR triple at (x, y). No bounds checking beyond the slice's own.
func (f *Frame) At(x, y int) (b, g, r byte) {
	i := (y*f.Width + x) * Channels
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the BGR triple at (x, y).
func (f *Frame) Set(x, y int, b, g, r byte) {
	i := (y*f.Width + x) * Channels
	f.Pix[i] = b
	f.Pix[i+1] = g
	f.Pix[i+2] = r
}

// SameShape reports whether two frames have identical dimensions.
func (f *Frame) SameShape(other *Frame) bool {
	return other != nil && f.Width == other.Width && f.Height == other.Height
}
