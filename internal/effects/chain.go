// Package effects implements the per-frame transformation chain: Gaussian
// blur, two-threshold edge detection, hue rotation, and an optional
// capability-provided enhancement stage. Stages always run in that fixed
// order; edge detection discards color information that the color filter
// would otherwise operate on, so the order is part of the contract.
package effects

import (
	"fmt"
	"log/slog"

	"github.com/vidflow/vidflow/internal/media"
)

// Provider is the optional GPU/model-backed enhancement capability. A provider
// must return a frame of identical dimensions and channel layout. Providers
// are injected at startup; the chain never probes for them.
type Provider interface {
	// Name identifies the provider (e.g. the model it wraps).
	Name() string
	// Enhance transforms the frame. On failure the chain falls back to the
	// unmodified input, so providers may return errors freely.
	Enhance(frame *media.Frame) (*media.Frame, error)
}

// Chain applies the configured effect stages to frames. It is pure: no state
// is carried between frames, and the same input always produces the same
// output. A zero-value Chain passes frames through untouched.
type Chain struct {
	cfg      Config
	provider Provider
	logger   *slog.Logger
}

// NewChain creates an effect chain. provider may be nil; the enhancement
// stage then degrades to a no-op regardless of configuration.
func NewChain(cfg Config, provider Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(slog.String("component", "effects")),
	}
}

// Config returns the chain's immutable configuration.
func (c *Chain) Config() Config {
	return c.cfg
}

// Apply runs the enabled stages in the fixed order blur -> edge detection ->
// color filter -> enhancement. A failing stage is logged and skipped; the
// frame proceeds with that stage's input. Apply never returns an error and
// never mutates its input.
func (c *Chain) Apply(frame *media.Frame) *media.Frame {
	out := frame

	if c.cfg.Blur.Enabled {
		blurred, err := gaussianBlur(out, c.cfg.Blur.KernelSize)
		if err != nil {
			c.logger.Warn("blur stage failed, passing frame through",
				slog.Int("kernel_size", c.cfg.Blur.KernelSize),
				slog.String("error", err.Error()))
		} else {
			out = blurred
		}
	}

	if c.cfg.EdgeDetection.Enabled {
		edges, err := detectEdges(out, c.cfg.EdgeDetection.Threshold1, c.cfg.EdgeDetection.Threshold2)
		if err != nil {
			c.logger.Warn("edge detection stage failed, passing frame through",
				slog.String("error", err.Error()))
		} else {
			out = edges
		}
	}

	if c.cfg.ColorFilter.Enabled {
		out = shiftHue(out, c.cfg.ColorFilter.HueShift)
	}

	if c.cfg.Enhancement.Enabled && c.provider != nil {
		out = c.enhance(out)
	}

	return out
}

// enhance delegates to the provider, falling back to the input frame on any
// failure or shape mismatch. Enhancement failures are non-fatal and
// self-healing per frame.
func (c *Chain) enhance(frame *media.Frame) *media.Frame {
	enhanced, err := c.provider.Enhance(frame)
	if err != nil {
		c.logger.Warn("enhancement failed, using original frame",
			slog.String("provider", c.provider.Name()),
			slog.String("error", err.Error()))
		return frame
	}
	if enhanced == nil || !frame.SameShape(enhanced) {
		c.logger.Warn("enhancement returned mismatched frame shape, using original",
			slog.String("provider", c.provider.Name()))
		return frame
	}
	return enhanced
}

// validateShape rejects frames whose buffer does not match the declared
// dimensions, which would otherwise panic deep inside a convolution.
func validateShape(frame *media.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Pix) != frame.Width*frame.Height*media.Channels {
		return fmt.Errorf("frame buffer length %d does not match %dx%d", len(frame.Pix), frame.Width, frame.Height)
	}
	return nil
}
