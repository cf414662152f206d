package ingest

import (
	"context"
	"fmt"

	"github.com/vidflow/vidflow/internal/media"
)

// Descriptor identifies where a stream's frames come from.
type Descriptor struct {
	Kind string `json:"kind" yaml:"kind"`
	URL  string `json:"url" yaml:"url"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.URL)
}

// Source produces the sequence of raw frames for one stream. Open must be
// called before ReadFrame; ReadFrame returns io.EOF when the source is
// exhausted. Implementations are used by exactly one goroutine at a time.
type Source interface {
	// Open acquires the underlying capture or decode resources. An error
	// here aborts stream registration.
	Open(ctx context.Context) error

	// ReadFrame blocks until the next frame is available, the source ends
	// (io.EOF), or ctx is done.
	ReadFrame(ctx context.Context) (*media.Frame, error)

	// Close releases the source. Safe to call after a ReadFrame error.
	Close() error

	Kind() string
}

// Factory builds a Source for a descriptor. The supervisor resolves one
// factory at startup based on which decode capabilities are present and uses
// it for every stream.
type Factory func(desc Descriptor) Source
