package ingest

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Decoders for the formats an image sequence may contain.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/vidflow/vidflow/internal/media"
)

// ImageSequenceBackend opens a directory of still images as a frame source,
// one frame per file in lexical order. Useful for file-based replay and for
// exercising the full pipeline without a live feed.
type ImageSequenceBackend struct{}

func (ImageSequenceBackend) Name() string { return "images" }

func (ImageSequenceBackend) Open(_ context.Context, dir string) (FrameReader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading image directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no decodable images in %s", dir)
	}
	sort.Strings(files)

	return &imageSequenceReader{files: files}, nil
}

type imageSequenceReader struct {
	files []string
	pos   int
}

func (r *imageSequenceReader) ReadFrame(ctx context.Context) (*media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.files) {
		return nil, io.EOF
	}

	path := r.files[r.pos]
	r.pos++

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return frameFromImage(img), nil
}

func (r *imageSequenceReader) Close() error { return nil }

// frameFromImage converts any decoded image into an interleaved BGR frame.
func frameFromImage(img image.Image) *media.Frame {
	bounds := img.Bounds()
	frame := media.NewFrame(bounds.Dx(), bounds.Dy())

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			cr, cg, cb, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			frame.Set(x, y, byte(cb>>8), byte(cg>>8), byte(cr>>8))
		}
	}
	return frame
}
