package sink

import (
	"fmt"
	"os"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// countPlaylistSegments parses an HLS media playlist on disk and returns how
// many segments the encoder has published so far.
func countPlaylistSegments(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("parsing playlist: %w", err)
	}

	media, ok := pl.(*playlist.Media)
	if !ok {
		return 0, fmt.Errorf("expected media playlist, got multivariant")
	}
	return len(media.Segments), nil
}
