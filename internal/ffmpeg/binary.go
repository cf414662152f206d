package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary resolves the ffmpeg executable. An explicit configured path wins;
// otherwise PATH is searched.
func FindBinary(configured string) (string, error) {
	if configured != "" {
		info, err := os.Stat(configured)
		if err != nil {
			return "", fmt.Errorf("configured ffmpeg path %q: %w", configured, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("configured ffmpeg path %q is a directory", configured)
		}
		return configured, nil
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return path, nil
}
