// Package bytesize formats byte counts for humans using binary (1024) units.
package bytesize

import "fmt"

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

// Format returns a human-readable representation, e.g. "1.5 MB". Sizes below
// one kilobyte are reported in whole bytes.
func Format(n int64) string {
	size := Size(n)
	switch {
	case size < 0:
		return fmt.Sprintf("%d B", n)
	case size < KB:
		return fmt.Sprintf("%d B", n)
	case size < MB:
		return formatUnit(size, KB, "KB")
	case size < GB:
		return formatUnit(size, MB, "MB")
	case size < TB:
		return formatUnit(size, GB, "GB")
	default:
		return formatUnit(size, TB, "TB")
	}
}

func formatUnit(size, unit Size, suffix string) string {
	value := float64(size) / float64(unit)
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %s", int64(value), suffix)
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}
