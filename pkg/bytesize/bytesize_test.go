package bytesize

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"exact kilobyte", 1024, "1 KB"},
		{"fractional kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5 * 1024 * 1024, "5 MB"},
		{"fractional gigabytes", int64(1.25 * float64(GB)), "1.3 GB"},
		{"terabytes", int64(2 * TB), "2 TB"},
		{"negative", -1, "-1 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.n); got != tt.want {
				t.Errorf("Format(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}
