package ffmpeg

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a point-in-time resource snapshot of a running FFmpeg
// process.
type ProcessStats struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss_bytes"`
	SampledAt  time.Time `json:"sampled_at"`
}

// ProcessMonitor samples CPU and memory usage of a child process in the
// background. Sampling failures are silent: the process may have exited
// between the check and the sample.
type ProcessMonitor struct {
	pid      int
	interval time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewProcessMonitor creates a monitor for the given pid. Call Start to begin
// sampling.
func NewProcessMonitor(pid int) *ProcessMonitor {
	return &ProcessMonitor{
		pid:      pid,
		interval: time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins background sampling.
func (m *ProcessMonitor) Start() {
	go m.run()
}

// Stop ends background sampling. Safe to call more than once.
func (m *ProcessMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Stats returns the most recent sample.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *ProcessMonitor) run() {
	proc, err := process.NewProcess(int32(m.pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

func (m *ProcessMonitor) sample(proc *process.Process) {
	snap := ProcessStats{SampledAt: time.Now()}

	if cpuPct, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpuPct
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		snap.MemoryRSS = memInfo.RSS
	}

	m.mu.Lock()
	m.stats = snap
	m.mu.Unlock()
}

// CountingWriter wraps an io.Writer and tracks bytes written, used to report
// how much raw video has been fed to an encoder.
type CountingWriter struct {
	w     io.Writer
	count atomic.Int64
}

// NewCountingWriter wraps w.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

// Write writes p to the underlying writer and adds the written length to the
// running count.
func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count.Add(int64(n))
	return n, err
}

// BytesWritten returns the running count.
func (c *CountingWriter) BytesWritten() int64 {
	return c.count.Load()
}
