package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command represents a single FFmpeg invocation. Long-lived commands (the
// segmented sinks, the rawvideo capture loop) are started once and fed or
// drained through pipes for the lifetime of a stream.
type Command struct {
	Binary string
	Args   []string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	started time.Time
	mu      sync.RWMutex

	monitor *ProcessMonitor

	// waitCh receives the process exit result exactly once.
	waitCh chan error

	stderrLines []string
	stderrMu    sync.RWMutex
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// RawVideoInput configures a raw bgr24 input at the given geometry and frame
// rate, read from stdin. This is how the segmented sinks feed processed frames
// to the encoder.
func (b *CommandBuilder) RawVideoInput(width, height, fps int) *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
	)
	b.input = "pipe:0"
	return b
}

// RawVideoOutput configures raw bgr24 frames written to stdout, used by the
// pull-loop ingest variant to decode arbitrary inputs into pipeline frames.
func (b *CommandBuilder) RawVideoOutput() *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
	)
	b.output = "pipe:1"
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// CRF sets the constant rate factor quality level.
func (b *CommandBuilder) CRF(crf int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-crf", strconv.Itoa(crf))
	return b
}

// VideoBitrate sets the video bitrate in bits per second.
func (b *CommandBuilder) VideoBitrate(bps int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:v", strconv.Itoa(bps))
	return b
}

// HLSArgs adds HLS segmenter output arguments.
func (b *CommandBuilder) HLSArgs(segmentSeconds int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "event",
	)
	return b
}

// DASHArgs adds DASH segmenter output arguments.
func (b *CommandBuilder) DASHArgs(segmentSeconds int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-seg_duration", strconv.Itoa(segmentSeconds),
		"-f", "dash",
	)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		waitCh:      make(chan error, 1),
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// StartWriter starts the process with a stdin pipe for feeding raw frames.
// Stderr is captured for diagnostics and a resource monitor is attached.
func (c *Command) StartWriter(ctx context.Context) (io.WriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return nil, fmt.Errorf("command already started")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	if err := c.start(cmd); err != nil {
		return nil, err
	}
	c.stdin = stdin
	return stdin, nil
}

// StartReader starts the process with a stdout pipe for consuming decoded
// output.
func (c *Command) StartReader(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return nil, fmt.Errorf("command already started")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := c.start(cmd); err != nil {
		return nil, err
	}
	c.stdout = stdout
	return stdout, nil
}

// start launches the process, wires stderr capture, the monitor, and the
// single Wait goroutine. Callers hold c.mu.
func (c *Command) start(cmd *exec.Cmd) error {
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.started = time.Now()
	c.monitor = NewProcessMonitor(cmd.Process.Pid)
	c.monitor.Start()

	go c.captureStderr(stderr)
	go func() {
		c.waitCh <- cmd.Wait()
		close(c.waitCh)
	}()

	return nil
}

// Pid returns the process id, or 0 if not started.
func (c *Command) Pid() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// IsRunning returns true if the process has started and not yet exited.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cmd != nil && c.cmd.ProcessState == nil
}

// Duration returns how long the process has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// Monitor returns the attached process monitor, nil before start.
func (c *Command) Monitor() *ProcessMonitor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitor
}

// Stop shuts the process down: close stdin so FFmpeg finalizes its output,
// wait up to grace for a clean exit, escalate to SIGTERM, then kill. Stop
// never blocks longer than grace plus two short escalation windows.
func (c *Command) Stop(grace time.Duration) error {
	c.mu.Lock()
	cmd := c.cmd
	stdin := c.stdin
	c.stdin = nil
	monitor := c.monitor
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if stdin != nil {
		_ = stdin.Close()
	}

	var exitErr error
	select {
	case exitErr = <-c.waitCh:
		// Clean exit.
	case <-time.After(grace):
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case exitErr = <-c.waitCh:
		case <-time.After(500 * time.Millisecond):
			_ = cmd.Process.Kill()
			select {
			case exitErr = <-c.waitCh:
			case <-time.After(500 * time.Millisecond):
				exitErr = fmt.Errorf("ffmpeg pid %d did not exit after kill", cmd.Process.Pid)
			}
		}
	}

	if monitor != nil {
		monitor.Stop()
	}
	return exitErr
}

// maxStderrLines bounds the in-memory stderr ring buffer.
const maxStderrLines = 100

// captureStderr reads FFmpeg stderr, keeping the most recent lines for
// debugging.
func (c *Command) captureStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// GetStderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}
