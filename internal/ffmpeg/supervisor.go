package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Status is the terminal state of a supervised transcode.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Result describes how a supervised transcode ended.
type Result struct {
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Stats      ProcessStats  `json:"stats"`
}

// ProgressFunc receives rate-limited progress updates while a transcode runs.
type ProgressFunc func(percent float64, elapsed time.Duration)

const (
	// maxTailChars bounds the stderr tail carried into results and logs.
	maxTailChars = 2000
	// stderrReadTimeout is how long a single stderr read may block before
	// the wall clock is re-checked.
	stderrReadTimeout = time.Second
)

// progress lines look like "... time=00:01:02.34 bitrate=..."
var progressTimeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// Supervisor runs ffmpeg commands with a wall-clock deadline, progress
// reporting and stderr capture.
type Supervisor struct {
	ffmpegPath       string
	timeout          time.Duration
	tailLines        int
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewSupervisor creates a supervisor. timeout is the wall-clock limit per
// transcode; tailLines bounds the retained stderr ring.
func NewSupervisor(ffmpegPath string, timeout time.Duration, tailLines int, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if tailLines <= 0 {
		tailLines = 200
	}
	return &Supervisor{
		ffmpegPath:       ffmpegPath,
		timeout:          timeout,
		tailLines:        tailLines,
		progressInterval: time.Second,
		logger:           logger,
	}
}

// Run executes the command and blocks until it finishes, times out, or the
// context is cancelled. The returned error covers spawn problems only; a
// failed or timed-out transcode is reported through Result.
func (s *Supervisor) Run(ctx context.Context, cmd *Command, onProgress ProgressFunc) (*Result, error) {
	execCmd := exec.Command(s.ffmpegPath, cmd.Args...)

	// os.Pipe (not StderrPipe) so the read side supports deadlines. A
	// plain blocking read would pin the loop when ffmpeg goes quiet and
	// the wall clock would never be checked.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	execCmd.Stderr = pw

	started := time.Now()
	if err := execCmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	monitor := NewProcessMonitor(execCmd.Process.Pid)
	if monitor != nil {
		monitor.Start()
	}

	deadline := started.Add(s.timeout)
	ring := newLineRing(s.tailLines)
	timedOut := false
	cancelled := false
	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if execCmd.Process != nil {
				_ = execCmd.Process.Kill()
			}
		})
	}

	var (
		pending    []byte
		buf        = make([]byte, 4096)
		lastReport time.Time
	)

	processLine := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		ring.Add(line)

		if onProgress == nil || cmd.ExpectedDuration <= 0 {
			return
		}
		m := progressTimeRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		if time.Since(lastReport) < s.progressInterval {
			return
		}
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.ParseFloat(m[3], 64)
		position := float64(hours)*3600 + float64(mins)*60 + secs

		percent := position / cmd.ExpectedDuration * 100
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		lastReport = time.Now()
		onProgress(percent, time.Since(started))
	}

	for {
		if ctx.Err() != nil {
			cancelled = true
			kill()
		}
		if !timedOut && !cancelled && time.Now().After(deadline) {
			timedOut = true
			kill()
		}

		_ = pr.SetReadDeadline(time.Now().Add(stderrReadTimeout))
		n, readErr := pr.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			// ffmpeg separates progress updates with \r, diagnostics with \n.
			for {
				idx := strings.IndexAny(string(pending), "\r\n")
				if idx < 0 {
					break
				}
				processLine(string(pending[:idx]))
				pending = pending[idx+1:]
			}
		}
		if readErr != nil {
			if errors.Is(readErr, os.ErrDeadlineExceeded) {
				continue
			}
			// EOF: the child closed stderr, it is exiting.
			break
		}
	}
	processLine(string(pending))
	pr.Close()

	waitErr := execCmd.Wait()
	elapsed := time.Since(started)

	result := &Result{
		ExitCode: exitCode(execCmd, waitErr),
		Elapsed:  elapsed,
	}
	if monitor != nil {
		monitor.Stop()
		result.Stats = monitor.Stats()
	}

	switch {
	case timedOut:
		result.Status = StatusTimeout
		result.StderrTail = ring.Tail(maxTailChars)
		s.logger.Warn("transcode killed on timeout",
			slog.Duration("timeout", s.timeout),
			slog.Duration("elapsed", elapsed),
		)
	case cancelled:
		result.Status = StatusFailure
		result.StderrTail = ring.Tail(maxTailChars)
	case waitErr != nil:
		result.Status = StatusFailure
		result.StderrTail = ring.Tail(maxTailChars)
		s.logger.Debug("transcode failed",
			slog.Int("exit_code", result.ExitCode),
			slog.Duration("elapsed", elapsed),
		)
	default:
		result.Status = StatusSuccess
	}

	return result, nil
}

// exitCode extracts the process exit code; -1 when killed or unknown.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		if cmd.ProcessState != nil {
			return cmd.ProcessState.ExitCode()
		}
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// lineRing retains the last n lines written to it.
type lineRing struct {
	lines []string
	next  int
	full  bool
}

func newLineRing(n int) *lineRing {
	return &lineRing{lines: make([]string, n)}
}

// Add appends a line, evicting the oldest when full.
func (r *lineRing) Add(line string) {
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// Tail joins the retained lines, oldest first, truncated to keep the last
// maxChars characters.
func (r *lineRing) Tail(maxChars int) string {
	var ordered []string
	if r.full {
		ordered = append(ordered, r.lines[r.next:]...)
	}
	ordered = append(ordered, r.lines[:r.next]...)

	joined := strings.Join(ordered, "\n")
	if len(joined) > maxChars {
		joined = joined[len(joined)-maxChars:]
	}
	return joined
}
