package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestSupervisor_Success(t *testing.T) {
	script := writeScript(t, `echo "frame=1 time=00:00:01.00 bitrate=1k" 1>&2
exit 0`)
	sup := NewSupervisor(script, 10*time.Second, 200, nil)

	res, err := sup.Run(context.Background(), &Command{Args: nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.StderrTail)
}

func TestSupervisor_Failure(t *testing.T) {
	script := writeScript(t, `echo "input error: moov atom not found" 1>&2
exit 3`)
	sup := NewSupervisor(script, 10*time.Second, 200, nil)

	res, err := sup.Run(context.Background(), &Command{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.StderrTail, "moov atom not found")
}

func TestSupervisor_Timeout(t *testing.T) {
	script := writeScript(t, `echo "working" 1>&2
sleep 30`)
	sup := NewSupervisor(script, 300*time.Millisecond, 200, nil)

	start := time.Now()
	res, err := sup.Run(context.Background(), &Command{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Contains(t, res.StderrTail, "working")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSupervisor_ContextCancel(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	sup := NewSupervisor(script, time.Minute, 200, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := sup.Run(ctx, &Command{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSupervisor_Progress(t *testing.T) {
	script := writeScript(t, `printf "time=00:00:15.00\r" 1>&2
sleep 0.1
printf "time=00:00:30.00\r" 1>&2
exit 0`)
	sup := NewSupervisor(script, 10*time.Second, 200, nil)
	sup.progressInterval = 0 // report every update in tests

	var percents []float64
	res, err := sup.Run(context.Background(), &Command{ExpectedDuration: 30}, func(percent float64, elapsed time.Duration) {
		percents = append(percents, percent)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotEmpty(t, percents)
	assert.InDelta(t, 50.0, percents[0], 0.01)
	assert.InDelta(t, 100.0, percents[len(percents)-1], 0.01)
}

func TestSupervisor_ProgressClampedAt100(t *testing.T) {
	script := writeScript(t, `printf "time=00:02:00.00\r" 1>&2
exit 0`)
	sup := NewSupervisor(script, 10*time.Second, 200, nil)
	sup.progressInterval = 0

	var got float64
	_, err := sup.Run(context.Background(), &Command{ExpectedDuration: 30}, func(percent float64, _ time.Duration) {
		got = percent
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestSupervisor_SpawnError(t *testing.T) {
	sup := NewSupervisor("/nonexistent/ffmpeg", time.Second, 200, nil)
	_, err := sup.Run(context.Background(), &Command{}, nil)
	require.Error(t, err)
}

func TestLineRing(t *testing.T) {
	r := newLineRing(3)
	r.Add("one")
	r.Add("two")
	assert.Equal(t, "one\ntwo", r.Tail(1000))

	r.Add("three")
	r.Add("four")
	assert.Equal(t, "two\nthree\nfour", r.Tail(1000))
}

func TestLineRing_TailTruncation(t *testing.T) {
	r := newLineRing(10)
	for i := 0; i < 10; i++ {
		r.Add(strings.Repeat(fmt.Sprintf("%d", i), 400))
	}
	tail := r.Tail(maxTailChars)
	assert.Len(t, tail, maxTailChars)
	assert.True(t, strings.HasSuffix(tail, "9"))
}
