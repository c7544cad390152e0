package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandBuilder_Build(t *testing.T) {
	cmd := NewCommand().
		Input("in.mp4").
		Input("clip.mp4").
		FilterComplex("[0:v]scale=480:480[v]").
		Map("[v]").
		Map("0:a").
		OutputArgs("-c:v", "libx264", "-preset", "veryfast").
		DurationCap(60).
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-stats", "-y",
		"-i", "in.mp4",
		"-i", "clip.mp4",
		"-filter_complex", "[0:v]scale=480:480[v]",
		"-map", "[v]",
		"-map", "0:a",
		"-c:v", "libx264", "-preset", "veryfast",
		"-t", "60",
		"out.mp4",
	}, cmd.Args)
	assert.Equal(t, "out.mp4", cmd.Output)
	assert.Equal(t, 60.0, cmd.ExpectedDuration)
}

func TestCommandBuilder_InputWithArgs(t *testing.T) {
	cmd := NewCommand().
		Input("in.mp4").
		InputWithArgs("clip.mp4", "-stream_loop", "-1").
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-stats", "-y",
		"-i", "in.mp4",
		"-stream_loop", "-1", "-i", "clip.mp4",
		"out.mp4",
	}, cmd.Args)
}

func TestCommandBuilder_ExpectedDurationOverride(t *testing.T) {
	cmd := NewCommand().
		Input("in.mp4").
		DurationCap(60).
		ExpectedDuration(42.5).
		Output("out.mp4").
		Build()

	assert.Equal(t, 42.5, cmd.ExpectedDuration)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "60", formatSeconds(60))
	assert.Equal(t, "1.5", formatSeconds(1.5))
	assert.Equal(t, "0.123", formatSeconds(0.1234))
}

func TestCommand_String(t *testing.T) {
	cmd := NewCommand().Input("a.mp4").Output("b.mp4").Build()
	assert.Contains(t, cmd.String(), "ffmpeg ")
	assert.Contains(t, cmd.String(), "-i a.mp4")
}
