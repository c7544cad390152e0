package ffmpeg

import (
	"fmt"
	"strings"
)

// Command is a fully assembled ffmpeg invocation. Args never pass through
// a shell, so input paths need no quoting.
type Command struct {
	Args             []string `json:"args"`
	Output           string   `json:"output"`
	ExpectedDuration float64  `json:"expected_duration"` // seconds of output, used for progress
}

// String returns the invocation as a printable command line.
func (c *Command) String() string {
	return "ffmpeg " + strings.Join(c.Args, " ")
}

type inputSpec struct {
	args []string
	path string
}

// CommandBuilder assembles ffmpeg argument lists.
type CommandBuilder struct {
	logLevel         string
	overwrite        bool
	inputs           []inputSpec
	filterComplex    string
	maps             []string
	outputArgs       []string
	durationCap      float64
	expectedDuration float64
	output           string
}

// NewCommand creates a command builder with sane defaults.
func NewCommand() *CommandBuilder {
	return &CommandBuilder{
		logLevel:  "error",
		overwrite: true,
	}
}

// LogLevel sets the -loglevel value. Progress reporting needs at least
// "info" on stderr, which ffmpeg prints regardless of loglevel via -stats.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// Input appends an input file.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.inputs = append(b.inputs, inputSpec{path: path})
	return b
}

// InputWithArgs appends an input file preceded by input-specific arguments,
// e.g. InputWithArgs("clip.mp4", "-stream_loop", "-1").
func (b *CommandBuilder) InputWithArgs(path string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, inputSpec{path: path, args: args})
	return b
}

// FilterComplex sets the filter graph.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// Map appends a -map stream specifier.
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.maps = append(b.maps, spec)
	return b
}

// OutputArgs appends raw output arguments (codecs, bitrates, flags).
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// DurationCap truncates the output at the given length via -t.
func (b *CommandBuilder) DurationCap(seconds float64) *CommandBuilder {
	b.durationCap = seconds
	return b
}

// ExpectedDuration records the anticipated output length for progress
// percentage calculation. Defaults to the duration cap when unset.
func (b *CommandBuilder) ExpectedDuration(seconds float64) *CommandBuilder {
	b.expectedDuration = seconds
	return b
}

// Output sets the output file path.
func (b *CommandBuilder) Output(path string) *CommandBuilder {
	b.output = path
	return b
}

// Build assembles the final argument list.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-hide_banner", "-loglevel", b.logLevel, "-stats"}

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}

	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	}

	for _, m := range b.maps {
		args = append(args, "-map", m)
	}

	args = append(args, b.outputArgs...)

	if b.durationCap > 0 {
		args = append(args, "-t", formatSeconds(b.durationCap))
	}

	args = append(args, b.output)

	expected := b.expectedDuration
	if expected == 0 {
		expected = b.durationCap
	}

	return &Command{
		Args:             args,
		Output:           b.output,
		ExpectedDuration: expected,
	}
}

// formatSeconds renders a duration argument without scientific notation.
func formatSeconds(s float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", s), "0"), ".")
}
