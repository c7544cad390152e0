package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ProbeError indicates that ffprobe could not produce usable metadata
// for an input file.
type ProbeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probing %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("probing %s: %s", e.Path, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ProbeResult contains the raw ffprobe output we care about.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"` // video, audio, subtitle, data
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Channels  int    `json:"channels,omitempty"`
}

// MediaInfo is the probe summary the pipeline works with.
type MediaInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	HasAudio        bool    `json:"has_audio"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	VideoCodec      string  `json:"video_codec,omitempty"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new media prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe against a local file and returns the media summary.
// A missing or non-numeric container duration is a probe failure; a
// missing audio stream is not, it simply yields HasAudio=false.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &ProbeError{Path: path, Reason: fmt.Sprintf("timeout after %v", p.timeout)}
		}
		return nil, &ProbeError{Path: path, Reason: "ffprobe failed", Err: err}
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, &ProbeError{Path: path, Reason: "parsing ffprobe output", Err: err}
	}

	return summarize(path, &result)
}

// summarize converts the raw probe result into a MediaInfo.
func summarize(path string, result *ProbeResult) (*MediaInfo, error) {
	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return nil, &ProbeError{Path: path, Reason: fmt.Sprintf("no usable duration in container (%q)", result.Format.Duration)}
	}
	if duration <= 0 {
		return nil, &ProbeError{Path: path, Reason: fmt.Sprintf("non-positive duration %v", duration)}
	}

	info := &MediaInfo{DurationSeconds: duration}
	for _, s := range result.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				info.VideoCodec = s.CodecName
			}
		}
	}
	return info, nil
}
