// Package effects builds the ffmpeg invocations that turn an arbitrary
// video into a square circle-note clip, optionally with a playback effect.
package effects

import "fmt"

// Effect identifies a transcode effect. The string values are the wire
// names used in bot commands and metrics records.
type Effect string

const (
	// Normal is the plain square crop with no effect.
	Normal Effect = "normal"
	// SpeedRamp slows one random segment down and speeds another up.
	SpeedRamp Effect = "speed_slow"
	// Flash overlays a stock flash clip over a random 3s window.
	Flash Effect = "flash"
	// Meme splices a random 5s stock clip into the timeline.
	Meme Effect = "meme"
	// Echo adds an audio echo.
	Echo Effect = "echo"
	// Shake rotates and blurs the final two seconds.
	Shake Effect = "shake"
	// UniformSpeed doubles playback speed for the final two seconds.
	UniformSpeed Effect = "speed"
)

// All lists every known effect.
var All = []Effect{Normal, SpeedRamp, Flash, Meme, Echo, Shake, UniformSpeed}

// Parse converts a wire name into an Effect.
func Parse(s string) (Effect, error) {
	for _, e := range All {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown effect %q", s)
}

// String returns the wire name.
func (e Effect) String() string { return string(e) }

// NeedsAudio reports whether the effect requires an audio track; without
// one it downgrades to Normal.
func (e Effect) NeedsAudio() bool {
	switch e {
	case SpeedRamp, Flash, Meme, UniformSpeed:
		return true
	}
	return false
}
