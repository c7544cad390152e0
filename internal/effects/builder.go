package effects

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/tgcircle/tgcircle/internal/ffmpeg"
)

// Transcode geometry shared by every effect.
const (
	// baseFilter squares the frame and scales it to the note size.
	baseFilter = "crop='min(iw,ih)':'min(iw,ih)',scale=480:480"

	maxOutputSeconds = 60.0
	tailSeconds      = 2.0 // window the shake and uniform-speed effects act on
	rampSegSeconds   = 1.5
	flashSeconds     = 3.0
	memeSeconds      = 5.0
)

// BuildResult is an assembled command plus what was actually applied.
type BuildResult struct {
	Command *ffmpeg.Command
	// Applied is the effect the command implements; differs from the
	// requested one after a downgrade.
	Applied Effect
	// DowngradeReason is non-empty when the requested effect could not be
	// applied and Normal was built instead.
	DowngradeReason string
}

// Builder assembles effect commands. Randomised placement (ramp segments,
// flash window, meme insertion point) comes from the injected source so
// tests can pin it.
type Builder struct {
	assets AssetLocator
	rng    *rand.Rand
}

// NewBuilder creates a Builder. rng may be nil for non-deterministic behavior.
func NewBuilder(assets AssetLocator, rng *rand.Rand) *Builder {
	return &Builder{assets: assets, rng: rng}
}

func (b *Builder) uniform(max float64) float64 {
	if max <= 0 {
		return 0
	}
	if b.rng != nil {
		return b.rng.Float64() * max
	}
	return rand.Float64() * max
}

func (b *Builder) pick(items []string) string {
	if b.rng != nil {
		return items[b.rng.Intn(len(items))]
	}
	return items[rand.Intn(len(items))]
}

// Build assembles the ffmpeg command for the requested effect. Effects
// whose preconditions fail degrade to Normal; the result carries the
// reason so callers can record it.
func (b *Builder) Build(effect Effect, input, output string, info *ffmpeg.MediaInfo) (*BuildResult, error) {
	if info == nil || info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("building %s command: no media duration", effect)
	}

	eff := min(info.DurationSeconds, maxOutputSeconds)

	applied, reason := b.resolve(effect, eff, info.HasAudio)

	var cmd *ffmpeg.Command
	switch applied {
	case SpeedRamp:
		cmd = b.buildSpeedRamp(input, output, eff)
	case Flash:
		clip, _ := b.assets.FlashClip()
		cmd = b.buildFlash(input, clip, output, eff)
	case Meme:
		cmd = b.buildMeme(input, b.pick(b.assets.MemeClips()), output, eff)
	case UniformSpeed:
		cmd = b.buildUniformSpeed(input, output, eff)
	case Echo:
		cmd = b.buildEcho(input, output, eff, info.HasAudio)
	case Shake:
		cmd = b.buildSimple(input, output, eff, shakeFilter(eff), info.HasAudio)
	default:
		cmd = b.buildSimple(input, output, eff, baseFilter, info.HasAudio)
	}

	return &BuildResult{Command: cmd, Applied: applied, DowngradeReason: reason}, nil
}

// resolve applies the downgrade rules and returns the effect to build.
func (b *Builder) resolve(effect Effect, eff float64, hasAudio bool) (Effect, string) {
	if effect.NeedsAudio() && !hasAudio {
		return Normal, "no audio track"
	}
	switch effect {
	case SpeedRamp:
		if eff < 2*rampSegSeconds {
			return Normal, fmt.Sprintf("video shorter than %gs", 2*rampSegSeconds)
		}
	case Flash:
		if _, ok := b.assets.FlashClip(); !ok {
			return Normal, "flash clip unavailable"
		}
	case Meme:
		if len(b.assets.MemeClips()) == 0 {
			return Normal, "no meme clips available"
		}
	}
	return effect, ""
}

// buildSimple is the plain square crop, optionally with an extra video
// filter chain appended (shake).
func (b *Builder) buildSimple(input, output string, eff float64, videoFilter string, hasAudio bool) *ffmpeg.Command {
	cb := ffmpeg.NewCommand().
		Input(input).
		FilterComplex("[0:v]" + videoFilter + "[v]").
		Map("[v]")
	if hasAudio {
		cb.Map("0:a").OutputArgs(videoArgs()...).OutputArgs(audioArgs()...)
	} else {
		cb.OutputArgs(videoArgs()...).OutputArgs("-an")
	}
	return cb.DurationCap(eff).Output(output).Build()
}

// buildEcho keeps the plain video chain and echoes the audio. A silent
// input has nothing to echo; the plain build is used without a downgrade.
func (b *Builder) buildEcho(input, output string, eff float64, hasAudio bool) *ffmpeg.Command {
	if !hasAudio {
		return b.buildSimple(input, output, eff, baseFilter, false)
	}
	fc := "[0:v]" + baseFilter + "[v];" +
		"[0:a]aecho=0.8:0.9:1000|1800:0.35|0.25[a]"
	return ffmpeg.NewCommand().
		Input(input).
		FilterComplex(fc).
		Map("[v]").Map("[a]").
		OutputArgs(videoArgs()...).OutputArgs(audioArgs()...).
		DurationCap(eff).
		Output(output).
		Build()
}

// buildUniformSpeed doubles playback speed over the final two seconds.
func (b *Builder) buildUniformSpeed(input, output string, eff float64) *ffmpeg.Command {
	endStart := max(eff-tailSeconds, 0)
	fc := fmt.Sprintf(
		"[0:v]%s,split=2[v0][v1];"+
			"[v0]trim=0:%s,setpts=PTS-STARTPTS[v0t];"+
			"[v1]trim=%s:%s,setpts=(PTS-STARTPTS)/2[v1t];"+
			"[v0t][v1t]concat=n=2:v=1:a=0[v];"+
			"[0:a]asplit=2[a0][a1];"+
			"[a0]atrim=0:%s,asetpts=PTS-STARTPTS[a0t];"+
			"[a1]atrim=%s:%s,asetpts=PTS-STARTPTS,atempo=2[a1t];"+
			"[a0t][a1t]concat=n=2:v=0:a=1[a]",
		baseFilter,
		f(endStart),
		f(endStart), f(eff),
		f(endStart),
		f(endStart), f(eff),
	)
	return ffmpeg.NewCommand().
		Input(input).
		FilterComplex(fc).
		Map("[v]").Map("[a]").
		OutputArgs(videoArgs()...).OutputArgs(audioArgs()...).
		DurationCap(eff).
		Output(output).
		Build()
}

// buildSpeedRamp halves playback over one random segment and doubles it
// over a later one, keeping audio in sync via atempo.
func (b *Builder) buildSpeedRamp(input, output string, eff float64) *ffmpeg.Command {
	maxStart := max(eff-rampSegSeconds, 0)

	t1 := b.uniform(maxStart)
	t2 := b.uniform(maxStart)
	if t2 < t1 {
		t1, t2 = t2, t1
	}
	// Segments must not overlap.
	if t2-t1 < rampSegSeconds {
		t2 = min(t1+rampSegSeconds, maxStart)
	}
	t1End := min(t1+rampSegSeconds, eff)
	t2End := min(t2+rampSegSeconds, eff)

	fc := fmt.Sprintf(
		"[0:v]%s,split=5[v0][v1][v2][v3][v4];"+
			"[v0]trim=0:%s,setpts=PTS-STARTPTS[v0t];"+
			"[v1]trim=%s:%s,setpts=(PTS-STARTPTS)/2[v1t];"+
			"[v2]trim=%s:%s,setpts=PTS-STARTPTS[v2t];"+
			"[v3]trim=%s:%s,setpts=(PTS-STARTPTS)*2[v3t];"+
			"[v4]trim=%s:%s,setpts=PTS-STARTPTS[v4t];"+
			"[v0t][v1t][v2t][v3t][v4t]concat=n=5:v=1:a=0[v];"+
			"[0:a]asplit=5[a0][a1][a2][a3][a4];"+
			"[a0]atrim=0:%s,asetpts=PTS-STARTPTS[a0t];"+
			"[a1]atrim=%s:%s,asetpts=PTS-STARTPTS,atempo=2[a1t];"+
			"[a2]atrim=%s:%s,asetpts=PTS-STARTPTS[a2t];"+
			"[a3]atrim=%s:%s,asetpts=PTS-STARTPTS,atempo=0.5[a3t];"+
			"[a4]atrim=%s:%s,asetpts=PTS-STARTPTS[a4t];"+
			"[a0t][a1t][a2t][a3t][a4t]concat=n=5:v=0:a=1[a]",
		baseFilter,
		f(t1),
		f(t1), f(t1End),
		f(t1End), f(t2),
		f(t2), f(t2End),
		f(t2End), f(eff),
		f(t1),
		f(t1), f(t1End),
		f(t1End), f(t2),
		f(t2), f(t2End),
		f(t2End), f(eff),
	)
	return ffmpeg.NewCommand().
		Input(input).
		FilterComplex(fc).
		Map("[v]").Map("[a]").
		OutputArgs(videoArgs()...).OutputArgs(audioArgs()...).
		DurationCap(eff).
		Output(output).
		Build()
}

// buildFlash overlays the stock flash clip's video over a random 3s
// window, keeping the original audio.
func (b *Builder) buildFlash(input, clip, output string, eff float64) *ffmpeg.Command {
	flashStart := b.uniform(max(eff-flashSeconds, 0))
	flashEnd := min(flashStart+flashSeconds, eff)

	fc := fmt.Sprintf(
		"[0:v]%s,trim=0:%s,setpts=PTS-STARTPTS[v0];"+
			"[1:v]%s,trim=0:%s,setpts=PTS-STARTPTS[fv];"+
			"[v0][fv]overlay=0:0:enable='between(t,%s,%s)'[v]",
		baseFilter, f(eff),
		baseFilter, f(flashSeconds),
		f(flashStart), f(flashEnd),
	)
	return ffmpeg.NewCommand().
		Input(input).
		InputWithArgs(clip, "-stream_loop", "-1").
		FilterComplex(fc).
		Map("[v]").Map("0:a?").
		OutputArgs(videoArgs()...).OutputArgs(audioArgs()...).
		DurationCap(eff).
		Output(output).
		Build()
}

// buildMeme splices a 5s stock clip into the timeline at a random point,
// extending the output by its length up to the overall cap.
func (b *Builder) buildMeme(input, clip, output string, eff float64) *ffmpeg.Command {
	outDuration := min(maxOutputSeconds, eff+memeSeconds)
	insertAt := b.uniform(eff)

	// The stock clip must carry audio; both timelines are spliced.
	fc := fmt.Sprintf(
		"[0:v]%s,trim=0:%s,setpts=PTS-STARTPTS[v0];"+
			"[1:v]%s,trim=0:%s,setpts=PTS-STARTPTS[mv];"+
			"[v0]split=2[vpre][vpost];"+
			"[vpre]trim=0:%s,setpts=PTS-STARTPTS[vpre_t];"+
			"[vpost]trim=%s:%s,setpts=PTS-STARTPTS[vpost_t];"+
			"[vpre_t][mv][vpost_t]concat=n=3:v=1:a=0[v];"+
			"[0:a]atrim=0:%s,asetpts=PTS-STARTPTS[a0];"+
			"[1:a]atrim=0:%s,asetpts=PTS-STARTPTS[ma];"+
			"[a0]asplit=2[apre][apost];"+
			"[apre]atrim=0:%s,asetpts=PTS-STARTPTS[apre_t];"+
			"[apost]atrim=%s:%s,asetpts=PTS-STARTPTS[apost_t];"+
			"[apre_t][ma][apost_t]concat=n=3:v=0:a=1[a]",
		baseFilter, f(eff),
		baseFilter, f(memeSeconds),
		f(insertAt),
		f(insertAt), f(eff),
		f(eff),
		f(memeSeconds),
		f(insertAt),
		f(insertAt), f(eff),
	)
	return ffmpeg.NewCommand().
		Input(input).
		InputWithArgs(clip, "-stream_loop", "-1").
		FilterComplex(fc).
		Map("[v]").Map("[a]").
		OutputArgs(videoArgs()...).OutputArgs(audioArgs()...).
		DurationCap(outDuration).
		Output(output).
		Build()
}

// shakeFilter appends the rotate-and-blur tail to the base chain.
func shakeFilter(eff float64) string {
	endStart := max(eff-tailSeconds, 0)
	return fmt.Sprintf(
		"%s,rotate=0.04*sin(60*t):c=black@0:enable='gte(t,%s)',"+
			"gblur=sigma=8:steps=2:enable='gte(t,%s)'",
		baseFilter, f(endStart), f(endStart),
	)
}

func videoArgs() []string {
	return []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23"}
}

func audioArgs() []string {
	return []string{"-c:a", "aac", "-b:a", "128k"}
}

// f renders a seconds value without trailing zeros or exponent notation.
func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
