package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgcircle/tgcircle/internal/config"
	"github.com/tgcircle/tgcircle/internal/effects"
	"github.com/tgcircle/tgcircle/internal/ffmpeg"
	"github.com/tgcircle/tgcircle/internal/gate"
	"github.com/tgcircle/tgcircle/internal/models"
	"github.com/tgcircle/tgcircle/internal/service"
)

// Machine-readable rejection and error tokens stored in metrics events.
const (
	TokenFileSizeLimit        = "file_size_limit"
	TokenDurationLimit        = "duration_limit"
	TokenDurationLimitForMeme = "duration_limit_for_meme"
	TokenTimeout              = "timeout_5m"
	TokenFFmpegFailed         = "ffmpeg_nonzero_returncode"
)

// EventEffectDowngraded records that a requested effect silently fell back
// to the plain conversion.
const EventEffectDowngraded = "effect_downgraded"

// User-facing status texts.
const (
	MsgAccessRestricted = "❌ Access restricted."
	MsgAlbumRejected    = "❌ One video per message, please. Send videos individually, not as an album."
	MsgUserBusy         = "❌ Wait until your previous video is done."
	MsgFileTooLarge     = "❌ The video must be under 8 MB. Send a different one."
	MsgTooLong          = "❌ I can't process videos longer than one minute. Send a different one."
	MsgTooLongForMeme   = "❌ The meme effect needs a video up to 55 seconds. Send a different one."
	MsgQueued           = "⏳ Another video is being processed. You're in the queue, hang on."
	MsgProcessing       = "⏳ Processing your video…"
	MsgTimeout          = "❌ Processing took more than 5 minutes. Send a different video."
	MsgFailed           = "❌ Video processing failed"
	MsgDone             = "✅ Done! Here's your circle ⭕️"
)

// Submission is one incoming video message.
type Submission struct {
	UserID    int64
	ChatID    int64
	MessageID int64
	Username  string
	FullName  string

	// FileID is the platform handle used to download the video.
	FileID string
	// SizeBytes and DurationHint are the platform's metadata for the
	// attachment; zero when unknown.
	SizeBytes    int64
	DurationHint float64

	// GroupID groups album parts; empty for single messages.
	GroupID string

	Effect effects.Effect
}

// StatusEditor updates a previously sent status message.
type StatusEditor interface {
	Edit(ctx context.Context, text string) error
}

// Messenger sends replies and the finished note back to the chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendStatus(ctx context.Context, chatID int64, text string) (StatusEditor, error)
	SendVideoNote(ctx context.Context, chatID int64, path string) error
}

// Downloader fetches the submitted video into a local file.
type Downloader interface {
	Download(ctx context.Context, fileID, destPath string) error
}

// Prober extracts media metadata from a downloaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// CommandBuilder assembles the transcode command for an effect.
type CommandBuilder interface {
	Build(effect effects.Effect, input, output string, info *ffmpeg.MediaInfo) (*effects.BuildResult, error)
}

// Runner executes an assembled command under supervision.
type Runner interface {
	Run(ctx context.Context, cmd *ffmpeg.Command, onProgress ffmpeg.ProgressFunc) (*ffmpeg.Result, error)
}

// Recorder persists user contact and lifecycle events.
type Recorder interface {
	UpsertUserSeen(ctx context.Context, userID int64, username, fullName string) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	RecordEvent(ctx context.Context, userID int64, name string, fields ...service.EventField)
}

// Orchestrator drives a submission through admission, transcode and delivery.
type Orchestrator struct {
	gate       *gate.Gate
	metrics    Recorder
	downloader Downloader
	prober     Prober
	builder    CommandBuilder
	runner     Runner
	messenger  Messenger

	limits  config.LimitsConfig
	tempDir string
	logger  *slog.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	g *gate.Gate,
	metrics Recorder,
	downloader Downloader,
	prober Prober,
	builder CommandBuilder,
	runner Runner,
	messenger Messenger,
	limits config.LimitsConfig,
	tempDir string,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gate:       g,
		metrics:    metrics,
		downloader: downloader,
		prober:     prober,
		builder:    builder,
		runner:     runner,
		messenger:  messenger,
		limits:     limits,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// Process handles one submission from admission to delivery. It never
// returns an error to the transport layer; every outcome is reported to
// the user and the metrics store.
func (o *Orchestrator) Process(ctx context.Context, sub *Submission) {
	log := o.logger.With(
		slog.Int64("user_id", sub.UserID),
		slog.Int64("message_id", sub.MessageID),
		slog.String("effect", sub.Effect.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing submission", slog.Any("panic", r))
			o.recordError(ctx, sub, fmt.Sprintf("panic: %v", r))
			o.send(ctx, sub.ChatID, MsgFailed)
		}
	}()

	if err := o.metrics.UpsertUserSeen(ctx, sub.UserID, sub.Username, sub.FullName); err != nil {
		log.Warn("tracking user failed", slog.String("error", err.Error()))
	}

	if !o.admit(ctx, sub, log) {
		return
	}

	// The busy check precedes the limit checks; a busy user gets the
	// busy reply even for a clip that would be rejected, and no event.
	releaseUser, ok := o.gate.TryAcquireUser(sub.UserID)
	if !ok {
		o.send(ctx, sub.ChatID, MsgUserBusy)
		return
	}
	defer releaseUser()

	if !o.checkLimits(ctx, sub) {
		return
	}

	releaseGlobal, err := o.gate.AcquireGlobal(ctx, func() {
		o.send(ctx, sub.ChatID, MsgQueued)
	})
	if err != nil {
		log.Warn("waiting for processing slot aborted", slog.String("error", err.Error()))
		return
	}
	defer releaseGlobal()

	o.metrics.RecordEvent(ctx, sub.UserID, models.EventVideoStart, o.eventFields(sub)...)
	log.Info("video processing started")

	o.convert(ctx, sub, log)
}

// admit runs the checks that precede the user lock: ban, then album
// dedup.
func (o *Orchestrator) admit(ctx context.Context, sub *Submission, log *slog.Logger) bool {
	banned, err := o.metrics.IsBanned(ctx, sub.UserID)
	if err != nil {
		log.Warn("ban check failed", slog.String("error", err.Error()))
	}
	if banned {
		o.metrics.RecordEvent(ctx, sub.UserID, models.EventBannedBlock,
			service.WithMessageID(sub.MessageID))
		o.send(ctx, sub.ChatID, MsgAccessRestricted)
		log.Info("banned user blocked")
		return false
	}

	if sub.GroupID != "" {
		if first, firstID := o.gate.NoteGroupPart(sub.GroupID, sub.MessageID); !first {
			log.Debug("album part rejected",
				slog.String("group_id", sub.GroupID),
				slog.Int64("first_message_id", firstID),
			)
			o.send(ctx, sub.ChatID, MsgAlbumRejected)
			return false
		}
	}

	return true
}

// checkLimits runs the attachment limit checks in their fixed order:
// size, duration, meme duration.
func (o *Orchestrator) checkLimits(ctx context.Context, sub *Submission) bool {
	if sub.SizeBytes > 0 && sub.SizeBytes >= o.limits.MaxFileSize.Bytes() {
		o.reject(ctx, sub, TokenFileSizeLimit, MsgFileTooLarge)
		return false
	}

	if sub.DurationHint > o.limits.MaxDuration.Seconds() {
		o.reject(ctx, sub, TokenDurationLimit, MsgTooLong)
		return false
	}

	if sub.Effect == effects.Meme && sub.DurationHint > o.limits.MaxMemeDuration.Seconds() {
		o.reject(ctx, sub, TokenDurationLimitForMeme, MsgTooLongForMeme)
		return false
	}

	return true
}

// convert downloads, probes, transcodes and delivers. Working files are
// removed no matter how it ends.
func (o *Orchestrator) convert(ctx context.Context, sub *Submission, log *slog.Logger) {
	job := NewJob(o.tempDir)
	defer job.Cleanup(log)

	if err := o.downloader.Download(ctx, sub.FileID, job.InputPath); err != nil {
		log.Error("downloading video failed", slog.String("error", err.Error()))
		o.recordError(ctx, sub, "download: "+err.Error())
		o.send(ctx, sub.ChatID, MsgFailed)
		return
	}

	info, err := o.prober.Probe(ctx, job.InputPath)
	if err != nil {
		log.Error("probing video failed", slog.String("error", err.Error()))
		o.recordError(ctx, sub, "probe: "+err.Error())
		o.send(ctx, sub.ChatID, MsgFailed)
		return
	}

	status, err := o.messenger.SendStatus(ctx, sub.ChatID, MsgProcessing+"\n"+ProgressBar(0)+" 0%")
	if err != nil {
		log.Warn("sending status message failed", slog.String("error", err.Error()))
		status = nil
	}

	build, err := o.builder.Build(sub.Effect, job.InputPath, job.OutputPath, info)
	if err != nil {
		log.Error("building command failed", slog.String("error", err.Error()))
		o.recordError(ctx, sub, "build: "+err.Error())
		o.editStatus(ctx, status, MsgFailed)
		return
	}
	if build.DowngradeReason != "" {
		log.Info("effect downgraded",
			slog.String("requested", sub.Effect.String()),
			slog.String("applied", build.Applied.String()),
			slog.String("reason", build.DowngradeReason),
		)
		o.metrics.RecordEvent(ctx, sub.UserID, EventEffectDowngraded,
			service.WithMessageID(sub.MessageID),
			service.WithEffect(sub.Effect.String()),
			service.WithError(build.DowngradeReason),
		)
	}

	result, err := o.runner.Run(ctx, build.Command, func(percent float64, elapsed time.Duration) {
		p := int(percent)
		o.editStatus(ctx, status, fmt.Sprintf("%s\n%s %d%%", MsgProcessing, ProgressBar(p), p))
	})
	if err != nil {
		log.Error("starting transcode failed", slog.String("error", err.Error()))
		o.recordError(ctx, sub, "spawn: "+err.Error())
		o.editStatus(ctx, status, MsgFailed)
		return
	}

	switch result.Status {
	case ffmpeg.StatusTimeout:
		log.Warn("transcode timed out", slog.Duration("elapsed", result.Elapsed))
		o.recordError(ctx, sub, TokenTimeout)
		o.editStatus(ctx, status, MsgTimeout)

	case ffmpeg.StatusFailure:
		log.Error("transcode failed",
			slog.Int("exit_code", result.ExitCode),
			slog.String("stderr_tail", result.StderrTail),
		)
		o.recordError(ctx, sub, TokenFFmpegFailed+"\n"+result.StderrTail)
		o.editStatus(ctx, status, MsgFailed)

	case ffmpeg.StatusSuccess:
		if err := o.messenger.SendVideoNote(ctx, sub.ChatID, job.OutputPath); err != nil {
			log.Error("delivering note failed", slog.String("error", err.Error()))
			o.recordError(ctx, sub, "deliver: "+err.Error())
			o.editStatus(ctx, status, MsgFailed)
			return
		}
		o.metrics.RecordEvent(ctx, sub.UserID, models.EventVideoSuccess, o.eventFields(sub)...)
		o.editStatus(ctx, status, MsgDone)
		log.Info("video processed",
			slog.Duration("elapsed", result.Elapsed),
			slog.Float64("duration_seconds", info.DurationSeconds),
		)
	}
}

// reject records a video_rejected event with the given token and informs
// the user.
func (o *Orchestrator) reject(ctx context.Context, sub *Submission, token, message string) {
	fields := append(o.eventFields(sub), service.WithError(token))
	o.metrics.RecordEvent(ctx, sub.UserID, models.EventVideoRejected, fields...)
	o.send(ctx, sub.ChatID, message)
	o.logger.Info("video rejected",
		slog.Int64("user_id", sub.UserID),
		slog.String("reason", token),
	)
}

func (o *Orchestrator) recordError(ctx context.Context, sub *Submission, detail string) {
	fields := append(o.eventFields(sub), service.WithError(detail))
	o.metrics.RecordEvent(ctx, sub.UserID, models.EventVideoError, fields...)
}

// eventFields are the attributes every lifecycle event carries.
func (o *Orchestrator) eventFields(sub *Submission) []service.EventField {
	fields := []service.EventField{
		service.WithMessageID(sub.MessageID),
		service.WithEffect(sub.Effect.String()),
	}
	if sub.DurationHint > 0 {
		fields = append(fields, service.WithVideoDuration(sub.DurationHint))
	}
	if sub.SizeBytes > 0 {
		fields = append(fields, service.WithVideoFileSize(sub.SizeBytes))
	}
	return fields
}

func (o *Orchestrator) send(ctx context.Context, chatID int64, text string) {
	if err := o.messenger.Send(ctx, chatID, text); err != nil {
		o.logger.Warn("sending message failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) editStatus(ctx context.Context, status StatusEditor, text string) {
	if status == nil {
		return
	}
	if err := status.Edit(ctx, text); err != nil {
		o.logger.Warn("editing status failed", slog.String("error", err.Error()))
	}
}
