// Package worker runs the asynq task handlers that do the actual media work.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/ffmpeg"
	"github.com/wapuda/metanix/internal/filebin"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/quota"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
)

// Tools is the media tooling the handlers drive; *ffmpeg.Runner implements it.
type Tools interface {
	extract.Prober
	extract.Trimmer
	Frame(ctx context.Context, input string, at float64, output string) error
	Probe(ctx context.Context, input string) (*ffmpeg.ProbeResult, []byte, error)
	MediaInfo(ctx context.Context, input string) ([]byte, error)
}

// ErrTooLarge means a result exceeds the upload limit and no link service is configured.
var ErrTooLarge = errors.New("result exceeds the upload limit")

type Worker struct {
	cfg    config.Config
	tg     *telegram.Platform
	tools  Tools
	ranges extract.RangeFetcher
	ext    *extract.Extractor
	store  settings.Store
	quota  *quota.Quota
	bin    *filebin.Client
	now    func() time.Time
	intn   func(n int) int
}

// Deps groups the collaborators of a Worker. Bin may be nil.
type Deps struct {
	Telegram *telegram.Platform
	Tools    Tools
	Ranges   extract.RangeFetcher
	Store    settings.Store
	Quota    *quota.Quota
	Bin      *filebin.Client
}

func New(cfg config.Config, d Deps) *Worker {
	w := &Worker{
		cfg:    cfg,
		tg:     d.Telegram,
		tools:  d.Tools,
		ranges: d.Ranges,
		store:  d.Store,
		quota:  d.Quota,
		bin:    d.Bin,
		now:    time.Now,
		intn:   rand.Intn,
	}
	w.ext = extract.New(d.Tools, d.Tools, d.Ranges,
		extract.WithAssumedDuration(cfg.AssumedDuration),
		extract.WithBytesPerSecond(cfg.BytesPerSecond),
		extract.WithPadding(cfg.Padding),
		extract.WithRand(func(n int) int { return w.intn(n) }),
	)
	return w
}

// Register binds every task type to its handler.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(jobs.TaskSample, w.HandleSegment)
	mux.HandleFunc(jobs.TaskTrim, w.HandleSegment)
	mux.HandleFunc(jobs.TaskScreenshots, w.HandleScreenshots)
	mux.HandleFunc(jobs.TaskInfo, w.HandleInfo)
}

// begin prepares the per-request context, status message and workspace.
func (w *Worker) begin(ctx context.Context, env jobs.Envelope) (context.Context, *telegram.Status, *extract.Workspace, error) {
	ctx = logx.WithRequest(ctx, env.RequestID, env.UserID)
	status := w.tg.Status(ctx, env.ChatID, env.StatusMsgID, env.RequestID)
	ws, err := extract.OpenWorkspace(w.cfg.DataDir, env.RequestID, env.UserID)
	if err != nil {
		return ctx, status, nil, err
	}
	return ctx, status, ws, nil
}

// finish clears the status and logs success. The quota slot reserved by the
// bot stays taken.
func (w *Worker) finish(ctx context.Context, env jobs.Envelope, status *telegram.Status, kind string) {
	logger := logx.FromCtx(ctx)
	status.Delete()
	logger.Info().Str("task", kind).Msg("request delivered")
}

// fail tells the user what went wrong, mirrors it to the log channel and
// stops asynq from retrying. The bot token is masked before err goes anywhere.
func (w *Worker) fail(ctx context.Context, env jobs.Envelope, status *telegram.Status, kind string, err error) error {
	logger := logx.FromCtx(ctx)
	err = w.tg.Redact(err)
	msg := userMessage(err, w.cfg.TelegramUploadMaxByte)
	w.refund(ctx, env)
	if errors.Is(err, extract.ErrCancelled) || errors.Is(err, context.Canceled) {
		logger.Info().Str("task", kind).Msg("request cancelled")
	} else {
		logger.Error().Err(err).Str("task", kind).Msg("request failed")
		w.logChannel(ctx, fmt.Sprintf("❌ %s failed\nuser: %d\nrequest: %s\nerror: %v", kind, env.UserID, env.RequestID, err))
	}

	if env.StatusMsgID != 0 {
		status.Final(msg)
	} else if _, sendErr := w.tg.SendText(context.WithoutCancel(ctx), env.ChatID, env.ReplyToID, msg); sendErr != nil {
		logger.Warn().Err(sendErr).Msg("failure notice not delivered")
	}
	return fmt.Errorf("%s %s: %w: %w", kind, env.RequestID, err, asynq.SkipRetry)
}

// refund returns the slot the bot reserved for a request that was not delivered.
func (w *Worker) refund(ctx context.Context, env jobs.Envelope) {
	at := env.QueuedAt
	if at.IsZero() {
		at = w.now()
	}
	if err := w.quota.Refund(context.WithoutCancel(ctx), env.UserID, 1, at); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("quota refund failed")
	}
}

func (w *Worker) logChannel(ctx context.Context, text string) {
	if w.cfg.LogChannel == 0 {
		return
	}
	if _, err := w.tg.SendText(context.WithoutCancel(ctx), w.cfg.LogChannel, 0, text); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("log channel send failed")
	}
}

// userMessage extends extract.UserMessage with worker-level failures.
func userMessage(err error, limit int64) string {
	switch {
	case errors.Is(err, context.Canceled):
		return extract.UserMessage(extract.ErrCancelled)
	case errors.Is(err, telegram.ErrFileTooBig):
		return "❌ This file is too big for the bot to download (Telegram allows 20 MB)."
	case errors.Is(err, ErrTooLarge):
		return fmt.Sprintf("❌ The result is larger than the %d MB upload limit.", limit/(1024*1024))
	case errors.Is(err, ErrTooShort):
		return "❌ The video is too short for that many screenshots."
	default:
		return extract.UserMessage(err)
	}
}
