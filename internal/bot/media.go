package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/media"
	"github.com/wapuda/metanix/internal/telegram"
)

const (
	needReply   = "❌ Please reply to a video message when using this command."
	needVideo   = "❌ This command only works on actual videos or video documents."
	needMedia   = "Please reply to a media file (video, audio, document) with /mediainfo"
	queuedText  = "⏳ Queued…"
	queueFailed = "❌ Could not queue your request, please try again later."
)

// target is the media the command replies to, if it is acceptable.
type target func(media.Reference) bool

// segmentable accepts anything with a timeline; documents must not declare a
// non-media type.
func segmentable(ref media.Reference) bool {
	switch ref.Kind {
	case media.KindVideo, media.KindAudio:
		return true
	}
	return mediaMime(ref.MimeType, "video/", "audio/")
}

// visual accepts only things with frames.
func visual(ref media.Reference) bool {
	if ref.Kind == media.KindVideo {
		return true
	}
	return ref.Kind == media.KindDocument && mediaMime(ref.MimeType, "video/")
}

func anyMedia(media.Reference) bool { return true }

func mediaMime(mime string, prefixes ...string) bool {
	mime = strings.ToLower(mime)
	if mime == "" || mime == "application/octet-stream" {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(mime, p) {
			return true
		}
	}
	return false
}

// replied returns the media m replies to, answering the user when there is
// none or it is the wrong kind.
func (b *Bot) replied(ctx context.Context, m *tgbotapi.Message, ok target, missing, wrong string) (media.Reference, bool) {
	ref, found := telegram.ReferenceFromMessage(m.ReplyToMessage)
	if !found {
		b.reply(ctx, m, missing)
		return media.Reference{}, false
	}
	if !ok(ref) {
		b.reply(ctx, m, wrong)
		return media.Reference{}, false
	}
	return ref, true
}

func (b *Bot) onSample(ctx context.Context, m *tgbotapi.Message) {
	ref, ok := b.replied(ctx, m, segmentable, needReply, needVideo)
	if !ok {
		return
	}
	req, err := ParseSample(m.CommandArguments())
	if err != nil {
		b.reply(ctx, m, replyText(err))
		return
	}
	b.enqueue(ctx, m, ref, jobs.TypeFor(req.Mode), func(env jobs.Envelope) any {
		return jobs.SegmentPayload{Envelope: env, Request: req}
	})
}

func (b *Bot) onTrim(ctx context.Context, m *tgbotapi.Message) {
	ref, ok := b.replied(ctx, m, segmentable, needReply, needVideo)
	if !ok {
		return
	}
	req, err := ParseTrim(m.CommandArguments())
	if err != nil {
		b.reply(ctx, m, replyText(err))
		return
	}
	b.enqueue(ctx, m, ref, jobs.TypeFor(req.Mode), func(env jobs.Envelope) any {
		return jobs.SegmentPayload{Envelope: env, Request: req}
	})
}

func (b *Bot) onScreenshots(ctx context.Context, m *tgbotapi.Message) {
	ref, ok := b.replied(ctx, m, visual, "❌ Error: Please reply to a video message when using this command.", "❌ Error: This command only works on actual videos or video documents.")
	if !ok {
		return
	}
	n, err := ParseScreenshots(m.CommandArguments(), b.cfg.ScreenshotMax)
	if err != nil {
		b.reply(ctx, m, replyText(err))
		return
	}
	b.enqueue(ctx, m, ref, jobs.TaskScreenshots, func(env jobs.Envelope) any {
		return jobs.ScreenshotsPayload{Envelope: env, Count: n}
	})
}

func (b *Bot) onInfo(ctx context.Context, m *tgbotapi.Message) {
	ref, ok := b.replied(ctx, m, anyMedia, needMedia, needMedia)
	if !ok {
		return
	}
	b.enqueue(ctx, m, ref, jobs.TaskInfo, func(env jobs.Envelope) any {
		return jobs.InfoPayload{Envelope: env}
	})
}

// enqueue reserves a quota slot, posts the status message with its Cancel
// button and queues the task under a fresh request id. The slot is given back
// if the request never reaches the queue.
func (b *Bot) enqueue(ctx context.Context, m *tgbotapi.Message, ref media.Reference, typ string, payload func(jobs.Envelope) any) {
	user := m.From.ID
	b.register(ctx, m.From)

	queuedAt := b.now()
	left, allowed, err := b.quota.Reserve(ctx, user, 1, queuedAt)
	if err != nil {
		b.fail(ctx, m, "quota check", err)
		return
	}
	if !allowed {
		b.reply(ctx, m, fmt.Sprintf("❌ Daily limit reached (%d requests). Try again tomorrow.", b.quota.Max()))
		return
	}

	rid := jobs.NewRequestID()
	ctx = logx.WithRequest(ctx, rid, user)
	logger := logx.FromCtx(ctx)

	status, err := b.tg.SendKeyboard(ctx, m.Chat.ID, m.MessageID, queuedText, telegram.CancelKeyboard(rid))
	if err != nil {
		logger.Error().Err(err).Msg("status message")
		b.refund(ctx, user, queuedAt)
		return
	}

	env := jobs.Envelope{
		RequestID:   rid,
		ChatID:      m.Chat.ID,
		UserID:      user,
		ReplyToID:   m.ReplyToMessage.MessageID,
		StatusMsgID: status.MessageID,
		Media:       ref,
		QueuedAt:    queuedAt,
	}
	task, err := jobs.NewTask(typ, env, payload(env), b.cfg.TaskTimeout)
	if err == nil {
		_, err = b.queue.EnqueueContext(ctx, task)
	}
	if err != nil {
		logger.Error().Err(err).Str("task", typ).Msg("enqueue failed")
		b.refund(ctx, user, queuedAt)
		if editErr := b.tg.Edit(ctx, m.Chat.ID, status.MessageID, queueFailed); editErr != nil {
			logger.Warn().Err(editErr).Msg("status edit failed")
		}
		return
	}
	logger.Info().Str("task", typ).Int("quota_left", left).Msg("request queued")
}

func (b *Bot) refund(ctx context.Context, user int64, queuedAt time.Time) {
	if err := b.quota.Refund(context.WithoutCancel(ctx), user, 1, queuedAt); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("quota refund failed")
	}
}
