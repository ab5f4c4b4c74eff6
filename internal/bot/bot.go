// Package bot turns Telegram updates into settings changes and queued media tasks.
package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/quota"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector is the part of *asynq.Inspector used to cancel requests.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	CancelProcessing(id string) error
}

type Bot struct {
	cfg   config.Config
	tg    *telegram.Platform
	store settings.Store
	quota *quota.Quota
	queue Enqueuer
	insp  Inspector
	now   func() time.Time
}

func New(cfg config.Config, tg *telegram.Platform, store settings.Store, q *quota.Quota, queue Enqueuer, insp Inspector) *Bot {
	return &Bot{cfg: cfg, tg: tg, store: store, quota: q, queue: queue, insp: insp, now: time.Now}
}

// HandleUpdate dispatches one update. Errors are reported to the user and
// logged; nothing is returned.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		b.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.onCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) onMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return
	}
	ctx = logx.WithUser(ctx, m.From.ID)
	logger := logx.FromCtx(ctx)
	logger.Debug().Int64("chat_id", m.Chat.ID).Str("cmd", m.Command()).Msg("message received")

	if b.cfg.BannedUsers[m.From.ID] {
		b.reply(ctx, m, "Sorry, You are banned.")
		return
	}

	if !m.IsCommand() {
		if len(m.Photo) > 0 {
			b.onPhoto(ctx, m)
		}
		return
	}

	switch m.Command() {
	case "start":
		b.onStart(ctx, m)
	case "help":
		b.reply(ctx, m, helpText)
	case "sv":
		b.onSample(ctx, m)
	case "trim":
		b.onTrim(ctx, m)
	case "ss":
		b.onScreenshots(ctx, m)
	case "mediainfo", "mi", "info":
		b.onInfo(ctx, m)
	case "set_caption":
		b.setField(ctx, m, settings.FieldCaption, captionUsage)
	case "see_caption":
		b.seeField(ctx, m, settings.FieldCaption)
	case "del_caption":
		b.clearField(ctx, m, settings.FieldCaption)
	case "set_prefix":
		b.setField(ctx, m, settings.FieldPrefix, "Give me a prefix.\nExample: /set_prefix [MX]")
	case "see_prefix":
		b.seeField(ctx, m, settings.FieldPrefix)
	case "del_prefix":
		b.clearField(ctx, m, settings.FieldPrefix)
	case "set_suffix":
		b.setField(ctx, m, settings.FieldSuffix, "Give me a suffix.\nExample: /set_suffix -MetaNiX")
	case "see_suffix":
		b.seeField(ctx, m, settings.FieldSuffix)
	case "del_suffix":
		b.clearField(ctx, m, settings.FieldSuffix)
	case "view_thumb":
		b.viewThumb(ctx, m)
	case "del_thumb":
		b.clearField(ctx, m, settings.FieldThumbnail)
	case "upload":
		b.onUpload(ctx, m)
	case "document":
		b.setUploadType(ctx, m, settings.UploadDocument)
	case "video":
		b.setUploadType(ctx, m, settings.UploadVideo)
	case "users":
		b.onUsers(ctx, m)
	default:
		b.reply(ctx, m, "Unknown command. See /help.")
	}
}

func (b *Bot) onStart(ctx context.Context, m *tgbotapi.Message) {
	b.register(ctx, m.From)
	text := fmt.Sprintf(startText, displayName(m.From))
	if b.quota.Enabled() {
		if left, err := b.quota.Remaining(ctx, m.From.ID); err == nil {
			text += fmt.Sprintf("\n\nRequests left today: %d of %d.", left, b.quota.Max())
		}
	}
	b.reply(ctx, m, text)
}

// register creates the user's settings on first contact and announces new
// users in the log channel.
func (b *Bot) register(ctx context.Context, u *tgbotapi.User) {
	logger := logx.FromCtx(ctx)
	created, err := b.store.Ensure(ctx, u.ID)
	if err != nil {
		logger.Error().Err(err).Msg("register user")
		return
	}
	if !created {
		return
	}
	logger.Info().Msg("new user")
	if b.cfg.LogChannel != 0 {
		text := fmt.Sprintf("#NewUser\n\nID: %d\nName: %s\nUsername: @%s\nDate: %s",
			u.ID, displayName(u), u.UserName, b.now().Format("2006-01-02 15:04:05"))
		if _, err := b.tg.SendText(ctx, b.cfg.LogChannel, 0, text); err != nil {
			logger.Warn().Err(err).Msg("log channel send failed")
		}
	}
}

func (b *Bot) onUsers(ctx context.Context, m *tgbotapi.Message) {
	if !b.cfg.IsAdmin(m.From.ID) {
		b.reply(ctx, m, accessDenied)
		return
	}
	n, err := b.store.Count(ctx)
	if err != nil {
		b.fail(ctx, m, "count users", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("👥 Total users: %d", n))
}

func (b *Bot) reply(ctx context.Context, m *tgbotapi.Message, text string) {
	if _, err := b.tg.SendText(ctx, m.Chat.ID, m.MessageID, text); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("reply failed")
	}
}

// fail logs err and tells the user something went wrong on our side.
func (b *Bot) fail(ctx context.Context, m *tgbotapi.Message, what string, err error) {
	logger := logx.FromCtx(ctx)
	logger.Error().Err(err).Msg(what)
	b.reply(ctx, m, "❌ Internal error, please try again later.")
}

func displayName(u *tgbotapi.User) string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}
