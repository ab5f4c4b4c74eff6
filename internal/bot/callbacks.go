package bot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/settings"
)

const (
	cbUploadDocument = "upload_document_on"
	cbUploadVideo    = "upload_video_on"
	cbClose          = "close"
	cbCancelPrefix   = "cancel:"
)

func (b *Bot) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}
	ctx = logx.WithUser(ctx, cq.From.ID)
	logger := logx.FromCtx(ctx)
	logger.Debug().Str("data", cq.Data).Msg("callback received")

	if b.cfg.BannedUsers[cq.From.ID] {
		b.answer(ctx, cq, "Sorry, You are banned.")
		return
	}

	switch data := cq.Data; {
	case strings.HasPrefix(data, cbCancelPrefix):
		b.onCancel(ctx, cq, strings.TrimPrefix(data, cbCancelPrefix))
	case data == cbUploadDocument:
		b.chooseUpload(ctx, cq, settings.UploadDocument)
	case data == cbUploadVideo:
		b.chooseUpload(ctx, cq, settings.UploadVideo)
	case data == cbClose:
		b.onClose(ctx, cq)
	default:
		b.answer(ctx, cq, "")
	}
}

// onCancel removes a request that has not started yet, or signals the worker
// running it. A running request reports its own cancellation.
func (b *Bot) onCancel(ctx context.Context, cq *tgbotapi.CallbackQuery, rid string) {
	ctx = logx.WithRequest(ctx, rid, cq.From.ID)
	logger := logx.FromCtx(ctx)
	chatID, msgID := cq.Message.Chat.ID, cq.Message.MessageID

	info, err := b.insp.GetTaskInfo(jobs.Queue, rid)
	if err != nil {
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			logger.Warn().Err(err).Msg("task lookup failed")
		}
		b.answer(ctx, cq, "Nothing to cancel.")
		return
	}

	switch info.State {
	case asynq.TaskStateActive:
		if err := b.insp.CancelProcessing(rid); err != nil {
			logger.Error().Err(err).Msg("cancel active task")
			b.answer(ctx, cq, "Could not cancel, try again.")
			return
		}
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		if err := b.insp.DeleteTask(jobs.Queue, rid); err != nil {
			logger.Error().Err(err).Msg("delete queued task")
			b.answer(ctx, cq, "Could not cancel, try again.")
			return
		}
		if env, err := jobs.EnvelopeOf(info.Payload); err == nil {
			b.refund(ctx, env.UserID, env.QueuedAt)
		} else {
			logger.Warn().Err(err).Msg("cancelled task has no envelope, quota not refunded")
		}
		if err := b.tg.Edit(ctx, chatID, msgID, extract.UserMessage(extract.ErrCancelled)); err != nil {
			logger.Warn().Err(err).Msg("status edit failed")
		}
	default:
		b.answer(ctx, cq, "Nothing to cancel.")
		return
	}
	logger.Info().Str("state", info.State.String()).Msg("request cancelled")
	b.answer(ctx, cq, "Process cancelled ❌")
}

func (b *Bot) chooseUpload(ctx context.Context, cq *tgbotapi.CallbackQuery, t settings.UploadType) {
	logger := logx.FromCtx(ctx)
	b.register(ctx, cq.From)
	if err := b.store.Set(ctx, cq.From.ID, settings.FieldUploadType, string(t)); err != nil {
		logger.Error().Err(err).Msg("set upload type")
		b.answer(ctx, cq, "Internal error")
		return
	}
	if err := b.tg.EditKeyboard(ctx, cq.Message.Chat.ID, cq.Message.MessageID, uploadText(t), uploadKeyboard(t)); err != nil {
		logger.Warn().Err(err).Msg("upload keyboard edit failed")
	}
	b.answer(ctx, cq, "")
}

// onClose deletes the keyboard message and the command it answered.
func (b *Bot) onClose(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	logger := logx.FromCtx(ctx)
	chatID := cq.Message.Chat.ID
	if err := b.tg.Delete(ctx, chatID, cq.Message.MessageID); err != nil {
		logger.Warn().Err(err).Msg("close failed")
	}
	if r := cq.Message.ReplyToMessage; r != nil {
		if err := b.tg.Delete(ctx, chatID, r.MessageID); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
	b.answer(ctx, cq, "")
}

func (b *Bot) answer(ctx context.Context, cq *tgbotapi.CallbackQuery, text string) {
	if err := b.tg.Answer(ctx, cq.ID, text); err != nil {
		logger := logx.FromCtx(ctx)
		logger.Debug().Err(err).Msg("callback answer failed")
	}
}
