package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/settings"
)

var fieldLabel = map[settings.Field]string{
	settings.FieldCaption:   "caption",
	settings.FieldPrefix:    "prefix",
	settings.FieldSuffix:    "suffix",
	settings.FieldThumbnail: "thumbnail",
}

// uploadKeyboard marks the current choice.
func uploadKeyboard(current settings.UploadType) tgbotapi.InlineKeyboardMarkup {
	doc, vid := "Document", "Video"
	if current == settings.UploadVideo {
		vid += " ✅"
	} else {
		doc += " ✅"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(doc, cbUploadDocument),
			tgbotapi.NewInlineKeyboardButtonData(vid, cbUploadVideo),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Close", cbClose)),
	)
}

func uploadText(t settings.UploadType) string {
	name := "Document"
	if t == settings.UploadVideo {
		name = "Video"
	}
	return "Your current upload format : " + name + "."
}

func (b *Bot) setField(ctx context.Context, m *tgbotapi.Message, f settings.Field, usage string) {
	value := strings.TrimSpace(m.CommandArguments())
	if value == "" {
		b.reply(ctx, m, usage)
		return
	}
	b.register(ctx, m.From)
	if err := b.store.Set(ctx, m.From.ID, f, value); err != nil {
		if errors.Is(err, settings.ErrBadValue) {
			b.reply(ctx, m, "❌ That value is not allowed.")
			return
		}
		b.fail(ctx, m, "set "+string(f), err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("✅ Your %s has been saved.", fieldLabel[f]))
}

func (b *Bot) seeField(ctx context.Context, m *tgbotapi.Message, f settings.Field) {
	s, err := b.store.Get(ctx, m.From.ID)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		b.fail(ctx, m, "get settings", err)
		return
	}
	var value string
	switch f {
	case settings.FieldCaption:
		value = string(s.Caption)
	case settings.FieldPrefix:
		value = s.Prefix
	case settings.FieldSuffix:
		value = s.Suffix
	}
	if value == "" {
		b.reply(ctx, m, fmt.Sprintf("😔 You don't have any %s.", fieldLabel[f]))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("Your %s:\n\n%s", fieldLabel[f], value))
}

func (b *Bot) clearField(ctx context.Context, m *tgbotapi.Message, f settings.Field) {
	err := b.store.Clear(ctx, m.From.ID, f)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		b.fail(ctx, m, "clear "+string(f), err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("❌️ Your %s has been deleted.", fieldLabel[f]))
}

func (b *Bot) onPhoto(ctx context.Context, m *tgbotapi.Message) {
	largest := m.Photo[len(m.Photo)-1]
	b.register(ctx, m.From)
	if err := b.store.Set(ctx, m.From.ID, settings.FieldThumbnail, largest.FileID); err != nil {
		b.fail(ctx, m, "set thumbnail", err)
		return
	}
	b.reply(ctx, m, "✅ Thumbnail saved.")
}

func (b *Bot) viewThumb(ctx context.Context, m *tgbotapi.Message) {
	s, err := b.store.Get(ctx, m.From.ID)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		b.fail(ctx, m, "get settings", err)
		return
	}
	if s.Thumbnail == "" {
		b.reply(ctx, m, "😔 You don't have any thumbnail.")
		return
	}
	if _, err := b.tg.SendPhotoID(ctx, m.Chat.ID, m.MessageID, s.Thumbnail, "Your thumbnail"); err != nil {
		b.fail(ctx, m, "send thumbnail", err)
	}
}

func (b *Bot) onUpload(ctx context.Context, m *tgbotapi.Message) {
	b.register(ctx, m.From)
	s, err := b.store.Get(ctx, m.From.ID)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		b.fail(ctx, m, "get settings", err)
		return
	}
	if _, err := b.tg.SendKeyboard(ctx, m.Chat.ID, m.MessageID, uploadText(s.UploadType), uploadKeyboard(s.UploadType)); err != nil {
		b.fail(ctx, m, "upload keyboard", err)
	}
}

func (b *Bot) setUploadType(ctx context.Context, m *tgbotapi.Message, t settings.UploadType) {
	b.register(ctx, m.From)
	if err := b.store.Set(ctx, m.From.ID, settings.FieldUploadType, string(t)); err != nil {
		b.fail(ctx, m, "set upload type", err)
		return
	}
	b.reply(ctx, m, "✅ "+uploadText(t))
}
