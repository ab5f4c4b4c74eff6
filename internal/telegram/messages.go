package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendKeyboard replies with text and an inline keyboard.
func (p *Platform) SendKeyboard(ctx context.Context, chatID int64, replyTo int, text string, kb tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyToMessageID = replyTo
	m.DisableWebPagePreview = true
	m.ReplyMarkup = kb
	return p.send(ctx, m)
}

// EditKeyboard replaces both the text and the keyboard of a message.
func (p *Platform) EditKeyboard(ctx context.Context, chatID int64, msgID int, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	_, err := p.send(ctx, tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, kb))
	if isNotModified(err) {
		return nil
	}
	return err
}

// SendPhotoID resends an already uploaded photo.
func (p *Platform) SendPhotoID(ctx context.Context, chatID int64, replyTo int, fileID, caption string) (tgbotapi.Message, error) {
	m := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	m.Caption = caption
	m.ReplyToMessageID = replyTo
	return p.send(ctx, m)
}

// Answer acknowledges a callback query, optionally with a toast.
func (p *Platform) Answer(ctx context.Context, callbackID, text string) error {
	return p.request(ctx, tgbotapi.NewCallback(callbackID, text))
}
