package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// As selects how a file is presented in the chat.
type As string

const (
	AsDocument As = "document"
	AsVideo    As = "video"
	AsAudio    As = "audio"
)

// File is a local result to upload.
type File struct {
	ChatID    int64
	ReplyTo   int
	Path      string
	Name      string // shown to the user; defaults to the base of Path
	Caption   string
	ThumbPath string // local JPEG, optional
	Duration  int    // seconds, for video and audio
	As        As
}

// SendFile uploads f. The file is reopened on every flood-wait retry.
func (p *Platform) SendFile(ctx context.Context, f File) (tgbotapi.Message, error) {
	return retryFlood(ctx, p.retry, func() (tgbotapi.Message, error) {
		in, err := os.Open(f.Path)
		if err != nil {
			return tgbotapi.Message{}, err
		}
		defer in.Close()

		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		data := tgbotapi.FileReader{Name: name, Reader: in}
		var thumb tgbotapi.RequestFileData
		if f.ThumbPath != "" {
			thumb = tgbotapi.FilePath(f.ThumbPath)
		}

		var c tgbotapi.Chattable
		switch f.As {
		case AsVideo:
			v := tgbotapi.NewVideo(f.ChatID, data)
			v.Caption = f.Caption
			v.ReplyToMessageID = f.ReplyTo
			v.Duration = f.Duration
			v.SupportsStreaming = true
			v.Thumb = thumb
			c = v
		case AsAudio:
			a := tgbotapi.NewAudio(f.ChatID, data)
			a.Caption = f.Caption
			a.ReplyToMessageID = f.ReplyTo
			a.Duration = f.Duration
			a.Thumb = thumb
			c = a
		default:
			d := tgbotapi.NewDocument(f.ChatID, data)
			d.Caption = f.Caption
			d.ReplyToMessageID = f.ReplyTo
			d.Thumb = thumb
			c = d
		}
		return p.client.Send(c)
	})
}

// Photo is one image of a media group.
type Photo struct {
	Path    string
	Caption string
}

// SendPhotos sends up to ten photos as one album, or a lone photo as a
// plain message.
func (p *Platform) SendPhotos(ctx context.Context, chatID int64, replyTo int, photos []Photo) error {
	if len(photos) == 0 {
		return nil
	}
	if len(photos) > 10 {
		return fmt.Errorf("media group of %d photos exceeds 10", len(photos))
	}
	// Albums need at least two items.
	if len(photos) == 1 {
		m := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(photos[0].Path))
		m.Caption = photos[0].Caption
		m.ReplyToMessageID = replyTo
		_, err := p.send(ctx, m)
		return err
	}
	items := make([]interface{}, 0, len(photos))
	for _, ph := range photos {
		m := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(ph.Path))
		m.Caption = ph.Caption
		items = append(items, m)
	}
	group := tgbotapi.NewMediaGroup(chatID, items)
	group.ReplyToMessageID = replyTo
	_, err := retryFlood(ctx, p.retry, func() ([]tgbotapi.Message, error) {
		return p.client.SendMediaGroup(group)
	})
	return err
}

// SendText replies with a plain message.
func (p *Platform) SendText(ctx context.Context, chatID int64, replyTo int, text string) (tgbotapi.Message, error) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyToMessageID = replyTo
	m.DisableWebPagePreview = true
	return p.send(ctx, m)
}

// SendBytes uploads data as a document named name.
func (p *Platform) SendBytes(ctx context.Context, chatID int64, replyTo int, name string, data []byte, caption string) (tgbotapi.Message, error) {
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	d.Caption = caption
	d.ReplyToMessageID = replyTo
	return p.send(ctx, d)
}

// Edit replaces the text of a message and drops its keyboard.
func (p *Platform) Edit(ctx context.Context, chatID int64, msgID int, text string) error {
	_, err := p.send(ctx, tgbotapi.NewEditMessageText(chatID, msgID, text))
	if isNotModified(err) {
		return nil
	}
	return err
}

func (p *Platform) Delete(ctx context.Context, chatID int64, msgID int) error {
	return p.request(ctx, tgbotapi.NewDeleteMessage(chatID, msgID))
}
