package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/media"
)

// ReferenceFromMessage describes the video, document or audio carried by m.
func ReferenceFromMessage(m *tgbotapi.Message) (media.Reference, bool) {
	if m == nil {
		return media.Reference{}, false
	}
	switch {
	case m.Video != nil:
		v := m.Video
		return media.Reference{
			FileID:           v.FileID,
			Kind:             media.KindVideo,
			DeclaredDuration: v.Duration,
			DisplayName:      v.FileName,
			MimeType:         v.MimeType,
			Size:             int64(v.FileSize),
		}, true
	case m.Document != nil:
		d := m.Document
		return media.Reference{
			FileID:      d.FileID,
			Kind:        media.KindDocument,
			DisplayName: d.FileName,
			MimeType:    d.MimeType,
			Size:        int64(d.FileSize),
		}, true
	case m.Audio != nil:
		a := m.Audio
		return media.Reference{
			FileID:           a.FileID,
			Kind:             media.KindAudio,
			DeclaredDuration: a.Duration,
			DisplayName:      a.FileName,
			MimeType:         a.MimeType,
			Size:             int64(a.FileSize),
		}, true
	}
	return media.Reference{}, false
}
