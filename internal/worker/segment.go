package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/filebin"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/media"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
)

// HandleSegment serves media:sample and media:trim.
func (w *Worker) HandleSegment(ctx context.Context, t *asynq.Task) error {
	var p jobs.SegmentPayload
	if err := jobs.Decode(t, &p); err != nil {
		return err
	}
	kind := t.Type()
	ctx, status, ws, err := w.begin(ctx, p.Envelope)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	defer ws.Close()

	res, err := w.ext.Run(ctx, extract.Job{
		Ref:       p.Media,
		Source:    w.tg.Source(p.Media),
		Request:   p.Request,
		Workspace: ws,
		Observer:  status,
	})
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}

	status.Phase(extract.PhaseUploading, "")
	if err := w.deliver(ctx, p, ws, res); err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	status.Phase(extract.PhaseDone, "")
	w.finish(ctx, p.Envelope, status, kind)
	return nil
}

func (w *Worker) userSettings(ctx context.Context, user int64) settings.Settings {
	s, err := w.store.Get(ctx, user)
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		logger := logx.FromCtx(ctx)
		logger.Warn().Err(err).Msg("settings unavailable, using defaults")
	}
	return s
}

func (w *Worker) deliver(ctx context.Context, p jobs.SegmentPayload, ws *extract.Workspace, res *extract.Result) error {
	logger := logx.FromCtx(ctx)
	set := w.userSettings(ctx, p.UserID)
	name := settings.DecorateName(SegmentName(p.Media, p.Request.Mode, p.Request.OutputExt()), set.Prefix, set.Suffix)

	caption := DefaultCaption(p.Media, p.Request.Mode, res.Window)
	if set.Caption != "" {
		caption = set.Caption.Render(name, res.Size, time.Duration(res.Window.Length*float64(time.Second)))
	}

	if res.Size > w.cfg.TelegramUploadMaxByte {
		return w.deliverLink(ctx, p.Envelope, res, name, caption)
	}

	var thumb string
	if set.Thumbnail != "" {
		thumb = ws.Path("thumb.jpg")
		if err := w.tg.FetchFile(ctx, set.Thumbnail, thumb); err != nil {
			logger.Warn().Err(err).Msg("thumbnail unavailable")
			thumb = ""
		}
	}

	_, err := w.tg.SendFile(ctx, telegram.File{
		ChatID:    p.ChatID,
		ReplyTo:   p.ReplyToID,
		Path:      res.Path,
		Name:      name,
		Caption:   caption,
		ThumbPath: thumb,
		Duration:  int(res.Window.Length),
		As:        uploadAs(set.UploadType, p.Media.Kind),
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

func (w *Worker) deliverLink(ctx context.Context, env jobs.Envelope, res *extract.Result, name, caption string) error {
	if w.bin == nil {
		return fmt.Errorf("%d bytes: %w", res.Size, ErrTooLarge)
	}
	fileURL, binURL, err := w.bin.Upload(ctx, filebin.BinName(w.cfg.FilebinBinPrefix, env.RequestID), res.Path, name)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s\n\nThe file is too large for Telegram.\nDownload: %s\n(Backup link to bin: %s)\nNote: link expires in ~6 days.", caption, fileURL, binURL)
	_, err = w.tg.SendText(ctx, env.ChatID, env.ReplyToID, text)
	return err
}

func uploadAs(t settings.UploadType, kind media.Kind) telegram.As {
	if t != settings.UploadVideo {
		return telegram.AsDocument
	}
	if kind == media.KindAudio {
		return telegram.AsAudio
	}
	return telegram.AsVideo
}

// SegmentName names the result after the source: clip.mkv -> clip_sample.mp4.
func SegmentName(ref media.Reference, mode extract.Mode, ext string) string {
	base := strings.TrimSuffix(ref.Name(), filepath.Ext(ref.Name()))
	tag := "sample"
	if mode == extract.ModeRange {
		tag = "trimmed"
	}
	return base + "_" + tag + "." + ext
}

// DefaultCaption describes the window when the user has no caption template.
func DefaultCaption(ref media.Reference, mode extract.Mode, win extract.Window) string {
	if mode == extract.ModeRange {
		return fmt.Sprintf("Trimmed from %s to %s of %s",
			extract.FormatClock(int(win.Start)), extract.FormatClock(int(win.End())), ref.Name())
	}
	return fmt.Sprintf("Random %.0fs sample (starts at %s)", win.Length, extract.FormatClock(int(win.Start)))
}
