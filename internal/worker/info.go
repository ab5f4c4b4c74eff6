package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
)

// maxInfoText is the longest report sent inline; longer ones go as a file.
const maxInfoText = 4000

// HandleInfo serves media:info.
func (w *Worker) HandleInfo(ctx context.Context, t *asynq.Task) error {
	var p jobs.InfoPayload
	if err := jobs.Decode(t, &p); err != nil {
		return err
	}
	kind := t.Type()
	ctx, status, ws, err := w.begin(ctx, p.Envelope)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	defer ws.Close()

	status.Update("🔎 Reading media info…", true)
	url, err := w.tg.Source(p.Media).URL(ctx)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	report, err := w.MediaReport(ctx, ws, url)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}

	text := string(report)
	if len(text) <= maxInfoText {
		_, err = w.tg.SendText(ctx, p.ChatID, p.ReplyToID, text)
	} else {
		_, err = w.tg.SendBytes(ctx, p.ChatID, p.ReplyToID, "mediainfo.json", report, "📄 Media info: "+p.Media.Name())
	}
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, fmt.Errorf("upload: %w", err))
	}
	w.finish(ctx, p.Envelope, status, kind)
	return nil
}

// MediaReport describes the media at url as indented JSON. Remote files are
// probed from their first MediaInfoBytes; if that fails, mediainfo reads the
// URL itself.
func (w *Worker) MediaReport(ctx context.Context, ws *extract.Workspace, url string) ([]byte, error) {
	logger := logx.FromCtx(ctx)

	input := url
	if isHTTP(url) {
		head := ws.Path("head.bin")
		defer os.Remove(head)
		if _, err := w.ranges.Range(ctx, url, 0, w.cfg.MediaInfoBytes-1, head); err != nil {
			logger.Warn().Err(err).Msg("header fetch failed")
			head = ""
		}
		input = head
	}

	if input != "" {
		_, raw, err := w.tools.Probe(ctx, input)
		if err == nil {
			return annotate(raw, "ffprobe", w.now())
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", extract.ErrCancelled, ctx.Err())
		}
		logger.Warn().Err(err).Msg("ffprobe on header failed, trying mediainfo")
	}

	raw, err := w.tools.MediaInfo(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("media info: %w", err)
	}
	return annotate(raw, "mediainfo", w.now())
}

// annotate tags a tool's JSON with how and when it was produced.
func annotate(raw []byte, method string, at time.Time) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s output: %w", method, err)
	}
	doc["_extraction_method"] = method
	doc["_extraction_timestamp"] = at.Format(time.RFC3339)
	return json.MarshalIndent(doc, "", "  ")
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
