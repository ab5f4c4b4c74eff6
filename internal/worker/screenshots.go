package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/telegram"
)

// ErrTooShort means the media cannot fit the requested screenshots.
var ErrTooShort = errors.New("media too short for the requested screenshots")

const screenshotGap = 2 // seconds between any two picks

// PickTimestamps draws n distinct whole seconds at least two seconds apart,
// sorted ascending. The first and last second are skipped unless that leaves
// too little room for n picks. Every valid set is equally likely.
func PickTimestamps(total float64, n int, intn func(int) int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("screenshot count %d: %w", n, extract.ErrInvalidSample)
	}
	secs := int(math.Floor(total))
	lo := min(1, secs/10)
	hi := secs - lo

	// Shrink the line by the mandatory gaps, choose n distinct points
	// on it, then spread them back out.
	slots := gapSlots(lo, hi, n)
	if slots < n && lo > 0 {
		lo, hi = 0, secs
		slots = gapSlots(lo, hi, n)
	}
	if slots < n {
		return nil, fmt.Errorf("%d screenshots in %ds: %w", n, secs, ErrTooShort)
	}
	picks := sampleDistinct(slots, n, intn)
	sort.Ints(picks)
	for i := range picks {
		picks[i] = lo + picks[i] + i*(screenshotGap-1)
	}
	return picks, nil
}

// gapSlots is how many positions remain on [lo, hi] once n-1 gaps are removed.
func gapSlots(lo, hi, n int) int {
	if hi < lo {
		return 0
	}
	return hi - lo + 1 - (n-1)*(screenshotGap-1)
}

// sampleDistinct returns k distinct values from [0, n) by partial Fisher-Yates
// over a sparse permutation.
func sampleDistinct(n, k int, intn func(int) int) []int {
	swapped := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		j := i + intn(n-i)
		out[i] = at(j)
		swapped[j] = at(i)
	}
	return out
}

// HandleScreenshots serves media:screenshots.
func (w *Worker) HandleScreenshots(ctx context.Context, t *asynq.Task) error {
	var p jobs.ScreenshotsPayload
	if err := jobs.Decode(t, &p); err != nil {
		return err
	}
	kind := t.Type()
	ctx, status, ws, err := w.begin(ctx, p.Envelope)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	defer ws.Close()

	photos, err := w.screenshots(ctx, p, ws, status)
	if err != nil {
		return w.fail(ctx, p.Envelope, status, kind, err)
	}
	status.Phase(extract.PhaseUploading, "")
	for start := 0; start < len(photos); start += 10 {
		end := min(start+10, len(photos))
		if err := w.tg.SendPhotos(ctx, p.ChatID, p.ReplyToID, photos[start:end]); err != nil {
			return w.fail(ctx, p.Envelope, status, kind, fmt.Errorf("upload: %w", err))
		}
	}
	w.finish(ctx, p.Envelope, status, kind)
	return nil
}

// screenshots grabs frames from the remote file when it is reachable and
// falls back to a full download when it is not.
func (w *Worker) screenshots(ctx context.Context, p jobs.ScreenshotsPayload, ws *extract.Workspace, status *telegram.Status) ([]telegram.Photo, error) {
	logger := logx.FromCtx(ctx)
	src := w.tg.Source(p.Media)
	status.Phase(extract.PhaseDurationResolving, "")

	if url, err := src.URL(ctx); err == nil {
		photos, err := w.grab(ctx, p, ws, url)
		if err == nil {
			return photos, nil
		}
		if errors.Is(err, ErrTooShort) || errors.Is(err, extract.ErrInvalidSample) || ctx.Err() != nil {
			return nil, err
		}
		logger.Warn().Err(err).Msg("remote frame grab failed, downloading")
	}

	status.Tier(extract.TierDownload)
	local := ws.Path("source." + sourceExt(p.Envelope))
	if err := src.Download(ctx, local, status.Progress); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return w.grab(ctx, p, ws, local)
}

func (w *Worker) grab(ctx context.Context, p jobs.ScreenshotsPayload, ws *extract.Workspace, input string) ([]telegram.Photo, error) {
	total, err := w.duration(ctx, p.Envelope, input)
	if err != nil {
		return nil, err
	}
	stamps, err := PickTimestamps(total, p.Count, w.intn)
	if err != nil {
		return nil, err
	}

	photos := make([]telegram.Photo, 0, len(stamps))
	for i, sec := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", extract.ErrCancelled, err)
		}
		out := ws.Path(fmt.Sprintf("ss_%02d.jpg", i+1))
		if err := w.tools.Frame(ctx, input, float64(sec), out); err != nil {
			return nil, fmt.Errorf("frame at %ds: %w", sec, err)
		}
		photos = append(photos, telegram.Photo{
			Path:    out,
			Caption: fmt.Sprintf("Screenshot %d/%d at %s", i+1, len(stamps), extract.FormatClock(sec)),
		})
	}
	return photos, nil
}

func (w *Worker) duration(ctx context.Context, env jobs.Envelope, input string) (float64, error) {
	if secs, ok := env.Media.TrustedDuration(); ok {
		return float64(secs), nil
	}
	secs, err := w.tools.Duration(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", extract.ErrProbeFailed, err)
	}
	return secs, nil
}

func sourceExt(env jobs.Envelope) string {
	if ext := env.Media.Ext(); ext != "" {
		return ext
	}
	return "bin"
}
