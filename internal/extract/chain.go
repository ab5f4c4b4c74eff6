package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/wapuda/metanix/internal/logx"
)

// Extract cuts win out of the job's media, trying each applicable tier in
// order until one produces a nonempty file. Intermediate files are removed
// whatever the outcome; on failure the output is removed too.
func (e *Extractor) Extract(ctx context.Context, job Job, win Window, dur Duration) (*Result, error) {
	obs := job.observer()
	logger := logx.FromCtx(ctx)
	out := job.Workspace.Path("segment." + job.Request.OutputExt())

	url, urlErr := job.Source.URL(ctx)
	var errs []error
	if urlErr != nil {
		errs = append(errs, fmt.Errorf("resolve url: %w", urlErr))
	}

	for _, tier := range e.tiers(url, urlErr) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		obs.Tier(tier)

		w, d, err := e.runTier(ctx, tier, job, url, win, dur, out)
		if err == nil {
			var size int64
			if size, err = outputSize(out); err == nil {
				logger.Info().Stringer("tier", tier).Stringer("window", w).Int64("bytes", size).Msg("segment ready")
				return &Result{Path: out, Size: size, Tier: tier, Window: w, Duration: d}, nil
			}
		}
		_ = os.Remove(out)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		if errors.Is(err, ErrDurationExceeded) {
			return nil, err
		}
		logger.Warn().Err(err).Stringer("tier", tier).Msg("tier failed")
		errs = append(errs, fmt.Errorf("%s: %w", tier, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, errors.Join(errs...))
}

// tiers lists the strategies that can run for a source. The download tier
// is always applicable; the other two need a resolvable URL and the
// byte-range tier also needs HTTP and a bitrate estimate.
func (e *Extractor) tiers(url string, urlErr error) []Tier {
	if urlErr != nil {
		return []Tier{TierDownload}
	}
	tiers := []Tier{TierDirect}
	if e.ranges != nil && e.bps > 0 && isHTTP(url) {
		tiers = append(tiers, TierByteRange)
	}
	return append(tiers, TierDownload)
}

func (e *Extractor) runTier(ctx context.Context, tier Tier, job Job, url string, win Window, dur Duration, out string) (Window, Duration, error) {
	switch tier {
	case TierDirect:
		return win, dur, e.trim.Trim(ctx, url, win.Start, win.Length, out)
	case TierByteRange:
		return win, dur, e.byteRange(ctx, job, url, win, out)
	default:
		return e.download(ctx, job, win, dur, out)
	}
}

// byteRange fetches the bytes estimated to cover the window plus padding and
// trims the padding back off locally.
func (e *Extractor) byteRange(ctx context.Context, job Job, url string, win Window, out string) error {
	lead := math.Min(e.pad, win.Start)
	from := int64((win.Start - lead) * float64(e.bps))
	to := int64((win.End() + e.pad) * float64(e.bps))

	part := job.Workspace.Path("part." + sourceExt(job))
	defer os.Remove(part)

	if _, err := e.ranges.Range(ctx, url, from, to, part); err != nil {
		return fmt.Errorf("fetch bytes %d-%d: %w", from, to, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.trim.Trim(ctx, part, lead, win.Length, out)
}

// download fetches the whole file. When the duration was only assumed, the
// local copy is probed and the window re-checked against the real length.
func (e *Extractor) download(ctx context.Context, job Job, win Window, dur Duration, out string) (Window, Duration, error) {
	local := job.Workspace.Path("source." + sourceExt(job))
	defer os.Remove(local)

	obs := job.observer()
	if err := job.Source.Download(ctx, local, obs.Progress); err != nil {
		return win, dur, err
	}
	if err := ctx.Err(); err != nil {
		return win, dur, err
	}

	if dur.Confidence == Assumed {
		actual, err := e.probe.Duration(ctx, local)
		if err == nil && actual > 0 {
			dur = Duration{Seconds: actual, Confidence: Probed}
			if win, err = e.refit(job.Request, win, actual); err != nil {
				return win, dur, err
			}
		} else {
			logger := logx.FromCtx(ctx)
			logger.Warn().Err(err).Msg("local probe failed, keeping assumed window")
		}
	}
	return win, dur, e.trim.Trim(ctx, local, win.Start, win.Length, out)
}

// refit re-checks a window chosen against an assumed duration.
func (e *Extractor) refit(req Request, win Window, total float64) (Window, error) {
	if req.Mode == ModeRange {
		if win.End() > total {
			return win, &ExceededError{Requested: win.End(), Total: total, Range: true}
		}
		return win, nil
	}
	if win.Length > total {
		return win, &ExceededError{Requested: win.Length, Total: total}
	}
	if win.End() > total {
		win.Start = e.randomStart(total, win.Length)
	}
	return win, nil
}

func outputSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEmptyOutput, err)
	}
	if fi.Size() == 0 {
		return 0, ErrEmptyOutput
	}
	return fi.Size(), nil
}

func sourceExt(job Job) string {
	if ext := job.Ref.Ext(); ext != "" {
		return ext
	}
	return "bin"
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
