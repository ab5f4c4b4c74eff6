// Package extract cuts a duration-bounded segment out of a remote media file.
//
// A request moves through DurationResolving, WindowSelected and Extracting; the
// extraction itself tries three strategies in order of cost: trimming the remote
// file directly, trimming a byte range fetched around the window, and trimming a
// full local download. The first strategy that yields a nonempty file wins.
package extract

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/wapuda/metanix/internal/fetch"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/media"
)

// Prober reads a container duration in seconds from a path or URL.
type Prober interface {
	Duration(ctx context.Context, input string) (float64, error)
}

// Trimmer stream-copies [start, start+length) of input into output.
type Trimmer interface {
	Trim(ctx context.Context, input string, start, length float64, output string) error
}

// RangeFetcher downloads bytes [from, to] of url into dst.
type RangeFetcher interface {
	Range(ctx context.Context, url string, from, to int64, dst string) (int64, error)
}

// Source is the remote file being cut. URL may be resolved lazily and may
// return a local path when the file is not remote.
type Source interface {
	URL(ctx context.Context) (string, error)
	Download(ctx context.Context, dst string, progress fetch.ProgressFunc) error
}

// Confidence qualifies how far a Duration can be trusted.
type Confidence string

const (
	Declared Confidence = "declared"
	Probed   Confidence = "probed"
	Assumed  Confidence = "assumed"
)

// Duration is a total media length with its provenance.
type Duration struct {
	Seconds    float64
	Confidence Confidence
}

// Window is the resolved segment to cut.
type Window struct {
	Start  float64
	Length float64
}

func (w Window) End() float64 { return w.Start + w.Length }

func (w Window) String() string {
	return fmt.Sprintf("%s+%.0fs", FormatClock(int(w.Start)), w.Length)
}

const (
	defaultAssumed        = time.Hour
	defaultBytesPerSecond = 1_000_000
	defaultPadding        = 5 * time.Second
)

// Extractor holds the tools and tuning shared by all requests.
// It keeps no per-request state and is safe for concurrent use.
type Extractor struct {
	probe  Prober
	trim   Trimmer
	ranges RangeFetcher

	assumed float64
	bps     int64
	pad     float64
	intn    func(n int) int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAssumedDuration sets the bound used when no duration can be discovered.
func WithAssumedDuration(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.assumed = d.Seconds()
		}
	}
}

// WithBytesPerSecond sets the bitrate estimate used to place the byte range.
// Zero disables the byte-range tier.
func WithBytesPerSecond(n int64) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.bps = n
		}
	}
}

// WithPadding sets the margin fetched on both sides of the window.
func WithPadding(d time.Duration) Option {
	return func(e *Extractor) {
		if d >= 0 {
			e.pad = d.Seconds()
		}
	}
}

// WithRand replaces the start-position source (for testing).
// fn(n) must return a value in [0, n).
func WithRand(fn func(n int) int) Option {
	return func(e *Extractor) { e.intn = fn }
}

// New builds an Extractor. ranges may be nil to disable the byte-range tier.
func New(probe Prober, trim Trimmer, ranges RangeFetcher, opts ...Option) *Extractor {
	e := &Extractor{
		probe:   probe,
		trim:    trim,
		ranges:  ranges,
		assumed: defaultAssumed.Seconds(),
		bps:     defaultBytesPerSecond,
		pad:     defaultPadding.Seconds(),
		intn:    rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveDuration finds the total length of the media with as little transfer
// as possible: trusted platform metadata, then a header probe of the remote
// file, then the assumed bound. It never fails.
func (e *Extractor) ResolveDuration(ctx context.Context, ref media.Reference, src Source) Duration {
	if secs, ok := ref.TrustedDuration(); ok {
		return Duration{Seconds: float64(secs), Confidence: Declared}
	}

	logger := logx.FromCtx(ctx)
	url, err := src.URL(ctx)
	if err == nil {
		var secs float64
		secs, err = e.probe.Duration(ctx, url)
		if err == nil && secs > 0 {
			return Duration{Seconds: secs, Confidence: Probed}
		}
		if err == nil {
			err = fmt.Errorf("non-positive duration %v", secs)
		}
	}
	logger.Warn().Err(fmt.Errorf("%w: %w", ErrProbeFailed, err)).
		Float64("assumed_s", e.assumed).
		Msg("duration unknown, assuming upper bound")
	return Duration{Seconds: e.assumed, Confidence: Assumed}
}

// ChooseWindow resolves req against the total duration. Bounds are enforced
// only when the duration is not assumed.
func (e *Extractor) ChooseWindow(req Request, d Duration) (Window, error) {
	if err := req.Validate(); err != nil {
		return Window{}, err
	}
	strict := d.Confidence != Assumed

	switch req.Mode {
	case ModeSample:
		length := float64(req.SampleSeconds)
		if strict && length > d.Seconds {
			return Window{}, &ExceededError{Requested: length, Total: d.Seconds}
		}
		return Window{Start: e.randomStart(d.Seconds, length), Length: length}, nil
	default:
		start, end, _ := req.Bounds()
		if strict && float64(end) > d.Seconds {
			return Window{}, &ExceededError{Requested: float64(end), Total: d.Seconds, Range: true}
		}
		return Window{Start: float64(start), Length: float64(end - start)}, nil
	}
}

// randomStart picks a whole second uniformly in [0, floor(total-length)].
func (e *Extractor) randomStart(total, length float64) float64 {
	maxStart := int(math.Floor(total - length))
	if maxStart <= 0 {
		return 0
	}
	return float64(e.intn(maxStart + 1))
}
