package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/wapuda/metanix/internal/media"
)

// Phase is the request state reported to observers.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDurationResolving
	PhaseWindowSelected
	PhaseExtracting
	PhaseUploading
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDurationResolving:
		return "duration_resolving"
	case PhaseWindowSelected:
		return "window_selected"
	case PhaseExtracting:
		return "extracting"
	case PhaseUploading:
		return "uploading"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Tier is one strategy of the extraction chain, cheapest first.
type Tier int

const (
	TierDirect Tier = iota + 1
	TierByteRange
	TierDownload
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierByteRange:
		return "byte_range"
	case TierDownload:
		return "download"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Observer receives progress for one request. Calls come from the request's
// own goroutine.
type Observer interface {
	Phase(p Phase, detail string)
	Tier(t Tier)
	Progress(done, total int64)
}

type nopObserver struct{}

func (nopObserver) Phase(Phase, string) {}
func (nopObserver) Tier(Tier) {}
func (nopObserver) Progress(int64, int64) {}

// Job bundles everything one request needs.
type Job struct {
	Ref       media.Reference
	Source    Source
	Request   Request
	Workspace *Workspace
	Observer  Observer
}

func (j Job) observer() Observer {
	if j.Observer == nil {
		return nopObserver{}
	}
	return j.Observer
}

// Result is the produced segment. Path lives inside the job's workspace.
type Result struct {
	Path     string
	Size     int64
	Tier     Tier
	Window   Window
	Duration Duration
}

// Run resolves the duration, picks a window and extracts it. Input errors
// are reported before any tool runs. The observer sees PhaseAborted with the
// error text on every failure.
func (e *Extractor) Run(ctx context.Context, job Job) (*Result, error) {
	obs := job.observer()
	res, err := e.run(ctx, job, obs)
	if err != nil {
		obs.Phase(PhaseAborted, err.Error())
		return nil, err
	}
	return res, nil
}

func (e *Extractor) run(ctx context.Context, job Job, obs Observer) (*Result, error) {
	if err := job.Request.Validate(); err != nil {
		return nil, err
	}
	if job.Workspace == nil || job.Source == nil {
		return nil, errors.New("extract: job needs a workspace and a source")
	}

	obs.Phase(PhaseDurationResolving, "")
	dur := e.ResolveDuration(ctx, job.Ref, job.Source)
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	win, err := e.ChooseWindow(job.Request, dur)
	if err != nil {
		return nil, err
	}
	obs.Phase(PhaseWindowSelected, win.String())

	obs.Phase(PhaseExtracting, "")
	return e.Extract(ctx, job, win, dur)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
