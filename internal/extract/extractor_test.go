package extract

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/wapuda/metanix/internal/media"
)

const remoteURL = "https://files.example/file/bot/videos/clip.mkv"

func videoRef(declared int) media.Reference {
	return media.Reference{FileID: "f1", Kind: media.KindVideo, DeclaredDuration: declared, DisplayName: "clip.mkv"}
}

func docRef() media.Reference {
	return media.Reference{FileID: "f1", Kind: media.KindDocument, DeclaredDuration: 999, DisplayName: "clip.mkv"}
}

func TestResolveDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ref       media.Reference
		src       *fakeSource
		probe     *fakeProber
		want      Duration
		wantProbe int
	}{
		{
			name:  "declared video is trusted",
			ref:   videoRef(120),
			src:   &fakeSource{url: remoteURL},
			probe: &fakeProber{},
			want:  Duration{Seconds: 120, Confidence: Declared},
		},
		{
			name:      "document duration is probed",
			ref:       docRef(),
			src:       &fakeSource{url: remoteURL},
			probe:     &fakeProber{secs: map[string]float64{remoteURL: 61.5}},
			want:      Duration{Seconds: 61.5, Confidence: Probed},
			wantProbe: 1,
		},
		{
			name:      "probe failure falls back to assumed",
			ref:       docRef(),
			src:       &fakeSource{url: remoteURL},
			probe:     &fakeProber{err: errors.New("moov atom not found")},
			want:      Duration{Seconds: 3600, Confidence: Assumed},
			wantProbe: 1,
		},
		{
			name:  "unresolvable url falls back to assumed",
			ref:   videoRef(0),
			src:   &fakeSource{urlErr: errors.New("file is too big")},
			probe: &fakeProber{},
			want:  Duration{Seconds: 3600, Confidence: Assumed},
		},
		{
			name:      "zero probed duration is not trusted",
			ref:       docRef(),
			src:       &fakeSource{url: remoteURL},
			probe:     &fakeProber{secs: map[string]float64{remoteURL: 0}},
			want:      Duration{Seconds: 3600, Confidence: Assumed},
			wantProbe: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := New(tt.probe, &fakeTrimmer{}, nil)
			got := e.ResolveDuration(context.Background(), tt.ref, tt.src)
			if got != tt.want {
				t.Errorf("ResolveDuration() = %+v, want %+v", got, tt.want)
			}
			if len(tt.probe.calls) != tt.wantProbe {
				t.Errorf("probe calls = %d, want %d", len(tt.probe.calls), tt.wantProbe)
			}
		})
	}
}

func TestChooseWindow(t *testing.T) {
	t.Parallel()

	maxRand := func(n int) int { return n - 1 }
	e := New(&fakeProber{}, &fakeTrimmer{}, nil, WithRand(maxRand))

	tests := []struct {
		name    string
		req     Request
		dur     Duration
		want    Window
		wantErr error
	}{
		{
			name: "sample fits",
			req:  SampleRequest(30),
			dur:  Duration{Seconds: 100.7, Confidence: Declared},
			want: Window{Start: 70, Length: 30},
		},
		{
			name: "sample equal to duration starts at zero",
			req:  SampleRequest(100),
			dur:  Duration{Seconds: 100, Confidence: Probed},
			want: Window{Start: 0, Length: 100},
		},
		{
			name:    "sample longer than duration",
			req:     SampleRequest(200),
			dur:     Duration{Seconds: 120, Confidence: Declared},
			wantErr: ErrDurationExceeded,
		},
		{
			name: "range fits",
			req:  RangeRequest("00:01:40", "130"),
			dur:  Duration{Seconds: 600, Confidence: Probed},
			want: Window{Start: 100, Length: 30},
		},
		{
			name: "range ending exactly at duration",
			req:  RangeRequest("500", "600"),
			dur:  Duration{Seconds: 600, Confidence: Probed},
			want: Window{Start: 500, Length: 100},
		},
		{
			name:    "range past duration",
			req:     RangeRequest("500", "601"),
			dur:     Duration{Seconds: 600, Confidence: Declared},
			wantErr: ErrDurationExceeded,
		},
		{
			name: "assumed duration does not bound a range",
			req:  RangeRequest("4000", "4010"),
			dur:  Duration{Seconds: 3600, Confidence: Assumed},
			want: Window{Start: 4000, Length: 10},
		},
		{
			name: "assumed duration does not bound a sample",
			req:  SampleRequest(5000),
			dur:  Duration{Seconds: 3600, Confidence: Assumed},
			want: Window{Start: 0, Length: 5000},
		},
		{
			name:    "inverted range",
			req:     RangeRequest("10", "5"),
			dur:     Duration{Seconds: 600, Confidence: Declared},
			wantErr: ErrInvalidRange,
		},
		{
			name:    "hour field that would overflow",
			req:     RangeRequest("2562047788015216:00:00", "10"),
			dur:     Duration{Seconds: 3600, Confidence: Assumed},
			wantErr: ErrInvalidTimeFormat,
		},
		{
			name:    "zero sample",
			req:     SampleRequest(0),
			dur:     Duration{Seconds: 600, Confidence: Declared},
			wantErr: ErrInvalidSample,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.ChooseWindow(tt.req, tt.dur)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ChooseWindow() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChooseWindow() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ChooseWindow() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChooseWindowSampleStaysInBounds(t *testing.T) {
	t.Parallel()

	const total, length = 95.4, 30.0
	for seed := int64(0); seed < 500; seed++ {
		rng := rand.New(rand.NewSource(seed))
		e := New(&fakeProber{}, &fakeTrimmer{}, nil, WithRand(rng.Intn))
		w, err := e.ChooseWindow(SampleRequest(int(length)), Duration{Seconds: total, Confidence: Probed})
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if w.Start < 0 || w.End() > total || w.Start != math.Trunc(w.Start) || w.Length != length {
			t.Fatalf("seed %d: window %+v outside [0, %v]", seed, w, total)
		}
	}
}

func TestChooseWindowSampleCoversRange(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	e := New(&fakeProber{}, &fakeTrimmer{}, nil, WithRand(rng.Intn))
	seen := map[float64]bool{}
	for i := 0; i < 2000; i++ {
		w, _ := e.ChooseWindow(SampleRequest(8), Duration{Seconds: 10, Confidence: Declared})
		seen[w.Start] = true
	}
	for _, s := range []float64{0, 1, 2} {
		if !seen[s] {
			t.Errorf("start %v never chosen; seen %v", s, seen)
		}
	}
	if len(seen) != 3 {
		t.Errorf("starts = %v, want exactly {0,1,2}", seen)
	}
}

func TestExtractDirect(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{}
	ranges := &fakeRanges{}
	e := New(&fakeProber{}, trim, ranges)
	obs := &recObserver{}
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: RangeRequest("100", "130"), Workspace: ws, Observer: obs}

	res, err := e.Extract(context.Background(), job, Window{Start: 100, Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Tier != TierDirect {
		t.Errorf("Tier = %v, want direct", res.Tier)
	}
	if filepath.Dir(res.Path) != ws.Dir() || !strings.HasSuffix(res.Path, "42_01HREQ_segment.mkv") {
		t.Errorf("Path = %q", res.Path)
	}
	if res.Size != int64(len("segment")) {
		t.Errorf("Size = %d", res.Size)
	}
	want := []trimCall{{remoteURL, 100, 30, res.Path}}
	if !reflect.DeepEqual(trim.calls, want) {
		t.Errorf("trim calls = %+v, want %+v", trim.calls, want)
	}
	if len(ranges.calls) != 0 {
		t.Errorf("byte range tier ran after direct success")
	}
}

func TestExtractFallsBackToByteRange(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{fail: func(input string) error {
		if input == remoteURL {
			return errors.New("seek not supported")
		}
		return nil
	}}
	ranges := &fakeRanges{}
	e := New(&fakeProber{}, trim, ranges, WithBytesPerSecond(1000), WithPadding(5*time.Second))
	obs := &recObserver{}
	src := &fakeSource{url: remoteURL}
	job := Job{Ref: videoRef(600), Source: src, Request: RangeRequest("100", "130"), Workspace: ws, Observer: obs}

	res, err := e.Extract(context.Background(), job, Window{Start: 100, Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Tier != TierByteRange {
		t.Errorf("Tier = %v, want byte_range", res.Tier)
	}
	if !reflect.DeepEqual(obs.tiers, []Tier{TierDirect, TierByteRange}) {
		t.Errorf("tiers = %v", obs.tiers)
	}
	if len(ranges.calls) != 1 {
		t.Fatalf("range calls = %d, want 1", len(ranges.calls))
	}
	if rc := ranges.calls[0]; rc.from != 95_000 || rc.to != 135_000 || rc.url != remoteURL {
		t.Errorf("range call = %+v, want 95000-135000", rc)
	}
	if last := trim.calls[len(trim.calls)-1]; last.start != 5 || last.length != 30 {
		t.Errorf("local trim = %+v, want start 5 length 30", last)
	}
	if src.downloads != 0 {
		t.Errorf("downloaded %d times, want 0", src.downloads)
	}
}

func TestExtractByteRangeNearStart(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{fail: func(input string) error {
		if input == remoteURL {
			return errors.New("no")
		}
		return nil
	}}
	ranges := &fakeRanges{}
	e := New(&fakeProber{}, trim, ranges, WithBytesPerSecond(1000), WithPadding(5*time.Second))
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: RangeRequest("2", "12"), Workspace: ws}

	if _, err := e.Extract(context.Background(), job, Window{Start: 2, Length: 10}, Duration{Seconds: 600, Confidence: Declared}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rc := ranges.calls[0]; rc.from != 0 || rc.to != 17_000 {
		t.Errorf("range call = %+v, want 0-17000", rc)
	}
	if last := trim.calls[len(trim.calls)-1]; last.start != 2 {
		t.Errorf("local seek = %v, want 2", last.start)
	}
}

func TestExtractFallsBackToDownload(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{fail: func(input string) error {
		if strings.Contains(input, "source.") {
			return nil
		}
		return errors.New("broken")
	}}
	ranges := &fakeRanges{}
	src := &fakeSource{url: remoteURL}
	obs := &recObserver{}
	e := New(&fakeProber{}, trim, ranges)
	job := Job{Ref: videoRef(600), Source: src, Request: SampleRequest(30), Workspace: ws, Observer: obs}

	res, err := e.Extract(context.Background(), job, Window{Start: 10, Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Tier != TierDownload {
		t.Errorf("Tier = %v, want download", res.Tier)
	}
	if !reflect.DeepEqual(obs.tiers, []Tier{TierDirect, TierByteRange, TierDownload}) {
		t.Errorf("tiers = %v", obs.tiers)
	}
	if src.downloads != 1 {
		t.Errorf("downloads = %d, want 1", src.downloads)
	}
	if !strings.HasSuffix(res.Path, "segment.mp4") {
		t.Errorf("sample output = %q, want mp4", res.Path)
	}
}

func TestExtractSkipsByteRangeForLocalPath(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{fail: func(input string) error {
		if input == "/srv/bot-api/videos/clip.mkv" {
			return errors.New("broken")
		}
		return nil
	}}
	ranges := &fakeRanges{}
	obs := &recObserver{}
	e := New(&fakeProber{}, trim, ranges)
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: "/srv/bot-api/videos/clip.mkv"}, Request: SampleRequest(30), Workspace: ws, Observer: obs}

	if _, err := e.Extract(context.Background(), job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(obs.tiers, []Tier{TierDirect, TierDownload}) {
		t.Errorf("tiers = %v", obs.tiers)
	}
	if len(ranges.calls) != 0 {
		t.Errorf("byte range attempted on a local path")
	}
}

func TestExtractOnlyDownloadWithoutURL(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	obs := &recObserver{}
	e := New(&fakeProber{}, &fakeTrimmer{}, &fakeRanges{})
	job := Job{Ref: videoRef(600), Source: &fakeSource{urlErr: errors.New("no url")}, Request: SampleRequest(30), Workspace: ws, Observer: obs}

	res, err := e.Extract(context.Background(), job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Tier != TierDownload || !reflect.DeepEqual(obs.tiers, []Tier{TierDownload}) {
		t.Errorf("tier = %v, observed %v", res.Tier, obs.tiers)
	}
}

func TestExtractAllTiersFail(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{fail: func(string) error { return errors.New("corrupt input") }}
	e := New(&fakeProber{}, trim, &fakeRanges{})
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: ws}

	res, err := e.Extract(context.Background(), job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Extract error = %v, want ErrExtractionFailed", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	for _, tier := range []string{"direct", "byte_range", "download"} {
		if !strings.Contains(err.Error(), tier) {
			t.Errorf("error %q does not mention tier %s", err, tier)
		}
	}
	assertEmptyDir(t, ws.Dir())
}

func TestExtractDownloadErrorNamedOnce(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	e := New(&fakeProber{}, &fakeTrimmer{}, nil)
	src := &fakeSource{urlErr: errors.New("no url"), downloadErr: errors.New(`Get "https://files.example/x": connection refused`)}
	job := Job{Ref: videoRef(600), Source: src, Request: SampleRequest(30), Workspace: ws}

	_, err := e.Extract(context.Background(), job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Extract error = %v, want ErrExtractionFailed", err)
	}
	if n := strings.Count(err.Error(), "download"); n != 1 {
		t.Errorf("error names the download tier %d times: %q", n, err)
	}
}

func TestExtractEmptyOutputCountsAsFailure(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	e := New(&fakeProber{}, &fakeTrimmer{empty: true}, &fakeRanges{})
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: ws}

	_, err := e.Extract(context.Background(), job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if !errors.Is(err, ErrExtractionFailed) || !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("Extract error = %v, want ErrExtractionFailed wrapping ErrEmptyOutput", err)
	}
	assertEmptyDir(t, ws.Dir())
}

func TestExtractRefitsAssumedRange(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	local := ws.Path("source.mkv")
	probe := &fakeProber{secs: map[string]float64{local: 60}}
	trim := &fakeTrimmer{fail: func(string) error { return errors.New("unseekable") }}
	e := New(probe, trim, &fakeRanges{err: errors.New("416")})
	job := Job{Ref: docRef(), Source: &fakeSource{url: remoteURL}, Request: RangeRequest("50", "100"), Workspace: ws}

	_, err := e.Extract(context.Background(), job, Window{Start: 50, Length: 50}, Duration{Seconds: 3600, Confidence: Assumed})
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Extract error = %v, want *ExceededError", err)
	}
	if !exceeded.Range || exceeded.Total != 60 {
		t.Errorf("exceeded = %+v", exceeded)
	}
	if errors.Is(err, ErrExtractionFailed) {
		t.Errorf("exceeded duration reported as extraction failure")
	}
	assertEmptyDir(t, ws.Dir())
}

func TestExtractRedrawsAssumedSample(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	local := ws.Path("source.mkv")
	probe := &fakeProber{secs: map[string]float64{local: 60}}
	trim := &fakeTrimmer{fail: func(input string) error {
		if input == local {
			return nil
		}
		return errors.New("unseekable")
	}}
	e := New(probe, trim, nil, WithRand(func(n int) int { return n - 1 }))
	job := Job{Ref: docRef(), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(20), Workspace: ws}

	res, err := e.Extract(context.Background(), job, Window{Start: 3580, Length: 20}, Duration{Seconds: 3600, Confidence: Assumed})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Window != (Window{Start: 40, Length: 20}) {
		t.Errorf("window = %+v, want start 40", res.Window)
	}
	if res.Duration != (Duration{Seconds: 60, Confidence: Probed}) {
		t.Errorf("duration = %+v", res.Duration)
	}
}

func TestExtractCancelled(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	trim := &fakeTrimmer{}
	e := New(&fakeProber{}, trim, &fakeRanges{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: ws}

	_, err := e.Extract(ctx, job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract error = %v, want ErrCancelled", err)
	}
	if len(trim.calls) != 0 {
		t.Errorf("trim ran %d times after cancel", len(trim.calls))
	}
	assertEmptyDir(t, ws.Dir())
}

func TestExtractCancelledMidTier(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trim := &fakeTrimmer{fail: func(string) error {
		cancel()
		return context.Canceled
	}}
	e := New(&fakeProber{}, trim, &fakeRanges{})
	job := Job{Ref: videoRef(600), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: ws}

	_, err := e.Extract(ctx, job, Window{Length: 30}, Duration{Seconds: 600, Confidence: Declared})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Extract error = %v, want ErrCancelled", err)
	}
	if len(trim.calls) != 1 {
		t.Errorf("trim calls = %d, want 1", len(trim.calls))
	}
	assertEmptyDir(t, ws.Dir())
}

func TestRunRejectsInputBeforeTools(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{}
	trim := &fakeTrimmer{}
	e := New(probe, trim, nil)
	obs := &recObserver{}
	ws := newWorkspace(t)

	_, err := e.Run(context.Background(), Job{Ref: docRef(), Source: &fakeSource{url: remoteURL}, Request: RangeRequest("1:75:00", "10"), Workspace: ws, Observer: obs})
	if !errors.Is(err, ErrInvalidTimeFormat) {
		t.Fatalf("Run error = %v, want ErrInvalidTimeFormat", err)
	}
	if len(probe.calls)+len(trim.calls) != 0 {
		t.Errorf("tools invoked for invalid input")
	}
	if !reflect.DeepEqual(obs.phases, []Phase{PhaseAborted}) {
		t.Errorf("phases = %v", obs.phases)
	}
}

func TestRunPhases(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	obs := &recObserver{}
	e := New(&fakeProber{}, &fakeTrimmer{}, nil, WithRand(func(int) int { return 0 }))

	res, err := e.Run(context.Background(), Job{Ref: videoRef(90), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: ws, Observer: obs})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Phase{PhaseDurationResolving, PhaseWindowSelected, PhaseExtracting}
	if !reflect.DeepEqual(obs.phases, want) {
		t.Errorf("phases = %v, want %v", obs.phases, want)
	}
	if res.Duration.Confidence != Declared || res.Window.Length != 30 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunSampleLongerThanVideo(t *testing.T) {
	t.Parallel()

	trim := &fakeTrimmer{}
	e := New(&fakeProber{}, trim, nil)
	_, err := e.Run(context.Background(), Job{Ref: videoRef(20), Source: &fakeSource{url: remoteURL}, Request: SampleRequest(30), Workspace: newWorkspace(t)})
	if !errors.Is(err, ErrDurationExceeded) {
		t.Fatalf("Run error = %v, want ErrDurationExceeded", err)
	}
	if got := UserMessage(err); got != "❌ Given duration (30s) is longer than the actual video duration (20.0s)." {
		t.Errorf("UserMessage = %q", got)
	}
	if len(trim.calls) != 0 {
		t.Errorf("trimmed despite exceeded duration")
	}
}

func TestPhaseAndTierStrings(t *testing.T) {
	if PhaseWindowSelected.String() != "window_selected" || Phase(99).String() != "Phase(99)" {
		t.Errorf("Phase strings wrong")
	}
	if TierByteRange.String() != "byte_range" || Tier(0).String() != "Tier(0)" {
		t.Errorf("Tier strings wrong")
	}
}
