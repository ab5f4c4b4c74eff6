package extract

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/wapuda/metanix/internal/fetch"
)

type probeCall struct {
	input string
}

type fakeProber struct {
	mu    sync.Mutex
	secs  map[string]float64
	err   error
	calls []probeCall
}

func (f *fakeProber) Duration(_ context.Context, input string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, probeCall{input: input})
	if f.err != nil {
		return 0, f.err
	}
	secs, ok := f.secs[input]
	if !ok {
		return 0, errors.New("no such input")
	}
	return secs, nil
}

type trimCall struct {
	input  string
	start  float64
	length float64
	output string
}

// fakeTrimmer writes a small payload to the output unless fail rejects the input.
type fakeTrimmer struct {
	mu    sync.Mutex
	fail  func(input string) error
	empty bool
	calls []trimCall
}

func (f *fakeTrimmer) Trim(_ context.Context, input string, start, length float64, output string) error {
	f.mu.Lock()
	f.calls = append(f.calls, trimCall{input, start, length, output})
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(input); err != nil {
			return err
		}
	}
	payload := []byte("segment")
	if f.empty {
		payload = nil
	}
	return os.WriteFile(output, payload, 0o644)
}

type rangeCall struct {
	url      string
	from, to int64
	dst      string
}

type fakeRanges struct {
	err   error
	calls []rangeCall
}

func (f *fakeRanges) Range(_ context.Context, url string, from, to int64, dst string) (int64, error) {
	f.calls = append(f.calls, rangeCall{url, from, to, dst})
	if f.err != nil {
		return 0, f.err
	}
	return 4, os.WriteFile(dst, []byte("part"), 0o644)
}

type fakeSource struct {
	url         string
	urlErr      error
	downloadErr error
	downloads   int
}

func (f *fakeSource) URL(context.Context) (string, error) {
	return f.url, f.urlErr
}

func (f *fakeSource) Download(_ context.Context, dst string, progress fetch.ProgressFunc) error {
	f.downloads++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	if progress != nil {
		progress(4, 4)
	}
	return os.WriteFile(dst, []byte("full"), 0o644)
}

type recObserver struct {
	phases []Phase
	tiers  []Tier
	last   string
}

func (o *recObserver) Phase(p Phase, detail string) {
	o.phases = append(o.phases, p)
	o.last = detail
}

func (o *recObserver) Tier(t Tier) { o.tiers = append(o.tiers, t) }

func (o *recObserver) Progress(int64, int64) {}

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := OpenWorkspace(t.TempDir(), "01HREQ", 42)
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("workspace not empty: %v", names)
	}
}
