package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/fetch"
	"github.com/wapuda/metanix/internal/ffmpeg"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/quota"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
)

// fakeClient serves every file id from a local path, the way a self-hosted
// Bot API server in local mode does.
type fakeClient struct {
	mu     sync.Mutex
	files  map[string]string
	sent   []tgbotapi.Chattable
	reqs   []tgbotapi.Chattable
	groups []tgbotapi.MediaGroupConfig
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	path, ok := f.files[cfg.FileID]
	if !ok {
		return tgbotapi.File{}, errors.New("Bad Request: invalid file_id")
	}
	return tgbotapi.File{FileID: cfg.FileID, FilePath: path}, nil
}

func (f *fakeClient) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, cfg)
	return make([]tgbotapi.Message, len(cfg.Media)), nil
}

// texts returns every message body and edit text sent, in order.
func (f *fakeClient) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeClient) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

// fakeTools stands in for ffmpeg, ffprobe and mediainfo.
type fakeTools struct {
	mu        sync.Mutex
	duration  float64
	probeErr  error
	probeJSON string
	infoJSON  string
	trims     int
	frames    []float64
	trimFails bool // Trim exits nonzero quoting its input, like ffmpeg
}

func (f *fakeTools) Duration(context.Context, string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

func (f *fakeTools) Trim(_ context.Context, input string, _, _ float64, output string) error {
	f.mu.Lock()
	f.trims++
	fails := f.trimFails
	f.mu.Unlock()
	if fails {
		return fmt.Errorf("%w: ffmpeg: %s: Connection refused", ffmpeg.ErrToolFailed, input)
	}
	return os.WriteFile(output, []byte("segment"), 0o644)
}

func (f *fakeTools) Frame(_ context.Context, _ string, at float64, output string) error {
	f.mu.Lock()
	f.frames = append(f.frames, at)
	f.mu.Unlock()
	return os.WriteFile(output, []byte("jpeg"), 0o644)
}

func (f *fakeTools) Probe(context.Context, string) (*ffmpeg.ProbeResult, []byte, error) {
	if f.probeErr != nil {
		return nil, nil, f.probeErr
	}
	return &ffmpeg.ProbeResult{}, []byte(f.probeJSON), nil
}

func (f *fakeTools) MediaInfo(context.Context, string) ([]byte, error) {
	if f.infoJSON == "" {
		return nil, errors.New("mediainfo: exit status 1")
	}
	return []byte(f.infoJSON), nil
}

// refusedDownloads fails every transfer the way net/http does, URL included.
type refusedDownloads struct{}

func (refusedDownloads) Download(_ context.Context, url, _ string, _ fetch.ProgressFunc) (int64, error) {
	return 0, fmt.Errorf("Get %q: dial tcp 127.0.0.1:1: connect: connection refused", url)
}

type noRanges struct{}

func (noRanges) Range(context.Context, string, int64, int64, string) (int64, error) {
	return 0, errors.New("no ranges in tests")
}

type harness struct {
	w      *Worker
	client *fakeClient
	tools  *fakeTools
	mr     *miniredis.Miniredis
	store  settings.Store
	cfg    config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	media := filepath.Join(t.TempDir(), "clip.mkv")
	if err := os.WriteFile(media, []byte("full media"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := &fakeClient{files: map[string]string{"vid": media}}
	cfg := config.Config{
		DataDir:               t.TempDir(),
		TelegramUploadMaxByte: 49 * 1024 * 1024,
		AssumedDuration:       time.Hour,
		BytesPerSecond:        1000,
		Padding:               5 * time.Second,
		MediaInfoBytes:        4096,
		DailyMax:              5,
	}
	tools := &fakeTools{duration: 120, probeJSON: `{"format":{"format_name":"matroska"}}`}
	store := settings.NewRedisStore(rdb)
	w := New(cfg, Deps{
		Telegram: telegram.New(client, "TOKEN", telegram.WithStatusInterval(time.Millisecond)),
		Tools:    tools,
		Ranges:   noRanges{},
		Store:    store,
		Quota:    quota.New(rdb, cfg.DailyMax),
	})
	w.intn = func(n int) int { return 0 }
	return &harness{w: w, client: client, tools: tools, mr: mr, store: store, cfg: cfg}
}

// reserve takes the quota slot the bot takes before queueing env.
func (h *harness) reserve(t *testing.T, env jobs.Envelope) {
	t.Helper()
	if _, ok, err := h.w.quota.Reserve(context.Background(), env.UserID, 1, env.QueuedAt); err != nil || !ok {
		t.Fatalf("Reserve = %v, %v", ok, err)
	}
}

func (h *harness) used(t *testing.T, user int64) int {
	t.Helper()
	left, err := h.w.quota.Remaining(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return h.cfg.DailyMax - left
}

func assertNoWorkspaces(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, "requests"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspaces left behind: %d", len(entries))
	}
}
