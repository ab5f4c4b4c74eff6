// Package telegram adapts the Bot API to the extraction pipeline: file
// sources, the editable status message and result uploads.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/fetch"
)

// Client is the subset of *tgbotapi.BotAPI the adapter uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Downloader streams a URL to a local file.
type Downloader interface {
	Download(ctx context.Context, url, dst string, progress fetch.ProgressFunc) (int64, error)
}

// ErrFileTooBig means the Bot API refused to serve the file (over 20 MB on the
// public server).
var ErrFileTooBig = errors.New("file is too big for the bot api")

type Platform struct {
	client       Client
	token        string
	fileEndpoint string
	dl           Downloader
	retry        RetryConfig
	interval     time.Duration
}

type Option func(*Platform)

// WithFileEndpoint sets the download URL format (token, file path), for a
// self-hosted Bot API server.
func WithFileEndpoint(format string) Option {
	return func(p *Platform) {
		if format != "" {
			p.fileEndpoint = format
		}
	}
}

func WithDownloader(d Downloader) Option {
	return func(p *Platform) { p.dl = d }
}

func WithRetry(cfg RetryConfig) Option {
	return func(p *Platform) { p.retry = cfg }
}

// WithStatusInterval sets the minimum gap between unforced status edits.
func WithStatusInterval(d time.Duration) Option {
	return func(p *Platform) {
		if d >= 0 {
			p.interval = d
		}
	}
}

func New(client Client, token string, opts ...Option) *Platform {
	p := &Platform{
		client:       client,
		token:        token,
		fileEndpoint: tgbotapi.FileEndpoint,
		dl:           fetch.New(),
		retry:        DefaultRetry,
		interval:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Platform) Client() Client { return p.client }

// send delivers c, waiting out flood limits.
func (p *Platform) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return retryFlood(ctx, p.retry, func() (tgbotapi.Message, error) {
		return p.client.Send(c)
	})
}

func (p *Platform) request(ctx context.Context, c tgbotapi.Chattable) error {
	_, err := retryFlood(ctx, p.retry, func() (*tgbotapi.APIResponse, error) {
		return p.client.Request(c)
	})
	return err
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func isTooBig(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "file is too big")
}
