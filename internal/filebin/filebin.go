// Package filebin uploads results too large for Telegram to a Filebin server.
package filebin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var ErrUpload = errors.New("filebin upload failed")

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	base string
	http httpDoer
}

type Option func(*Client)

func WithHTTPClient(c httpDoer) Option {
	return func(cl *Client) { cl.http = c }
}

// New returns a client for base, e.g. https://filebin.net.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BinName derives a bin for a request id, honoring an optional prefix.
func BinName(prefix, requestID string) string {
	if p := strings.TrimSpace(prefix); p != "" {
		return p + "-" + requestID
	}
	return requestID
}

// Upload posts the file at path to <base>/<bin>/<name> and returns the file
// and bin URLs.
func (c *Client) Upload(ctx context.Context, bin, path, name string) (fileURL, binURL string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	binURL = c.base + "/" + url.PathEscape(bin)
	fileURL = binURL + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fileURL, f)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("%w: status %d: %s", ErrUpload, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return fileURL, binURL, nil
}
