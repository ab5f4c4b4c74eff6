// Package fetch transfers remote files over HTTP, whole or by byte range.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

var (
	// ErrRangeUnsupported means the server ignored the Range header.
	ErrRangeUnsupported = errors.New("server does not honor byte ranges")

	// ErrEmptyBody means the server answered successfully with no bytes.
	ErrEmptyBody = errors.New("empty response body")

	// ErrStatus wraps any other unexpected HTTP status.
	ErrStatus = errors.New("unexpected http status")
)

// httpDoer abstracts HTTP client operations.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultHTTPClient has transport timeouts but no overall timeout; callers bound
// each transfer with a context deadline instead, since full downloads can be long.
var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	},
}

// ProgressFunc receives the bytes written so far and the expected total
// (0 when the server sent no length).
type ProgressFunc func(done, total int64)

// Client performs transfers with a per-call timeout.
type Client struct {
	http    httpDoer
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client implementation.
func WithHTTPClient(c httpDoer) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds every transfer.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{http: defaultHTTPClient, timeout: 30 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Range fetches bytes [from, to] (inclusive) of url into dst and returns the
// number of bytes written. Anything but 206 Partial Content is an error.
func (c *Client) Range(ctx context.Context, url string, from, to int64, dst string) (int64, error) {
	if from < 0 || to < from {
		return 0, fmt.Errorf("invalid byte range %d-%d", from, to)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build range request: %w", err)
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(from, 10)+"-"+strconv.FormatInt(to, 10))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("range request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		return 0, fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrRangeUnsupported)
	default:
		return 0, fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrStatus)
	}

	n, err := writeFile(dst, resp.Body, -1, nil)
	if err != nil {
		return n, err
	}
	if n == 0 {
		_ = os.Remove(dst)
		return 0, ErrEmptyBody
	}
	return n, nil
}

// Download streams the whole of url into dst, reporting progress as it goes.
func (c *Client) Download(ctx context.Context, url, dst string, progress ProgressFunc) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	// *url.Error already names the method and URL.
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrStatus)
	}
	n, err := writeFile(dst, resp.Body, resp.ContentLength, progress)
	if err != nil {
		return n, err
	}
	if n == 0 {
		_ = os.Remove(dst)
		return 0, ErrEmptyBody
	}
	return n, nil
}

// writeFile copies r into a new file at dst. A failed copy removes dst.
func writeFile(dst string, r io.Reader, total int64, progress ProgressFunc) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	var w io.Writer = f
	if progress != nil {
		if total < 0 {
			total = 0
		}
		w = &progressWriter{w: f, total: total, fn: progress}
	}
	n, copyErr := io.Copy(w, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		if copyErr != nil {
			return n, fmt.Errorf("write %s: %w", dst, copyErr)
		}
		return n, fmt.Errorf("close %s: %w", dst, closeErr)
	}
	return n, nil
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	p.fn(p.done, p.total)
	return n, err
}
