package telegram

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/fetch"
	"github.com/wapuda/metanix/internal/media"
)

// Source is a Telegram-hosted file. Its URL is resolved once, on first use.
type Source struct {
	p   *Platform
	ref media.Reference

	once sync.Once
	url  string
	err  error
}

// Source returns the file behind ref.
func (p *Platform) Source(ref media.Reference) *Source {
	return &Source{p: p, ref: ref}
}

// URL resolves the file through getFile. A self-hosted server running in
// local mode reports an absolute path, which is returned as is.
func (s *Source) URL(ctx context.Context) (string, error) {
	s.once.Do(func() {
		s.url, s.err = s.p.fileURL(ctx, s.ref.FileID)
		s.err = s.p.Redact(s.err)
	})
	return s.url, s.err
}

func (s *Source) Download(ctx context.Context, dst string, progress fetch.ProgressFunc) error {
	url, err := s.URL(ctx)
	if err != nil {
		return err
	}
	return s.p.Redact(s.p.fetchTo(ctx, url, dst, progress))
}

// FetchFile downloads any file id (thumbnails, photos) to dst.
func (p *Platform) FetchFile(ctx context.Context, fileID, dst string) error {
	url, err := p.fileURL(ctx, fileID)
	if err != nil {
		return p.Redact(err)
	}
	return p.Redact(p.fetchTo(ctx, url, dst, nil))
}

func (p *Platform) fileURL(ctx context.Context, fileID string) (string, error) {
	f, err := retryFlood(ctx, p.retry, func() (tgbotapi.File, error) {
		return p.client.GetFile(tgbotapi.FileConfig{FileID: fileID})
	})
	if err != nil {
		if isTooBig(err) {
			return "", fmt.Errorf("get file %s: %w", fileID, ErrFileTooBig)
		}
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("get file %s: empty file path", fileID)
	}
	if filepath.IsAbs(f.FilePath) {
		return f.FilePath, nil
	}
	return fmt.Sprintf(p.fileEndpoint, p.token, f.FilePath), nil
}

func (p *Platform) fetchTo(ctx context.Context, url, dst string, progress fetch.ProgressFunc) error {
	if filepath.IsAbs(url) {
		return copyLocal(ctx, url, dst, progress)
	}
	_, err := p.dl.Download(ctx, url, dst, progress)
	return err
}

func copyLocal(ctx context.Context, src, dst string, progress fetch.ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if progress != nil {
		progress(n, fi.Size())
	}
	return nil
}
