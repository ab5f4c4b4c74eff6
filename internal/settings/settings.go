// Package settings stores per-user delivery preferences.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wapuda/metanix/internal/extract"
)

type UploadType string

const (
	UploadDocument UploadType = "document"
	UploadVideo    UploadType = "video"
)

// DefaultUploadType applies to users who never picked one.
const DefaultUploadType = UploadDocument

// Field names a user-settable preference.
type Field string

const (
	FieldThumbnail  Field = "thumbnail"
	FieldCaption    Field = "caption"
	FieldPrefix     Field = "prefix"
	FieldSuffix     Field = "suffix"
	FieldUploadType Field = "upload_type"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrUnknownField = errors.New("unknown settings field")
	ErrBadValue     = errors.New("invalid settings value")
)

// Settings is one user's document.
type Settings struct {
	UserID     int64      `json:"user_id"`
	Thumbnail  string     `json:"thumbnail,omitempty"`
	Caption    Caption    `json:"caption,omitempty"`
	Prefix     string     `json:"prefix,omitempty"`
	Suffix     string     `json:"suffix,omitempty"`
	UploadType UploadType `json:"upload_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Defaults returns the settings of a user with nothing stored.
func Defaults(user int64) Settings {
	return Settings{UserID: user, UploadType: DefaultUploadType}
}

// Store persists Settings. Writes are per field; the last write wins.
type Store interface {
	// Ensure creates the user if missing and reports whether it did.
	Ensure(ctx context.Context, user int64) (created bool, err error)
	Get(ctx context.Context, user int64) (Settings, error)
	Set(ctx context.Context, user int64, f Field, value string) error
	Clear(ctx context.Context, user int64, f Field) error
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, user int64) error
	Close() error
}

// checkField validates a write before it reaches a backend.
func checkField(f Field, value string) error {
	switch f {
	case FieldThumbnail, FieldCaption, FieldPrefix, FieldSuffix:
		return nil
	case FieldUploadType:
		if UploadType(value) != UploadDocument && UploadType(value) != UploadVideo {
			return fmt.Errorf("upload type %q: %w", value, ErrBadValue)
		}
		return nil
	default:
		return fmt.Errorf("%q: %w", f, ErrUnknownField)
	}
}

// apply sets one decoded field on s. Unknown keys are ignored.
func (s *Settings) apply(key, value string) {
	switch Field(key) {
	case FieldThumbnail:
		s.Thumbnail = value
	case FieldCaption:
		s.Caption = Caption(value)
	case FieldPrefix:
		s.Prefix = value
	case FieldSuffix:
		s.Suffix = value
	case FieldUploadType:
		if t := UploadType(value); t == UploadDocument || t == UploadVideo {
			s.UploadType = t
		}
	}
}

// Caption is a user template. {filename}, {filesize} and {duration} are
// expanded at upload time.
type Caption string

func (c Caption) Render(filename string, size int64, duration time.Duration) string {
	if c == "" {
		return ""
	}
	size = max(size, 0)
	r := strings.NewReplacer(
		"{filename}", filename,
		"{filesize}", humanize.Bytes(uint64(size)),
		"{duration}", extract.FormatClock(int(duration.Seconds())),
	)
	return r.Replace(string(c))
}

// DecorateName wraps the base of name with prefix and suffix, keeping the
// extension: ("clip.mkv", "[HD] ", " @ch") -> "[HD] clip @ch.mkv".
func DecorateName(name, prefix, suffix string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return prefix + base + suffix + ext
}
