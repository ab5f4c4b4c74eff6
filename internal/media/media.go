// Package media describes source files as the hosting platform knows them.
package media

import (
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
)

// Reference identifies a source file without touching its bytes.
// DeclaredDuration is in seconds; 0 means the platform did not report one.
type Reference struct {
	FileID           string `json:"file_id"`
	Kind             Kind   `json:"kind"`
	DeclaredDuration int    `json:"declared_duration,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	Size             int64  `json:"size,omitempty"`
}

// TrustedDuration reports the declared duration if the platform's value can be
// relied on. Documents carry whatever the uploader's client wrote, so they never are.
func (r Reference) TrustedDuration() (int, bool) {
	if r.DeclaredDuration <= 0 {
		return 0, false
	}
	switch r.Kind {
	case KindVideo, KindAudio:
		return r.DeclaredDuration, true
	}
	return 0, false
}

// Name returns DisplayName or a generic fallback for the kind.
func (r Reference) Name() string {
	if n := strings.TrimSpace(r.DisplayName); n != "" {
		return n
	}
	switch r.Kind {
	case KindAudio:
		return "audio.mp3"
	default:
		return "video.mkv"
	}
}

// Ext returns the lower-cased extension of Name without the dot.
func (r Reference) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Name())), ".")
}
