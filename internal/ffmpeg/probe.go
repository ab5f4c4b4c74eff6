package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoDuration means the container did not report a usable duration.
var ErrNoDuration = errors.New("duration not available")

// Chapter represents a chapter marker in a media file.
type Chapter struct {
	ID        int               `json:"id"`
	TimeBase  string            `json:"time_base"`
	Start     int64             `json:"start"`
	StartTime string            `json:"start_time"`
	End       int64             `json:"end"`
	EndTime   string            `json:"end_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Stream represents a media stream (audio, video, subtitle, etc.)
type Stream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"`
	CodecLongName string            `json:"codec_long_name"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// Format represents the container format information.
type Format struct {
	Filename       string            `json:"filename"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// ProbeResult is the decoded `ffprobe -print_format json` document.
type ProbeResult struct {
	Chapters []Chapter `json:"chapters"`
	Streams  []Stream  `json:"streams"`
	Format   Format    `json:"format"`
}

// GetDuration returns the container duration in seconds.
func (pr *ProbeResult) GetDuration() (float64, error) {
	if pr.Format.Duration == "" || pr.Format.Duration == "N/A" {
		return 0, ErrNoDuration
	}
	d, err := strconv.ParseFloat(pr.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", pr.Format.Duration, ErrNoDuration)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q: %w", pr.Format.Duration, ErrNoDuration)
	}
	return d, nil
}

// StreamsOf returns the streams of one codec type ("video", "audio", "subtitle").
func (pr *ProbeResult) StreamsOf(codecType string) []Stream {
	var out []Stream
	for _, s := range pr.Streams {
		if s.CodecType == codecType {
			out = append(out, s)
		}
	}
	return out
}

func probeArgs(input string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		input,
	}
}

// Probe runs ffprobe against a local path or URL and decodes its JSON report.
func (r *Runner) Probe(ctx context.Context, input string) (*ProbeResult, []byte, error) {
	if input == "" {
		return nil, nil, errors.New("probe: input cannot be empty")
	}
	out, err := r.exec(ctx, r.ffprobe, probeArgs(input))
	if err != nil {
		return nil, nil, err
	}
	var res ProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, nil, fmt.Errorf("ffprobe: decode json: %w", err)
	}
	return &res, out, nil
}

// Duration probes input and returns its container duration in seconds.
func (r *Runner) Duration(ctx context.Context, input string) (float64, error) {
	res, _, err := r.Probe(ctx, input)
	if err != nil {
		return 0, err
	}
	return res.GetDuration()
}
