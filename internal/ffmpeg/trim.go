package ffmpeg

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wapuda/metanix/internal/logx"
)

// seconds formats a time offset the way ffmpeg accepts it for -ss and -t.
func seconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// TrimArgs builds a stream-copy trim of length seconds starting at start.
// Seeking before -i keeps the extraction keyframe-fast on remote inputs.
// Matroska outputs keep the source subtitles.
func TrimArgs(input string, start, length float64, output string) []string {
	return trimArgs(input, start, length, output, isMatroska(output))
}

func isMatroska(output string) bool {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mkv", ".mka", ".webm":
		return true
	}
	return false
}

func trimArgs(input string, start, length float64, output string, subtitles bool) []string {
	args := []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "error",
		"-y",
		"-ss", seconds(start),
		"-i", input,
		"-t", seconds(length),
		"-map", "0:v?", "-map", "0:a?",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".mov", ".m4v":
		args = append(args, "-movflags", "+faststart")
	}
	if subtitles {
		args = append(args, "-map", "0:s?")
	}
	return append(args, output)
}

// subtitleRejected reports an ffmpeg failure caused by a subtitle stream the
// output container cannot take as is (mov_text into matroska, for one).
func subtitleRejected(err error) bool {
	return errors.Is(err, ErrToolFailed) && strings.Contains(strings.ToLower(err.Error()), "subtitle")
}

// Trim cuts [start, start+length) out of input into output without re-encoding.
func (r *Runner) Trim(ctx context.Context, input string, start, length float64, output string) error {
	if input == "" || output == "" {
		return errors.New("trim: input and output are required")
	}
	if length <= 0 {
		return errors.New("trim: length must be positive")
	}
	subs := isMatroska(output)
	_, err := r.exec(ctx, r.ffmpeg, trimArgs(input, start, length, output, subs))
	if subs && subtitleRejected(err) {
		logger := logx.FromCtx(ctx)
		logger.Info().Str("output", filepath.Base(output)).Msg("subtitles not copyable, trimming without them")
		_, err = r.exec(ctx, r.ffmpeg, trimArgs(input, start, length, output, false))
	}
	return err
}

// FrameArgs grabs a single JPEG frame at the given offset.
func FrameArgs(input string, at float64, output string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "error",
		"-y",
		"-ss", seconds(at),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}
}

// Frame writes one still image taken at offset at.
func (r *Runner) Frame(ctx context.Context, input string, at float64, output string) error {
	_, err := r.exec(ctx, r.ffmpeg, FrameArgs(input, at, output))
	return err
}

// MediaInfo runs `mediainfo --Output=JSON` and returns its raw report.
// mediainfo reads http(s) URLs natively.
func (r *Runner) MediaInfo(ctx context.Context, input string) ([]byte, error) {
	return r.exec(ctx, r.mediainfo, []string{"--Output=JSON", input})
}
