package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode selects which fields of a Request are meaningful.
type Mode string

const (
	// ModeSample picks a random window of SampleSeconds.
	ModeSample Mode = "sample"
	// ModeRange cuts the explicit [Start, End) window.
	ModeRange Mode = "range"
)

// Request is what the user asked for. The range endpoints stay textual so
// the payload round-trips exactly what was typed.
type Request struct {
	Mode          Mode   `json:"mode"`
	SampleSeconds int    `json:"sample_seconds,omitempty"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
}

func SampleRequest(seconds int) Request {
	return Request{Mode: ModeSample, SampleSeconds: seconds}
}

func RangeRequest(start, end string) Request {
	return Request{Mode: ModeRange, Start: start, End: end}
}

// Validate checks everything that can be checked without looking at the media.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeSample:
		if r.SampleSeconds <= 0 {
			return fmt.Errorf("sample %d: %w", r.SampleSeconds, ErrInvalidSample)
		}
		return nil
	case ModeRange:
		_, _, err := r.Bounds()
		return err
	default:
		return fmt.Errorf("unknown request mode %q", r.Mode)
	}
}

// Bounds parses the range endpoints into seconds.
func (r Request) Bounds() (start, end int, err error) {
	start, err = ParseTimestamp(r.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	end, err = ParseTimestamp(r.End)
	if err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("%s to %s: %w", r.Start, r.End, ErrInvalidRange)
	}
	return start, end, nil
}

// OutputExt is the container the result is written in.
func (r Request) OutputExt() string {
	if r.Mode == ModeSample {
		return "mp4"
	}
	return "mkv"
}

// maxTimestamp bounds parsed times so H*3600 cannot overflow.
const maxTimestamp = math.MaxInt32

// ParseTimestamp accepts "H:MM:SS" (minutes and seconds 0-59) or a
// non-negative whole number of seconds, at most maxTimestamp.
func ParseTimestamp(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time: %w", ErrInvalidTimeFormat)
	}
	if !strings.Contains(s, ":") {
		n, ok := digits(s)
		if !ok || n > maxTimestamp {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimeFormat)
		}
		return n, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimeFormat)
	}
	h, okH := digits(parts[0])
	m, okM := digits(parts[1])
	sec, okS := digits(parts[2])
	if !okH || !okM || !okS || len(parts[1]) > 2 || len(parts[2]) > 2 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimeFormat)
	}
	if h > (maxTimestamp-m*60-sec)/3600 {
		return 0, fmt.Errorf("%q out of range: %w", s, ErrInvalidTimeFormat)
	}
	return h*3600 + m*60 + sec, nil
}

// digits parses an unsigned decimal with no sign, spaces or fraction.
func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatClock renders whole seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
