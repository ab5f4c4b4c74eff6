package extract

import (
	"errors"
	"fmt"
)

// Sentinel errors for segment extraction.
//
// Usage pattern: wrap sentinels with context at call site using fmt.Errorf:
//
//	return fmt.Errorf("start %q: %w", text, ErrInvalidTimeFormat)
var (
	// ErrInvalidTimeFormat means a start or end time is neither HH:MM:SS nor whole seconds.
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrInvalidRange means end <= start.
	ErrInvalidRange = errors.New("end must be after start")

	// ErrInvalidSample means the sample length is not a positive number of seconds.
	ErrInvalidSample = errors.New("sample duration must be positive")

	// ErrDurationExceeded means the window does not fit the known duration.
	// Returned as *ExceededError.
	ErrDurationExceeded = errors.New("duration exceeded")

	// ErrProbeFailed means duration discovery fell back to the assumed bound.
	// It is logged, never returned to callers.
	ErrProbeFailed = errors.New("duration probe failed")

	// ErrEmptyOutput means the trim tool exited cleanly but wrote nothing usable.
	ErrEmptyOutput = errors.New("output missing or empty")

	// ErrExtractionFailed means every applicable tier failed.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrCancelled means the request's context was cancelled mid-flight.
	ErrCancelled = errors.New("cancelled")
)

// ExceededError reports a window that does not fit the media.
type ExceededError struct {
	Requested float64 // sample length, or range end
	Total     float64
	Range     bool
}

func (e *ExceededError) Error() string {
	if e.Range {
		return fmt.Sprintf("end %.0fs is past media duration %.1fs: %v", e.Requested, e.Total, ErrDurationExceeded)
	}
	return fmt.Sprintf("sample %.0fs is longer than media duration %.1fs: %v", e.Requested, e.Total, ErrDurationExceeded)
}

func (e *ExceededError) Is(target error) bool { return target == ErrDurationExceeded }

// UserMessage maps an extraction error to the text shown to the requester.
func UserMessage(err error) string {
	var exceeded *ExceededError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &exceeded):
		if exceeded.Range {
			return fmt.Sprintf("❌ End time exceeds video duration (%.0fs).", exceeded.Total)
		}
		return fmt.Sprintf("❌ Given duration (%.0fs) is longer than the actual video duration (%.1fs).", exceeded.Requested, exceeded.Total)
	case errors.Is(err, ErrInvalidTimeFormat):
		return "❌ Invalid time format.\nExample: /trim 01:45:06 01:45:56 or /trim 400 500"
	case errors.Is(err, ErrInvalidRange):
		return "❌ End time must be greater than start time."
	case errors.Is(err, ErrInvalidSample):
		return "❌ Duration must be a positive number."
	case errors.Is(err, ErrCancelled):
		return "❌ Process cancelled by user."
	default:
		return "❌ An error occurred while processing your request."
	}
}
