package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wapuda/metanix/internal/extract"
)

// usageError is shown to the user verbatim.
type usageError string

func (e usageError) Error() string { return string(e) }

const (
	sampleUsage = "❗ Usage: Reply to a video with /sv <duration-in-seconds>"
	trimUsage   = "❗ Usage: Reply to a video with /trim <start> <end>\nExample: /trim 01:45:06 01:45:56 or /trim 400 500"
	ssUsage     = "❌ Error: Format should be /ss (number-of-screenshots)."
)

// ParseSample reads the single positive seconds argument of /sv.
func ParseSample(args string) (extract.Request, error) {
	f := strings.Fields(args)
	switch {
	case len(f) == 0:
		return extract.Request{}, usageError(sampleUsage)
	case len(f) > 1:
		return extract.Request{}, usageError(sampleUsage + " (only one number)")
	}
	n, err := strconv.Atoi(f[0])
	if err != nil {
		return extract.Request{}, usageError("❌ Duration must be a number.")
	}
	req := extract.SampleRequest(n)
	if err := req.Validate(); err != nil {
		return extract.Request{}, err
	}
	return req, nil
}

// ParseTrim reads the start and end arguments of /trim.
func ParseTrim(args string) (extract.Request, error) {
	f := strings.Fields(args)
	if len(f) != 2 {
		return extract.Request{}, usageError(trimUsage)
	}
	req := extract.RangeRequest(f[0], f[1])
	if err := req.Validate(); err != nil {
		return extract.Request{}, err
	}
	return req, nil
}

// ParseScreenshots reads the count argument of /ss, capped at limit.
func ParseScreenshots(args string, limit int) (int, error) {
	f := strings.Fields(args)
	if len(f) != 1 {
		return 0, usageError(ssUsage)
	}
	n, err := strconv.Atoi(f[0])
	switch {
	case err != nil:
		return 0, usageError("❌ Error: Screenshot count must be a number.")
	case n <= 0:
		return 0, usageError("❌ Error: Screenshot count must be a positive number.")
	case n > limit:
		return 0, usageError(fmt.Sprintf("❌ Error: Maximum %d screenshots allowed at once.", limit))
	}
	return n, nil
}

// replyText maps a parse error to what the user sees.
func replyText(err error) string {
	if u, ok := err.(usageError); ok {
		return string(u)
	}
	return extract.UserMessage(err)
}
