package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/media"
)

const (
	TaskSample      = "media:sample"
	TaskTrim        = "media:trim"
	TaskScreenshots = "media:screenshots"
	TaskInfo        = "media:info"
)

// Queue is the single asynq queue all media tasks run on.
const Queue = "default"

// Envelope is shared by every task: who asked, where to answer and which file.
type Envelope struct {
	RequestID   string          `json:"request_id"` // also the asynq task id
	ChatID      int64           `json:"chat_id"`
	UserID      int64           `json:"user_id"`
	ReplyToID   int             `json:"reply_to_id"`   // the media message
	StatusMsgID int             `json:"status_msg_id"` // "Queued" reply, edited with progress
	Media       media.Reference `json:"media"`
	QueuedAt    time.Time       `json:"queued_at"` // day the quota slot was reserved
}

// SegmentPayload drives media:sample and media:trim.
type SegmentPayload struct {
	Envelope
	Request extract.Request `json:"request"`
}

type ScreenshotsPayload struct {
	Envelope
	Count int `json:"count"` // 1..SS_MAX
}

type InfoPayload struct {
	Envelope
}

// NewRequestID returns a fresh ULID.
func NewRequestID() string {
	return ulid.Make().String()
}

// TypeFor maps an extraction mode to its task type.
func TypeFor(m extract.Mode) string {
	if m == extract.ModeRange {
		return TaskTrim
	}
	return TaskSample
}

// NewTask encodes a payload and pins the task id to the request id so the
// bot can cancel it later.
func NewTask(typ string, env Envelope, payload any, timeout time.Duration) (*asynq.Task, error) {
	if env.RequestID == "" {
		return nil, fmt.Errorf("jobs: %s without request id", typ)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s: %w", typ, err)
	}
	opts := []asynq.Option{
		asynq.TaskID(env.RequestID),
		asynq.Queue(Queue),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(typ, b, opts...), nil
}

// EnvelopeOf reads the envelope shared by every payload type.
func EnvelopeOf(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("jobs: decode envelope: %w", err)
	}
	return env, nil
}

// Decode unmarshals a task payload into v. It wraps failures in SkipRetry:
// a payload that does not decode never will.
func Decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("jobs: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
