// Package quota enforces the per-user daily request cap.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Quota counts requests per user per local calendar day. A zero max disables it.
//
// The bot reserves a slot when it queues a request and the worker refunds it
// when the request fails or is cancelled, so only delivered requests stay
// counted and concurrent requests cannot overrun the cap.
type Quota struct {
	rdb redis.Cmdable
	max int
	now func() time.Time
}

type Option func(*Quota)

// WithClock replaces time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(q *Quota) { q.now = now }
}

func New(rdb redis.Cmdable, dailyMax int, opts ...Option) *Quota {
	q := &Quota{rdb: rdb, max: dailyMax, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Quota) Enabled() bool { return q.max > 0 }

func (q *Quota) Max() int { return q.max }

// Key is the counter for user on the day containing t.
func Key(user int64, t time.Time) string {
	return fmt.Sprintf("quota:%d:%s", user, t.Format("20060102"))
}

func untilMidnight(now time.Time) time.Duration {
	tom := now.AddDate(0, 0, 1)
	mid := time.Date(tom.Year(), tom.Month(), tom.Day(), 0, 0, 0, 0, now.Location())
	return mid.Sub(now)
}

// KEYS[1] counter, ARGV: n, max, ttl ms. Returns {used after, reserved 0|1}.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local n = tonumber(ARGV[1])
if used + n > tonumber(ARGV[2]) then
	return {used, 0}
end
used = redis.call("INCRBY", KEYS[1], n)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {used, 1}
`)

// KEYS[1] counter, ARGV[1] n. Never goes below zero or revives an expired day.
var refundScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used <= 0 then
	return 0
end
local n = math.min(used, tonumber(ARGV[1]))
return redis.call("DECRBY", KEYS[1], n)
`)

// Remaining returns what user may still request today. When the cap is
// disabled it returns -1.
func (q *Quota) Remaining(ctx context.Context, user int64) (int, error) {
	if !q.Enabled() {
		return -1, nil
	}
	used, err := q.rdb.Get(ctx, Key(user, q.now())).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("quota: %w", err)
	}
	return max(q.max-used, 0), nil
}

// Reserve atomically takes n requests from today's allowance. It reports the
// allowance left afterwards and whether the reservation was made. The day
// reserved is the one containing at; pass the same time to Refund.
func (q *Quota) Reserve(ctx context.Context, user int64, n int, at time.Time) (remaining int, ok bool, err error) {
	if !q.Enabled() {
		return -1, true, nil
	}
	ttl := untilMidnight(at)
	res, err := reserveScript.Run(ctx, q.rdb, []string{Key(user, at)}, n, q.max, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("quota reserve: %w", err)
	}
	return max(q.max-int(res[0]), 0), res[1] == 1, nil
}

// Refund gives back n requests reserved on the day containing at.
func (q *Quota) Refund(ctx context.Context, user int64, n int, at time.Time) error {
	if !q.Enabled() || n <= 0 {
		return nil
	}
	if err := refundScript.Run(ctx, q.rdb, []string{Key(user, at)}, n).Err(); err != nil {
		return fmt.Errorf("quota refund: %w", err)
	}
	return nil
}

// Now is the quota clock, used to stamp reservations.
func (q *Quota) Now() time.Time { return q.now() }
