package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/logx"
)

// CancelData is the callback payload of the Cancel button for a request.
func CancelData(requestID string) string { return "cancel:" + requestID }

// CancelKeyboard is attached to every in-progress status.
func CancelKeyboard(requestID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", CancelData(requestID)),
		),
	)
}

// Status is the single message a request reports progress in. Unforced
// updates closer together than the platform interval are dropped. It
// implements extract.Observer.
type Status struct {
	p         *Platform
	ctx       context.Context
	chatID    int64
	msgID     int
	requestID string
	now       func() time.Time

	mu       sync.Mutex
	last     time.Time
	lastText string
	title    string
	started  time.Time
}

// Status binds to an existing message, usually the "Queued" reply the bot
// sent before enqueueing.
func (p *Platform) Status(ctx context.Context, chatID int64, msgID int, requestID string) *Status {
	return &Status{p: p, ctx: ctx, chatID: chatID, msgID: msgID, requestID: requestID, now: time.Now}
}

func (s *Status) MessageID() int { return s.msgID }

// Update edits the message to text with the Cancel button.
func (s *Status) Update(text string, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit(s.ctx, text, force, true)
}

// Final replaces the text and drops the keyboard. It still runs after the
// request context is cancelled.
func (s *Status) Final(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit(context.WithoutCancel(s.ctx), text, true, false)
}

// Delete removes the status message.
func (s *Status) Delete() {
	if s.msgID == 0 {
		return
	}
	ctx := context.WithoutCancel(s.ctx)
	if err := s.p.request(ctx, tgbotapi.NewDeleteMessage(s.chatID, s.msgID)); err != nil {
		logger := logx.FromCtx(s.ctx)
		logger.Debug().Err(err).Msg("status delete failed")
	}
}

// edit must be called with mu held.
func (s *Status) edit(ctx context.Context, text string, force, keyboard bool) {
	if s.msgID == 0 || text == s.lastText {
		return
	}
	now := s.now()
	if !force && now.Sub(s.last) < s.p.interval {
		return
	}

	var c tgbotapi.Chattable
	if keyboard {
		c = tgbotapi.NewEditMessageTextAndMarkup(s.chatID, s.msgID, text, CancelKeyboard(s.requestID))
	} else {
		c = tgbotapi.NewEditMessageText(s.chatID, s.msgID, text)
	}
	if _, err := s.p.send(ctx, c); err != nil && !isNotModified(err) {
		logger := logx.FromCtx(ctx)
		logger.Debug().Err(err).Msg("status edit failed")
		return
	}
	s.last = now
	s.lastText = text
}

func (s *Status) Phase(p extract.Phase, detail string) {
	var text string
	switch p {
	case extract.PhaseDurationResolving:
		text = "🔎 Checking duration…"
	case extract.PhaseWindowSelected:
		text = "🎯 Segment " + detail
	case extract.PhaseExtracting:
		text = "✂️ Extracting…"
	case extract.PhaseUploading:
		text = "⬆️ Uploading…"
	default:
		return
	}
	s.Update(text, true)
}

func (s *Status) Tier(t extract.Tier) {
	var title string
	switch t {
	case extract.TierDirect:
		title = "✂️ Cutting from the remote file…"
	case extract.TierByteRange:
		title = "✂️ Fetching the segment…"
	default:
		title = "⬇️ Downloading the full file…"
	}
	s.mu.Lock()
	s.title = title
	s.started = s.now()
	s.mu.Unlock()
	s.Update(title, true)
}

// Progress renders a transfer progress bar under the current tier title.
func (s *Status) Progress(done, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = s.now()
	}
	elapsed := s.now().Sub(s.started)
	s.edit(s.ctx, ProgressText(s.title, done, total, elapsed), done >= total && total > 0, true)
}

// ProgressText formats a transfer as a ten-cell bar with size, speed and ETA.
func ProgressText(title string, done, total int64, elapsed time.Duration) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}

	pct := 0.0
	if total > 0 {
		pct = min(float64(done)*100/float64(total), 100)
	}
	filled := int(pct / 10)
	b.WriteString("[" + strings.Repeat("■", filled) + strings.Repeat("□", 10-filled) + "]")
	fmt.Fprintf(&b, " %.1f%%\n", pct)

	totalText := "?"
	if total > 0 {
		totalText = humanize.Bytes(uint64(total))
	}
	fmt.Fprintf(&b, "🔗 Size: %s | %s\n", humanize.Bytes(uint64(max(done, 0))), totalText)

	var speed float64
	if secs := elapsed.Seconds(); secs > 0 {
		speed = float64(done) / secs
	}
	fmt.Fprintf(&b, "⚡ Speed: %s/s\n", humanize.Bytes(uint64(speed)))

	eta := "-"
	if speed > 0 && total > done {
		eta = extract.FormatClock(int(float64(total-done) / speed))
	}
	fmt.Fprintf(&b, "🕰 ETA: %s", eta)
	return b.String()
}
