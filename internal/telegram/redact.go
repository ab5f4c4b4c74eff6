package telegram

import "strings"

const tokenMask = "<bot-token>"

// redactedError hides the bot token in the message of err while keeping it
// reachable for errors.Is and errors.As.
type redactedError struct {
	err error
	msg string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// Redact replaces the bot token in err's text. File URLs embed the token, and
// HTTP and ffmpeg errors quote those URLs.
func (p *Platform) Redact(err error) error {
	if err == nil || p.token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, p.token) {
		return err
	}
	return &redactedError{err: err, msg: strings.ReplaceAll(msg, p.token, tokenMask)}
}

// RedactText is Redact for plain strings.
func (p *Platform) RedactText(s string) string {
	if p.token == "" {
		return s
	}
	return strings.ReplaceAll(s, p.token, tokenMask)
}
