package logx

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// tailLines is how many trailing lines a LineWriter keeps for error messages.
const tailLines = 8

// LineWriter turns stream output into per-line zerolog events at a given level.
// It is an io.Writer so it can be assigned to exec.Cmd.Stderr directly.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level

	mu   sync.Mutex
	buf  bytes.Buffer
	tail []string
}

func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

func (lw *LineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buf.Write(p)
	for {
		line, err := lw.buf.ReadString('\n')
		if err != nil {
			// partial line: keep it for the next write
			lw.buf.Reset()
			lw.buf.WriteString(line)
			break
		}
		lw.emit(line)
	}
	return len(p), nil
}

// Flush emits a trailing line that had no newline.
func (lw *LineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.buf.Len() > 0 {
		lw.emit(lw.buf.String())
		lw.buf.Reset()
	}
}

// Tail returns the last lines written, oldest first.
func (lw *LineWriter) Tail() string {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return strings.Join(lw.tail, "\n")
}

func (lw *LineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	lw.tail = append(lw.tail, line)
	if len(lw.tail) > tailLines {
		lw.tail = lw.tail[len(lw.tail)-tailLines:]
	}
	switch lw.level {
	case zerolog.DebugLevel:
		lw.logger.Debug().Msg(line)
	case zerolog.ErrorLevel:
		lw.logger.Error().Msg(line)
	default:
		lw.logger.Info().Msg(line)
	}
}
