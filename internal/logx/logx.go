// Package logx configures the zerolog global logger and carries request
// fields through contexts.
package logx

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, output format and the optional rotating file.
type Config struct {
	Service string // bot, worker or localtest
	Level   string // debug|info|warn|error
	Format  string // json|console

	FilePath       string // "" disables the file sink
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
	FileCompress   bool

	SampleEveryN int // keep 1 of N events when > 0

	Redact []string // secrets masked in every event, e.g. the bot token
}

// FromEnv reads LOG_* variables. Unparseable numbers fall back to defaults.
func FromEnv(service string) Config {
	return Config{
		Service:        service,
		Level:          strings.ToLower(envStr("LOG_LEVEL", "info")),
		Format:         strings.ToLower(envStr("LOG_FORMAT", "json")),
		FilePath:       envStr("LOG_FILE", ""),
		FileMaxSizeMB:  envInt("LOG_FILE_MAX_SIZE", 50),
		FileMaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 3),
		FileMaxAgeDays: envInt("LOG_FILE_MAX_AGE", 7),
		FileCompress:   envBool("LOG_FILE_COMPRESS", true),
		SampleEveryN:   envInt("LOG_SAMPLE_EVERY", 0),
	}
}

func envStr(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(envStr(k, ""))
	if err != nil {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(envStr(k, "")) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Setup installs the logger described by c as zerolog's global and returns it.
func Setup(c Config) zerolog.Logger {
	return setup(c, os.Stdout)
}

func setup(c Config, stdout io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	sinks := []io.Writer{terminal(c.Format, stdout)}
	if f := rotating(c); f != nil {
		sinks = append(sinks, f)
	}

	var out io.Writer = zerolog.MultiLevelWriter(sinks...)
	if m := masker(c.Redact); m != nil {
		out = &redactWriter{w: out, mask: m}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().Timestamp().Str("svc", c.Service).
		Logger()
	if c.SampleEveryN > 0 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(c.SampleEveryN)})
	}

	log.Logger = logger
	return logger
}

func terminal(format string, w io.Writer) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return w
}

func rotating(c Config) io.Writer {
	if c.FilePath == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   c.FilePath,
		MaxSize:    c.FileMaxSizeMB,
		MaxBackups: c.FileMaxBackups,
		MaxAge:     c.FileMaxAgeDays,
		Compress:   c.FileCompress,
	}
}

const secretMask = "<redacted>"

func masker(secrets []string) *strings.Replacer {
	var pairs []string
	for _, s := range secrets {
		if s != "" {
			pairs = append(pairs, s, secretMask)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

// redactWriter masks secrets in encoded events before any sink sees them.
type redactWriter struct {
	w    io.Writer
	mask *strings.Replacer
}

func (r *redactWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(r.w, r.mask.Replace(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

type fieldsKey struct{}

// fields is what FromCtx adds to every event.
type fields struct {
	requestID string
	userID    int64
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

// WithRequest tags ctx with the request id and its requester.
func WithRequest(ctx context.Context, requestID string, userID int64) context.Context {
	return context.WithValue(ctx, fieldsKey{}, fields{requestID: requestID, userID: userID})
}

// WithUser tags ctx with the requester before a request id exists.
func WithUser(ctx context.Context, userID int64) context.Context {
	f := fieldsFrom(ctx)
	f.userID = userID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// FromCtx returns the global logger with rid and uid attached when ctx has them.
func FromCtx(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return log.Logger
	}
	f := fieldsFrom(ctx)
	lc := log.Logger.With()
	if f.requestID != "" {
		lc = lc.Str("rid", f.requestID)
	}
	if f.userID != 0 {
		lc = lc.Int64("uid", f.userID)
	}
	return lc.Logger()
}
