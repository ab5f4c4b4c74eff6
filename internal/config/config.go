// Package config loads bot and worker settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BotToken      string
	RedisAddr     string
	DataDir       string
	Concurrency   int
	DailyMax      int
	ScreenshotMax int
	Admins        []int64
	BannedUsers   map[int64]bool
	LogChannel    int64
	HealthAddr    string

	// Bot API endpoints; override both to use a self-hosted Bot API server.
	APIEndpoint  string
	FileEndpoint string

	TelegramUploadMaxByte int64
	StatusEditInterval    time.Duration
	TaskTimeout           time.Duration

	// extraction
	AssumedDuration time.Duration
	BytesPerSecond  int64
	Padding         time.Duration
	FFmpegTimeout   time.Duration
	FetchTimeout    time.Duration
	FFmpegPath      string
	FFprobePath     string
	MediaInfoPath   string
	MediaInfoBytes  int64

	// workspace janitor
	WorkspaceTTL    time.Duration
	JanitorInterval time.Duration

	// settings store
	SettingsBackend string // redis|postgres
	PostgresDSN     string

	FilebinEnable    bool
	FilebinBase      string
	FilebinBinPrefix string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func mustInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
func mustBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return def
}
func mustDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// idList parses whitespace or comma separated numeric ids, skipping junk.
func idList(s string) []int64 {
	var ids []int64
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func Load() Config {
	banned := make(map[int64]bool)
	for _, id := range idList(os.Getenv("BANNED_USERS")) {
		banned[id] = true
	}
	mb := mustInt("TG_UPLOAD_LIMIT_MB", 49)
	c := Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		DataDir:       getenv("DATA_DIR", "/data"),
		Concurrency:   mustInt("CONCURRENCY", 2),
		DailyMax:      mustInt("DAILY_MAX", 200),
		ScreenshotMax: mustInt("SS_MAX", 10),
		Admins:        idList(os.Getenv("ADMIN")),
		BannedUsers:   banned,
		LogChannel:    mustInt64("LOG_CHANNEL", 0),
		HealthAddr:    getenv("HEALTH_ADDR", ":8080"),

		APIEndpoint:  getenv("TG_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),
		FileEndpoint: getenv("TG_FILE_ENDPOINT", "https://api.telegram.org/file/bot%s/%s"),

		TelegramUploadMaxByte: int64(mb) * 1024 * 1024,
		StatusEditInterval:    mustDuration("STATUS_EDIT_INTERVAL", 3*time.Second),
		TaskTimeout:           mustDuration("TASK_TIMEOUT", time.Hour),

		AssumedDuration: mustDuration("EXTRACT_ASSUMED_DURATION", time.Hour),
		BytesPerSecond:  mustInt64("EXTRACT_BYTES_PER_SECOND", 1_000_000),
		Padding:         mustDuration("EXTRACT_PADDING", 5*time.Second),
		FFmpegTimeout:   mustDuration("FFMPEG_TIMEOUT", 10*time.Minute),
		FetchTimeout:    mustDuration("FETCH_TIMEOUT", 30*time.Minute),
		FFmpegPath:      getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getenv("FFPROBE_PATH", "ffprobe"),
		MediaInfoPath:   getenv("MEDIAINFO_PATH", "mediainfo"),
		MediaInfoBytes:  mustInt64("MEDIAINFO_FETCH_BYTES", 4*1024*1024),

		WorkspaceTTL:    mustDuration("WORKSPACE_TTL", 6*time.Hour),
		JanitorInterval: mustDuration("JANITOR_INTERVAL", defaultJanitorInterval),

		SettingsBackend: strings.ToLower(getenv("SETTINGS_BACKEND", "redis")),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),

		FilebinEnable:    mustBool("FILEBIN_ENABLE", false),
		FilebinBase:      strings.TrimRight(getenv("FILEBIN_BASE", "https://filebin.net"), "/"),
		FilebinBinPrefix: getenv("FILEBIN_BIN_PREFIX", ""),
	}
	c.clampJanitor()
	return c
}

const defaultJanitorInterval = 15 * time.Minute

// clampJanitor keeps the sweep interval positive and the workspace TTL above
// the longest a task may run, so a sweep never removes a live workspace.
func (c *Config) clampJanitor() {
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = defaultJanitorInterval
	}
	if c.WorkspaceTTL < c.TaskTimeout {
		c.WorkspaceTTL = c.TaskTimeout + c.JanitorInterval
	}
}

// IsAdmin reports whether id is listed in ADMIN.
func (c Config) IsAdmin(id int64) bool {
	for _, a := range c.Admins {
		if a == id {
			return true
		}
	}
	return false
}
