package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/fetch"
	"github.com/wapuda/metanix/internal/ffmpeg"
	"github.com/wapuda/metanix/internal/filebin"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/quota"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
	"github.com/wapuda/metanix/internal/worker"
)

func main() {
	_ = godotenv.Load()
	c := config.Load()

	lc := logx.FromEnv("worker")
	lc.Redact = []string{c.BotToken}
	logx.Setup(lc)
	log.Info().Int("concurrency", c.Concurrency).Msg("worker starting")

	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN required")
	}
	if err := os.MkdirAll(filepath.Join(c.DataDir, "requests"), 0o755); err != nil {
		log.Fatal().Err(err).Msg("data dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	defer rdb.Close()

	store, err := settings.Open(ctx, c.SettingsBackend, rdb, c.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Str("backend", c.SettingsBackend).Msg("settings store")
	}
	defer store.Close()

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(c.BotToken, c.APIEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}

	dl := fetch.New(fetch.WithTimeout(c.FetchTimeout))
	tg := telegram.New(api, c.BotToken,
		telegram.WithFileEndpoint(c.FileEndpoint),
		telegram.WithDownloader(dl),
		telegram.WithStatusInterval(c.StatusEditInterval),
	)
	tools := ffmpeg.NewRunner(
		ffmpeg.WithBinaries(c.FFmpegPath, c.FFprobePath, c.MediaInfoPath),
		ffmpeg.WithTimeout(c.FFmpegTimeout),
	)

	var bin *filebin.Client
	if c.FilebinEnable {
		bin = filebin.New(c.FilebinBase)
		log.Info().Str("base", c.FilebinBase).Msg("filebin enabled for oversized results")
	}

	w := worker.New(c, worker.Deps{
		Telegram: tg,
		Tools:    tools,
		Ranges:   dl,
		Store:    store,
		Quota:    quota.New(rdb, c.DailyMax),
		Bin:      bin,
	})

	go worker.NewJanitor(c.DataDir, c.WorkspaceTTL, c.JanitorInterval).Start(ctx)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: c.RedisAddr}, asynq.Config{
		Concurrency: c.Concurrency,
		Queues:      map[string]int{jobs.Queue: 1},
		Logger:      asynqLogger{},
	})
	mux := asynq.NewServeMux()
	w.Register(mux)

	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("asynq server")
	}
	<-ctx.Done()
	log.Info().Msg("worker stopping")
	srv.Shutdown()
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Str("src", "asynq").Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Str("src", "asynq").Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Str("src", "asynq").Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Str("src", "asynq").Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Str("src", "asynq").Msg(fmt.Sprint(args...)) }
