package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/metanix/internal/bot"
	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/quota"
	"github.com/wapuda/metanix/internal/settings"
	"github.com/wapuda/metanix/internal/telegram"
)

func main() {
	_ = godotenv.Load()
	c := config.Load()

	lc := logx.FromEnv("bot")
	lc.Redact = []string{c.BotToken}
	logx.Setup(lc)
	log.Info().Msg("bot starting")

	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// health endpoint
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
		log.Info().Str("addr", c.HealthAddr).Msg("bot health on /health")
		if err := http.ListenAndServe(c.HealthAddr, mux); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(c.BotToken, c.APIEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	api.Debug = false
	log.Info().Str("username", api.Self.UserName).Msg("bot authorized")

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", c.RedisAddr).Msg("redis unreachable")
	}

	store, err := settings.Open(ctx, c.SettingsBackend, rdb, c.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Str("backend", c.SettingsBackend).Msg("settings store")
	}
	defer store.Close()

	redisOpt := asynq.RedisClientOpt{Addr: c.RedisAddr}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()
	insp := asynq.NewInspector(redisOpt)
	defer insp.Close()

	tg := telegram.New(api, c.BotToken, telegram.WithFileEndpoint(c.FileEndpoint))
	b := bot.New(c, tg, store, quota.New(rdb, c.DailyMax), queue, insp)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bot stopping")
			api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			// Handlers block on Bot API calls; keep polling while they run.
			go handle(ctx, b, upd)
		}
	}
}

func handle(ctx context.Context, b *bot.Bot, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("update_id", upd.UpdateID).Msg("update handler panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	b.HandleUpdate(ctx, upd)
}
