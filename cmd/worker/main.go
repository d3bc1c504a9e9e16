package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"

	"github.com/lumistore/checkout-api/internal/config"
	"github.com/lumistore/checkout-api/internal/notify"
	"github.com/lumistore/checkout-api/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	if !cfg.NotifyQueueEnabled {
		logger.Fatal().Msg("worker requires NOTIFY_QUEUE_ENABLED=true")
	}
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "checkout"), nil)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		},
		asynq.Config{
			Concurrency: envInt("WORKER_CONCURRENCY", 4),
			Queues:      map[string]int{notify.QueueName: 1},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(notify.TaskTypePaymentNotification, notify.TaskHandler{
		Sender: notify.Discord{
			WebhookURL: cfg.DiscordWebhookURL,
			Client:     notify.HttpClient(cfg.OutboundTimeout),
		},
		Logger: logger,
	})

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
