package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"donormatch/internal/util"
	"donormatch/services/notifier/internal/app"
	"donormatch/services/notifier/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger("notifier", cfg.LogLevel)

	appCore, err := app.New(app.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		MailStream:    cfg.MailStream,
		MailGroup:     cfg.MailGroup,
		Concurrency:   cfg.Concurrency,
		MaxRetries:    cfg.MaxRetries,
		SMTPAddr:      cfg.SMTPAddr,
		SMTPUsername:  cfg.SMTPUsername,
		SMTPPassword:  cfg.SMTPPassword,
		MailFrom:      cfg.MailFrom,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}
	defer appCore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	appCore.Start(ctx)
	logger.Info("notifier started", "stream", cfg.MailStream, "group", cfg.MailGroup, "concurrency", cfg.Concurrency)
	<-ctx.Done()
	logger.Info("notifier stopped")
}
