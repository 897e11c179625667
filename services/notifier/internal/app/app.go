package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"donormatch/pkg/mail"
	"donormatch/pkg/queue"
)

// Consumer is the worker side of the job queue.
type Consumer interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

// Config holds runtime configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	MailStream    string
	MailGroup     string
	Concurrency   int
	MaxRetries    int

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	Queue  Consumer
	Sender mail.Sender
	Logger *slog.Logger
}

// App delivers queued mail jobs.
type App struct {
	queue       Consumer
	renderer    *mail.Renderer
	sender      mail.Sender
	concurrency int
	logger      *slog.Logger
	closers     []func() error
}

// New constructs the notifier. Without an SMTP address mail is only logged.
func New(cfg Config) (*App, error) {
	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("init mail renderer: %w", err)
	}
	a := &App{
		queue:       cfg.Queue,
		renderer:    renderer,
		sender:      cfg.Sender,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.sender == nil {
		if strings.TrimSpace(cfg.SMTPAddr) == "" {
			a.logger.Warn("smtpAddr not set, mail will be logged instead of sent")
			a.sender = mail.LogSender{Logger: a.logger}
		} else {
			a.sender = mail.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		}
	}
	if a.queue == nil {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     cfg.MailStream,
			Group:      cfg.MailGroup,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: 10 * time.Second,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init mail queue: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, q.Close)
	}
	return a, nil
}

// Start launches the queue consumers. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.queue.Start(ctx, a.concurrency, a.Handle)
}

// Handle renders and sends one mail job. Jobs of other kinds are acked and
// skipped.
func (a *App) Handle(ctx context.Context, job queue.Job) error {
	if job.Kind != mail.JobKind {
		a.logger.Warn("job_skipped", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
	var req mail.Request
	if err := job.Decode(&req); err != nil {
		return err
	}
	msg, err := a.renderer.Render(req)
	if err != nil {
		return fmt.Errorf("render mail: %w", err)
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		a.logger.Warn("mail_send_failed", "job_id", job.ID, "template", req.Template, "attempt", job.Attempts, "err", err)
		return fmt.Errorf("send mail: %w", err)
	}
	a.logger.Info("mail_sent", "job_id", job.ID, "template", req.Template)
	return nil
}

// Close releases the queue connection.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
