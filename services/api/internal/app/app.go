package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"donormatch/internal/util"
	"donormatch/pkg/eventbus"
	"donormatch/pkg/mail"
	"donormatch/pkg/queue"
	"donormatch/pkg/session"
	"donormatch/pkg/storage"
	"donormatch/pkg/store"
)

// Config holds runtime configuration for the core application. Any of the
// prebuilt dependencies may be supplied; the rest are built from the
// connection settings.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTKeyID          string
	JWTIssuer         string
	JWTAudience       string
	JWTLeeway         time.Duration
	SessionTTL        time.Duration
	RefreshTTL        time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AMQPURL      string
	AMQPExchange string
	MailStream   string

	ChatHistoryLimit int
	PublicBaseURL    string

	Store    store.Store
	Sessions *session.Manager
	Refresh  *session.RefreshStore
	Objects  storage.ObjectStore
	Mail     queue.Enqueuer
	Events   eventbus.Publisher
}

// App is the core application service wiring together storage and the
// matching rules.
type App struct {
	store            store.Store
	sessions         *session.Manager
	refresh          *session.RefreshStore
	objects          storage.ObjectStore
	mail             queue.Enqueuer
	events           eventbus.Publisher
	chatHistoryLimit int
	publicBaseURL    string
	presignExpiry    time.Duration
	now              func() time.Time
	closers          []func() error
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	a := &App{
		store:            cfg.Store,
		sessions:         cfg.Sessions,
		refresh:          cfg.Refresh,
		objects:          cfg.Objects,
		mail:             cfg.Mail,
		events:           cfg.Events,
		chatHistoryLimit: cfg.ChatHistoryLimit,
		publicBaseURL:    strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		presignExpiry:    15 * time.Minute,
		now:              time.Now,
	}
	if a.chatHistoryLimit <= 0 {
		a.chatHistoryLimit = 200
	}
	if err := a.init(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(cfg Config) error {
	if a.store == nil {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = gormStore
		a.closers = append(a.closers, gormStore.Close)
	}

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for sessions and refresh tokens")
		}
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, rdb.Close)
		return rdb, nil
	}

	if a.sessions == nil {
		client, err := redisClient()
		if err != nil {
			return err
		}
		manager, err := session.NewManager(session.Options{
			PrivateKeyPath: cfg.JWTPrivateKeyPath,
			PublicKeyPath:  cfg.JWTPublicKeyPath,
			KeyID:          cfg.JWTKeyID,
			TTL:            cfg.SessionTTL,
			Issuer:         cfg.JWTIssuer,
			Audience:       cfg.JWTAudience,
			Leeway:         cfg.JWTLeeway,
		}, session.NewRedisRevoker(client, "donormatch"))
		if err != nil {
			return fmt.Errorf("init session manager: %w", err)
		}
		a.sessions = manager
	}
	if a.refresh == nil {
		client, err := redisClient()
		if err != nil {
			return err
		}
		a.refresh = session.NewRefreshStore(client, "donormatch", cfg.RefreshTTL)
	}

	if a.objects == nil {
		objStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		a.objects = objStore
	}

	if a.mail == nil {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.MailStream,
			Group:    "notifier",
		})
		if err != nil {
			return fmt.Errorf("init mail queue: %w", err)
		}
		a.mail = q
		a.closers = append(a.closers, q.Close)
	}

	if a.events == nil {
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			a.events = eventbus.NopPublisher{}
		} else {
			pub, err := eventbus.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return fmt.Errorf("init event publisher: %w", err)
			}
			a.events = pub
			a.closers = append(a.closers, pub.Close)
		}
	}
	return nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Store exposes the data store for maintenance tooling.
func (a *App) Store() store.Store {
	return a.store
}

// enqueueMail queues a mail job. Delivery problems never fail the caller.
func (a *App) enqueueMail(ctx context.Context, req mail.Request) {
	if strings.TrimSpace(req.To) == "" {
		return
	}
	if req.Data == nil {
		req.Data = map[string]string{}
	}
	if _, ok := req.Data["AppURL"]; !ok && a.publicBaseURL != "" {
		req.Data["AppURL"] = a.publicBaseURL
	}
	job, err := a.mail.Enqueue(ctx, mail.JobKind, req)
	logger := util.LoggerFromContext(ctx)
	if err != nil {
		logger.Warn("mail_enqueue_failed", "template", req.Template, "err", err)
		return
	}
	logger.Info("mail_enqueued", "template", req.Template, "job_id", job.ID)
}

func (a *App) publish(ctx context.Context, ev eventbus.OpportunityEvent) {
	if err := a.events.Publish(ctx, ev.RoutingKey(), ev); err != nil {
		util.LoggerFromContext(ctx).Warn("event_publish_failed",
			"type", ev.Type,
			"opportunity_key", ev.OpportunityKey,
			"err", err,
		)
	}
}

func (a *App) timestamp() time.Time {
	return a.now().UTC()
}
