// Package app assembles the booking store, the conversation orchestrator and the HTTP API
// from configuration.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/crdb"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/gemini"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/jsonfile"
	"github.com/robertarktes/turf-booking-assistant/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/turf-booking-assistant/internal/adapters/redis"
	"github.com/robertarktes/turf-booking-assistant/internal/booking"
	"github.com/robertarktes/turf-booking-assistant/internal/config"
	"github.com/robertarktes/turf-booking-assistant/internal/conversation"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
	httphandler "github.com/robertarktes/turf-booking-assistant/internal/http"
	"github.com/robertarktes/turf-booking-assistant/internal/idempotency"
	"github.com/robertarktes/turf-booking-assistant/internal/observability"
	"github.com/robertarktes/turf-booking-assistant/internal/rateLimit"
	"github.com/robfig/cron/v3"
)

const sweepSchedule = "@every 5m"

type App struct {
	Store   *booking.Store
	Chat    *conversation.Orchestrator
	Handler http.Handler

	logger    observability.Logger
	memory    *conversation.MemorySessionStore
	limiter   *rateLimit.LocalLimiter
	scheduler *cron.Cron
	closers   []func() error
}

type Option func(*options)

type options struct {
	completer conversation.Completer
	clock     func() time.Time
}

// WithCompleter replaces the completion client built from configuration.
func WithCompleter(c conversation.Completer) Option {
	return func(o *options) { o.completer = c }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New connects every configured dependency. Optional ones (Redis, RabbitMQ, Gemini) fall back
// to in-process replacements when unset. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger observability.Logger, opts ...Option) (_ *App, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	checks := map[string]httphandler.Check{}
	storeOpts := []booking.Option{booking.WithClock(o.clock)}

	repo, err := a.openRepository(ctx, cfg, checks)
	if err != nil {
		return nil, err
	}

	var (
		sessions conversation.SessionStore
		idemp    *idempotency.Idempotency
		limiter  rateLimit.Limiter
	)
	if cfg.RedisAddr != "" {
		cache, err := redisadapter.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		checks["redis"] = cache.Ping

		storeOpts = append(storeOpts, booking.WithSlotLocker(cache, cfg.SlotLockTTL))
		sessions = redisadapter.NewSessionStore(cache.Client(), cfg.SessionTTL)
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(cache.Client()), cfg.IdempotencyTTL)
		limiter = rateLimit.NewRateLimiter(cache, cfg.ChatRateLimit, time.Minute, logger)
	} else {
		a.memory = conversation.NewMemorySessionStore(cfg.SessionTTL)
		sessions = a.memory
		idemp = idempotency.NewIdempotency(idempotency.NewMemoryBackend(), cfg.IdempotencyTTL)
		a.limiter = rateLimit.NewLocalLimiter(cfg.ChatRateLimit, time.Minute)
		limiter = a.limiter
	}

	// The crdb backend relays events through its outbox; the file backend publishes directly.
	if cfg.RabbitURL != "" && cfg.StoreBackend == config.BackendFile {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect to rabbitmq")
		}
		a.closers = append(a.closers, conn.Close)
		pub, err := rabbit.NewPublisher(conn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		checks["rabbit"] = func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
		storeOpts = append(storeOpts, booking.WithPublisher(pub))
	}

	completer := o.completer
	if completer == nil {
		completer, err = a.openCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	a.Store = booking.NewStore(repo, logger, storeOpts...)
	if err := a.Store.Seed(ctx, domain.DefaultVenues()); err != nil {
		return nil, err
	}
	if _, ok := checks["store"]; !ok {
		checks["store"] = func(ctx context.Context) error {
			_, err := a.Store.ListVenues(ctx)
			return err
		}
	}

	a.Chat = conversation.New(a.Store, completer, sessions, logger,
		conversation.WithCompletionTimeout(cfg.CompletionTimeout),
		conversation.WithClock(o.clock),
	)

	handlers := httphandler.NewHandlers(a.Store, a.Chat, logger, checks)
	a.Handler = httphandler.SetupRouter(handlers, logger, limiter, idemp)

	if a.memory != nil {
		a.scheduler = cron.New()
		if _, err := a.scheduler.AddFunc(sweepSchedule, a.Sweep); err != nil {
			return nil, errors.Wrap(err, "schedule sweep")
		}
	}

	logger.WithField("backend", cfg.StoreBackend).
		WithField("redis", cfg.RedisAddr != "").
		WithField("rabbit", cfg.RabbitURL != "").
		Info("app assembled")
	return a, nil
}

func (a *App) openRepository(ctx context.Context, cfg *config.Config, checks map[string]httphandler.Check) (booking.Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendCRDB:
		repo, err := crdb.Connect(ctx, cfg.CRDBDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			repo.Close()
			return nil
		})
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		checks["store"] = repo.Ping
		return repo, nil
	default:
		repo, err := jsonfile.Open(cfg.DataFile)
		if err != nil {
			return nil, err
		}
		a.logger.WithField("data_file", repo.Path()).Info("file store opened")
		return repo, nil
	}
}

func (a *App) openCompleter(ctx context.Context, cfg *config.Config) (conversation.Completer, error) {
	if cfg.GeminiAPIKey == "" {
		a.logger.Warn("GEMINI_API_KEY not set, free-text chat is unavailable")
		return conversation.UnavailableCompleter{}, nil
	}
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Start runs background jobs until Close.
func (a *App) Start() {
	if a.scheduler != nil {
		a.scheduler.Start()
	}
}

// Sweep drops idle in-process chat sessions and rate limit buckets. Start runs it on a schedule.
func (a *App) Sweep() {
	if a.memory != nil {
		if n := a.memory.Sweep(); n > 0 {
			a.logger.WithField("sessions", n).Debug("idle sessions dropped")
		}
	}
	if a.limiter != nil {
		if n := a.limiter.Sweep(); n > 0 {
			a.logger.WithField("clients", n).Debug("idle rate limit buckets dropped")
		}
	}
}

// Close stops background jobs and releases connections in reverse order of opening.
func (a *App) Close() {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("close dependency")
		}
	}
	a.closers = nil
}
