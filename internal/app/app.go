// Package app assembles the services shared by the API server and lmsctl.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dangerclosesec/coursehub/internal/audit"
	"github.com/dangerclosesec/coursehub/internal/cache"
	"github.com/dangerclosesec/coursehub/internal/config"
	"github.com/dangerclosesec/coursehub/internal/database"
	"github.com/dangerclosesec/coursehub/internal/email"
	"github.com/dangerclosesec/coursehub/internal/email/mailer"
	"github.com/dangerclosesec/coursehub/internal/payments"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Store  *repository.Store
	Logger *slog.Logger

	// Gateway is nil when STRIPE_SECRET_KEY is unset.
	Gateway  payments.Gateway
	Verifier *payments.WebhookVerifier

	Cache       *service.CacheService
	Catalog     *service.CatalogService
	Invitations *service.InvitationService
	Purchases   *service.PurchaseService
	Enrollments *service.EnrollmentService
	Seats       *service.SeatService
	Courses     *service.CourseService
	Progress    *service.ProgressService
	Checkout    *service.CheckoutService
	Reconcile   *service.ReconciliationService

	redis *goredis.Client
	pool  *pgxpool.Pool
}

// Options selects the optional backends. The CLI skips the RLS pool.
type Options struct {
	RLSReads bool
}

func New(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Store:  repository.NewStore(db),
		Logger: logger,
	}

	if cfg.Stripe.SecretKey != "" {
		a.Gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
	} else {
		logger.Warn("stripe secret key not set, checkout and replay are disabled")
	}
	a.Verifier = payments.NewWebhookVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)

	// Redis backs both the price cache and the per-session lock when
	// configured; otherwise both stay in-process.
	var locker cache.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.redis = rdb
		a.Cache = service.NewCacheServiceWithStore(cache.NewRedisCache(rdb, "coursehub:cache:", cfg.Cache.TTL), cfg.Cache.TTL)
		locker = cache.NewRedisLocker(rdb, "coursehub:lock:", cfg.Redis.LockTTL)
	} else {
		a.Cache = service.NewCacheService(service.CacheConfig{
			TTL:         cfg.Cache.TTL,
			CleanupFreq: cfg.Cache.CleanupFreq,
		})
	}

	emailService, err := email.NewEmailService(cfg, email.Provider(cfg.Email.Provider), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing email service: %w", err)
	}
	notifier := mailer.NewCourseMailer(emailService)

	var reader service.EnrollmentReader
	if opts.RLSReads {
		pool, err := database.NewPool(ctx, database.DSN(cfg))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening rls pool: %w", err)
		}
		a.pool = pool
		reader = database.NewRLSEnrollmentReader(pool)
	}

	a.Catalog = service.NewCatalogService(a.Store.Products, a.Store.Courses, a.Cache, a.Gateway, logger)
	a.Invitations = service.NewInvitationService(
		a.Store,
		service.NewTokenHasher(cfg.Invitations.TokenKey),
		notifier,
		cfg.Invitations.TTL,
		cfg.BaseURL,
		logger,
	)
	a.Purchases = service.NewPurchaseService(service.PurchaseDeps{
		Store:       a.Store,
		Prices:      a.Catalog,
		Invitations: a.Invitations,
		Gateway:     a.Gateway,
		Locker:      locker,
		LockTTL:     cfg.Redis.LockTTL,
		Notifier:    notifier,
		Audit:       audit.NewLogger(logger),
		BaseURL:     cfg.BaseURL,
		Logger:      logger,
	})
	a.Enrollments = service.NewEnrollmentService(a.Store, reader, logger)
	a.Seats = service.NewSeatService(a.Store, logger)
	a.Courses = service.NewCourseService(a.Store, logger)
	a.Progress = service.NewProgressService(a.Store, cfg.Quiz.PassPercent, logger)
	a.Checkout = service.NewCheckoutService(a.Store, a.Store.Products, a.Gateway, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, logger)
	a.Reconcile = service.NewReconciliationService(a.Store, a.Purchases, a.Gateway, cfg.Reconcile.Interval, cfg.Reconcile.StaleAge, logger)
	a.Reconcile.SetBatchSize(cfg.Reconcile.BatchSize)

	return a, nil
}

// Close releases the cache, redis and pgx connections.
func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("closing redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
