package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Test-112k/auraluxx/backend/internal/config"
	"github.com/Test-112k/auraluxx/backend/internal/jobs/cleanup"
	pgrepo "github.com/Test-112k/auraluxx/backend/internal/repo/postgres"
	redrepo "github.com/Test-112k/auraluxx/backend/internal/repo/redis"
	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
	notifysvc "github.com/Test-112k/auraluxx/backend/internal/services/notify"
	ratesvc "github.com/Test-112k/auraluxx/backend/internal/services/rate"
	rewardsvc "github.com/Test-112k/auraluxx/backend/internal/services/reward"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	reward     *rewardsvc.Service
	cleanupJob *cleanup.Job
	stopJobs   context.CancelFunc
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	sessionRepo := redrepo.NewSessionRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)
	userRepo := pgrepo.NewUserRepo(pool)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, sessionRepo, userRepo, cfg.Auth.RefreshTTL)

	entitlementService := entsvc.NewService(entitlementRepo, entsvc.Config{
		GrantDuration: cfg.AdFree.GrantDuration,
		MaxDuration:   cfg.AdFree.MaxDuration,
	})

	attemptLimiter := ratesvc.NewLimiter(
		rateRepo,
		cfg.AdFree.StartsPerMinute,
		cfg.AdFree.StartsPer10Sec,
	)
	notifier := notifysvc.NewRedisNotifier(redisClient, log)

	rewardService := rewardsvc.NewService(entitlementService, attemptLimiter, notifier, rewardsvc.Config{
		MinDwell:         cfg.AdFree.MinDwell,
		WatchTimeout:     cfg.AdFree.WatchTimeout,
		PollInterval:     cfg.AdFree.PollInterval,
		AdURL:            cfg.AdFree.AdURL,
		SessionRetention: cfg.AdFree.SessionRetention,
	}, log)

	cleanupJob := cleanup.New(rewardService, cfg.AdFree.SessionRetention, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:        authService,
		EntitlementService: entitlementService,
		RewardService:      rewardService,
		Logger:             log,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		reward:     rewardService,
		cleanupJob: cleanupJob,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	jobsCtx, cancel := context.WithCancel(context.Background())
	a.stopJobs = cancel
	go a.cleanupJob.Start(jobsCtx)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.stopJobs != nil {
		a.stopJobs()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	a.reward.Close()
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
