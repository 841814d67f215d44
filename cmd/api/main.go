package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"voicecall-platform/internal/agents"
	"voicecall-platform/internal/audit"
	"voicecall-platform/internal/auth"
	"voicecall-platform/internal/calls"
	"voicecall-platform/internal/config"
	"voicecall-platform/internal/db"
	"voicecall-platform/internal/elevenlabs"
	"voicecall-platform/internal/httpapi"
	"voicecall-platform/internal/metrics"
	"voicecall-platform/internal/poller"
	"voicecall-platform/internal/rbac"
	"voicecall-platform/internal/reporting"
	"voicecall-platform/internal/translate"
	"voicecall-platform/pkg/logger"
	"voicecall-platform/pkg/utils"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- storage ----
	var (
		sqlDB     *sql.DB
		callsRepo calls.Repository = calls.NewMemoryRepo()
		auditRepo audit.Repository = audit.NewMemoryRepo()
	)
	if cfg.HasDatabase() {
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return err
		}
		log.Info("database migrations applied")

		var err error
		sqlDB, err = utils.OpenPostgres(ctx, utils.DriverPgx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		callsRepo = calls.NewPostgresRepo(sqlDB)
		auditRepo = audit.NewPostgresRepo(sqlDB)
	} else {
		log.Warn("DB_HOST not set, keeping batch records and audit events in memory")
	}

	var (
		rdb        *redis.Client
		slots      calls.SlotLimiter = calls.NewLocalSlots(cfg.Poll.MaxActive)
		statsCache reporting.Cache   = reporting.NewMemoryCache(cfg.Stats.CacheTTL)
	)
	if cfg.HasRedis() {
		var err error
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		// Slots outlive the longest possible task so a crashed replica's
		// slots expire on their own.
		slots = calls.NewRedisSlots(rdb, cfg.Poll.MaxActive, cfg.PollBudget()+time.Minute)
		statsCache = reporting.NewRedisCache(rdb, cfg.Stats.CacheTTL)
	} else {
		log.Warn("REDIS_HOST not set, active-poll cap and stats cache are per process")
	}

	// ---- vendor + services ----
	vendor, err := elevenlabs.NewClient(elevenlabs.Options{
		BaseURL:       cfg.Vendor.BaseURL,
		APIKey:        cfg.Vendor.APIKey,
		SubmitTimeout: cfg.Vendor.SubmitTimeout,
		StatusTimeout: cfg.Vendor.StatusTimeout,
		ReadTimeout:   cfg.Vendor.ReadTimeout,
		RatePerSecond: cfg.Vendor.RatePerSecond,
		Observer:      m.VendorObserver(),
	})
	if err != nil {
		return err
	}

	auditSvc := audit.NewService(auditRepo)
	onPollStart, onPollFinish := m.PollHooks()
	callsSvc := calls.NewService(calls.Options{
		Repo:   callsRepo,
		Vendor: vendor,
		Poller: poller.New(vendor, poller.Config{
			InitialDelay: cfg.Poll.InitialDelay,
			Interval:     cfg.Poll.Interval,
			MaxAttempts:  cfg.Poll.MaxAttempts,
		}, poller.WithLogger(log)),
		Slots: slots,
		Audit: auditSvc,
		Defaults: calls.Defaults{
			AgentID:       cfg.Vendor.AgentID,
			PhoneNumberID: cfg.Vendor.AgentPhoneNumberID,
		},
		Hooks: calls.Hooks{
			OnSubmit:     m.SubmissionHook(),
			OnPollStart:  onPollStart,
			OnPollFinish: onPollFinish,
		},
		Logger: log,
	})

	reports := reporting.NewService(reporting.Options{
		Source:         vendor,
		Cache:          statsCache,
		DefaultAgentID: cfg.Vendor.AgentID,
		PageSize:       cfg.Stats.PageSize,
		OnCache:        m.CacheHook(),
		Logger:         log,
	})

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	h := httpapi.Handlers{
		Tokens: tokens,
		Passwords: auth.NewAuthenticator(
			auth.Credential{Role: rbac.RoleAdmin, Password: cfg.Auth.AdminPassword},
			auth.Credential{Role: rbac.RoleOperator, Password: cfg.Auth.DashboardPassword},
			auth.Credential{Role: rbac.RoleViewer, Password: cfg.Auth.ViewerPassword},
		),
		Calls:         callsSvc,
		Reports:       reports,
		Conversations: vendor,
		Translator: translate.NewClient(translate.Options{
			URL:     cfg.Translate.URL,
			APIKey:  cfg.Translate.APIKey,
			Source:  cfg.Translate.Source,
			Target:  cfg.Translate.Target,
			Timeout: cfg.Translate.Timeout,
			Logger:  log,
		}),
		Agents: agents.NewVerifier(vendor, cfg.Vendor.AgentID),
		Audit:  auditSvc,
		Ready:  readiness(sqlDB, rdb),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, auth.RequireAccessToken(tokens), reg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Submissions wait on the vendor for up to the submit timeout.
		WriteTimeout: cfg.Vendor.SubmitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if active := callsSvc.ActivePolls(); len(active) > 0 {
		log.Warn("stopping active polls; their outcomes will be unknown", "batch_ids", active)
	}
	if err := callsSvc.Shutdown(shutdownCtx); err != nil {
		log.Error("poll shutdown failed", "err", err)
	}
	return nil
}

func readiness(sqlDB *sql.DB, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if sqlDB != nil {
			if err := utils.HealthCheck(ctx, sqlDB, time.Second); err != nil {
				return err
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
