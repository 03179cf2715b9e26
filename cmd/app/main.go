// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-image-ai/internal/config"
	"telegram-image-ai/internal/domain/ports/adapter"
	imgAdapters "telegram-image-ai/internal/infra/adapters/image"
	payAdapters "telegram-image-ai/internal/infra/adapters/payment"
	tele "telegram-image-ai/internal/infra/adapters/telegram"
	pg "telegram-image-ai/internal/infra/db/postgres"
	"telegram-image-ai/internal/infra/logging"
	"telegram-image-ai/internal/infra/metrics"
	red "telegram-image-ai/internal/infra/redis"
	"telegram-image-ai/internal/infra/sched"
	"telegram-image-ai/internal/infra/web"
	"telegram-image-ai/internal/infra/worker"
	"telegram-image-ai/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	queue := red.NewJobQueue(redisClient, cfg.Redis.QueueKey)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	accountRepo := pg.NewAccountRepo(pool, tm)
	jobRepo := pg.NewJobRepo(pool, tm)
	paymentRepo := pg.NewPaymentRepo(pool, tm)

	// ---- Image providers ----
	byProvider := map[string]adapter.ImageProviderAdapter{}
	if cfg.Providers.OpenAIKey != "" {
		a, err := imgAdapters.NewOpenAIImageAdapter("openai", cfg.Providers.OpenAIKey, "", cfg.Providers.ResultsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = a
	}
	if cfg.Providers.SeedreamKey != "" {
		a, err := imgAdapters.NewOpenAIImageAdapter("seedream", cfg.Providers.SeedreamKey, cfg.Providers.SeedreamBaseURL, cfg.Providers.ResultsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("seedream adapter")
		}
		byProvider["seedream"] = a
	}
	if cfg.Providers.GeminiKey != "" {
		a, err := imgAdapters.NewGeminiImageAdapter(ctx, cfg.Providers.GeminiKey, cfg.Providers.GeminiURL, cfg.Providers.ResultsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = a
	}
	if len(byProvider) == 0 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("no image provider configured")
		}
		logger.Warn().Msg("no image provider configured, using noop")
		byProvider["noop"] = imgAdapters.NewNoopImageAdapter()
	}
	provider := imgAdapters.NewMultiImageAdapter(cfg.Providers.DefaultProvider, byProvider, cfg.Providers.ModelProviders)

	// ---- Notifier ----
	var notifier adapter.ResultNotifier
	if cfg.Telegram.Token != "" {
		notifier, err = tele.NewBotNotifier(cfg.Telegram.Token, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	} else {
		logger.Warn().Msg("no telegram token configured, notifications go to the log")
		notifier = tele.NewNoopNotifier()
	}

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.YooKassa.ShopID != "" {
		gateway, err = payAdapters.NewYooKassaGateway(
			cfg.Payment.YooKassa.ShopID, cfg.Payment.YooKassa.SecretKey, cfg.Payment.YooKassa.ReturnURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa gateway")
		}
	} else {
		logger.Warn().Msg("no payment gateway configured, using noop")
		gateway = payAdapters.NewNoopPaymentGateway()
	}

	// ---- Use cases ----
	ledgerUC := usecase.NewLedgerUseCase(accountRepo, cfg.Ledger.SignupGrant, logger)
	dispatcherUC := usecase.NewDispatcherUseCase(jobRepo, ledgerUC, queue, tm, logger)
	paymentUC := usecase.NewPaymentUseCase(
		paymentRepo, accountRepo, ledgerUC, gateway, notifier, tm,
		cfg.Payment.Packages, cfg.Payment.WebhookSecret, logger)
	statsUC := usecase.NewStatsUseCase(jobRepo, paymentRepo)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Worker.Count, logger)
	pool2.Start(ctx)
	processor := worker.NewImageJobProcessor(jobRepo, ledgerUC, queue, provider, notifier, tm, logger)
	go processor.Start(ctx, pool2)

	// ---- Sweeps ----
	sweep := sched.NewRecoverySweep(jobRepo, ledgerUC, queue, locker, tm, cfg.Sweep.Interval, cfg.Sweep.OrphanGrace, logger)
	go sweep.Start(ctx)
	reconciler := sched.NewPaymentReconciler(paymentUC, cfg.Payment.ReconcileInterval, cfg.Payment.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.CookieDomain, cfg.Admin.SessionTTL)
	srv := web.NewServer(dispatcherUC, ledgerUC, paymentUC, statsUC, auth, cfg.Admin.APIKey, rateLimiter, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	cancel()
	pool2.Stop()
}
