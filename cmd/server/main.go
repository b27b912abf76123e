package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/zjoart/paystack-settlements/cmd/routes"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/middleware"
	"github.com/zjoart/paystack-settlements/internal/paystack"
	"github.com/zjoart/paystack-settlements/internal/settlement"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/config"
	"github.com/zjoart/paystack-settlements/pkg/database"
	"github.com/zjoart/paystack-settlements/pkg/events"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Env)
	defer logger.Sync()

	database.Connect(cfg.DBUrl)
	database.Migrate(
		&wallet.Wallet{},
		&wallet.BankAccount{},
		&wallet.Transaction{},
		&fee.Configuration{},
		&fee.Tier{},
		&settlement.Settlement{},
		&settlement.Schedule{},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := paystack.NewClient(paystack.Config{
		SecretKey: cfg.PaystackSecret,
		BaseURL:   cfg.PaystackBaseURL,
		Timeout:   cfg.PaystackTimeout,
	})

	feeRepo := fee.NewRepository(database.DB)
	calculator := fee.NewCalculator(fee.NewConfig(cfg.Fees), feeRepo)

	walletRepo := wallet.NewRepository(database.DB, cfg.Location())
	walletSvc := wallet.NewService(wallet.Config{
		Currency:       cfg.Currency,
		MinimumBalance: cfg.MinimumBalance,
		CallbackURL:    cfg.CallbackURL,
		Channels:       cfg.PaystackChannels,
	}, walletRepo, client, calculator)

	// inline mode runs a single replica and needs no Redis
	router := events.NewRouter()
	var (
		dispatcher events.Dispatcher
		locker     settlement.Locker
	)
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		redisClient := events.NewRedisClient(cfg)
		dispatcher = redisClient
		locker = redisClient
		events.NewWorker(redisClient, router).Start(ctx)
	default:
		dispatcher = events.NewInlineDispatcher(router)
	}

	settlementRepo := settlement.NewRepository(database.DB, cfg.Location())
	engine := settlement.NewEngine(settlement.Config{
		Currency:       cfg.Currency,
		MinimumBalance: cfg.MinimumBalance,
	}, settlementRepo, client, calculator, dispatcher)
	reconciler := settlement.NewReconciler(engine, walletSvc)
	scheduler := settlement.NewScheduler(settlement.SchedulerConfig{
		MinimumBalance: cfg.MinimumBalance,
		Location:       cfg.Location(),
		LockTTL:        cfg.SchedulerLockTTL,
	}, settlementRepo, engine, locker)

	router.Handle(events.JobProcessSettlement, engine.HandleProcessJob)
	router.Handle(events.JobPaystackWebhook, reconciler.HandleWebhookJob)

	go scheduler.Run(ctx, cfg.SchedulerInterval)

	handler := routes.RegisterRoutes(mux.NewRouter(), cfg, routes.Handlers{
		Wallet:     wallet.NewHandler(walletSvc),
		Settlement: settlement.NewHandler(engine, scheduler, dispatcher, cfg.PaystackSecret),
		Fee:        fee.NewHandler(calculator, feeRepo),
		Limiter:    middleware.NewRateLimiter(ctx, rate.Limit(20), 40),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PaystackTimeout + 15*time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env, "dispatch_mode": cfg.DispatchMode})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", logger.WithError(err))
	}
	logger.Info("Server gracefully shut down")
}
