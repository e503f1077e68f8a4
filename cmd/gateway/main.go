// Package main запускает HTTP-сервер платёжного шлюза GateSpark.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VrumVrum/Gatespark/internal/config"
	"github.com/VrumVrum/Gatespark/internal/handler"
	"github.com/VrumVrum/Gatespark/internal/ratelimit"
	"github.com/VrumVrum/Gatespark/internal/repository"
	"github.com/VrumVrum/Gatespark/internal/revolut"
	"github.com/VrumVrum/Gatespark/internal/service"
	"github.com/VrumVrum/Gatespark/internal/signature"
	"github.com/VrumVrum/Gatespark/internal/webhook"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var apiClient *revolut.Client
	if cfg.RevolutAPIKey != "" {
		apiClient = revolut.NewClient(cfg.RevolutAPIKey, cfg.SandboxMode)
	} else {
		sugar.Warn("revolut api key not set, checkout operations disabled")
	}

	var api service.PaymentAPI
	if apiClient != nil {
		api = apiClient
	}

	svc := service.NewService(repo, api, logger, cfg.OrderPrefix)
	defer svc.Close()

	secret := cfg.WebhookSecret
	if secret == "" {
		secret, err = svc.EnsureWebhookSecret(context.Background())
		if err != nil {
			sugar.Fatalw("webhook secret initialization error", "error", err.Error())
		}
	}
	verifier := signature.NewVerifier(secret)

	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	defer limiter.Close()

	processor := webhook.NewProcessor(repo, svc, logger)

	h := handler.NewHandler(svc, processor, verifier, limiter, logger)

	r := h.SetupRouter()

	// Устаревший путь вебхуков не требует подписи, в отличие от REST-пути.
	sugar.Warnw("legacy webhook path is enabled without signature verification",
		"path", "/wc-api/gatespark_revolut_webhook")

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового пересчёта дневной статистики
	g.Go(func() error {
		svc.StartDailyStatsRebuild(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting gateway server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
