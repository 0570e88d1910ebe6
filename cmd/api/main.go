package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyunsookim/commerce/internal/application/checkout"
	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	"github.com/hyunsookim/commerce/internal/bootstrap"
	"github.com/hyunsookim/commerce/internal/controller"
	"github.com/hyunsookim/commerce/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "commerce-api", "commerce")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	productRepo := postgres.NewProductRepository(app.Pool)
	accountRepo := postgres.NewAccountRepository(app.Pool)
	couponRepo := postgres.NewCouponRepository(app.Pool)
	queueRepo := postgres.NewQueueRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool, app.Config.Relay.StaleAfter, app.Config.Relay.MaxRetries)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Use cases ---
	placeOrderUC := checkout.NewPlaceOrderUseCase(orderRepo, productRepo, couponRepo, outboxRepo, txManager, app.Logger, app.Metrics)
	getOrderUC := checkout.NewGetOrderUseCase(orderRepo)
	joinQueueUC := couponqueue.NewJoinQueueUseCase(couponRepo, queueRepo, outboxRepo, txManager, app.Logger, app.Metrics)
	queueStatusUC := couponqueue.NewQueueStatusUseCase(queueRepo)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		PlaceOrder:      placeOrderUC,
		GetOrder:        getOrderUC,
		JoinQueue:       joinQueueUC,
		QueueStatus:     queueStatusUC,
		AccountRepo:     accountRepo,
		IdempotencyRepo: idempotencyRepo,
		IdempotencyTTL:  app.Config.Queue.IdempotencyTTL,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
