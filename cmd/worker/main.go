package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	"github.com/hyunsookim/commerce/internal/application/relay"
	"github.com/hyunsookim/commerce/internal/application/saga"
	"github.com/hyunsookim/commerce/internal/bootstrap"
	infraKafka "github.com/hyunsookim/commerce/internal/infrastructure/kafka"
	"github.com/hyunsookim/commerce/internal/repository/postgres"
)

// Consumer groups. The coordinator and each participant keep their own group
// so every service sees every event it cares about exactly once per group.
const (
	groupSaga    = "order-saga"
	groupStock   = "stock-service"
	groupPayment = "payment-service"
	groupCoupon  = "coupon-service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "commerce-worker", "commerce_worker")
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
	processedRepo := postgres.NewProcessedEventRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Outbox relay ---
	publisher := infraKafka.NewPublisher(&app.Config.Kafka)
	defer publisher.Close()
	outboxRelay := relay.New(outboxRepo, publisher, &app.Config.Relay, app.Logger, app.Metrics)

	// --- Saga coordinator and participants ---
	sagaGroup := app.Config.Saga.ConsumerGroup
	if sagaGroup == "" {
		sagaGroup = groupSaga
	}
	coordinator := saga.NewCoordinator(sagaGroup, orderRepo, outboxRepo, processedRepo, txManager, app.Logger, app.Metrics)
	stockParticipant := saga.NewStockParticipant(groupStock, productRepo, outboxRepo, processedRepo, txManager, app.Logger, app.Metrics)
	paymentParticipant := saga.NewPaymentParticipant(groupPayment, accountRepo, outboxRepo, processedRepo, txManager, app.Logger, app.Metrics)
	couponParticipant := saga.NewCouponParticipant(groupCoupon, couponRepo, outboxRepo, processedRepo, txManager, app.Logger, app.Metrics)

	reconciler := saga.NewReconciler(
		orderRepo, outboxRepo, txManager,
		app.Config.Saga.PendingTimeout,
		app.Config.Saga.SweepInterval,
		app.Config.Saga.SweepBatchSize,
		app.Logger, app.Metrics,
	)

	// --- Coupon queue drain ---
	drainScheduler := couponqueue.NewDrainScheduler(
		couponRepo, queueRepo, outboxRepo, txManager,
		app.Redis, &app.Config.Queue, app.Logger, app.Metrics,
	)

	// One consumer per (topic, group) pair.
	type subscription struct {
		topic   string
		group   string
		handler infraKafka.Handler
	}
	subscriptions := []subscription{
		// Coordinator collects every step outcome.
		{"stock.reserved", sagaGroup, coordinator.HandleEnvelope},
		{"stock.reservation.failed", sagaGroup, coordinator.HandleEnvelope},
		{"payment.completed", sagaGroup, coordinator.HandleEnvelope},
		{"payment.failed", sagaGroup, coordinator.HandleEnvelope},
		{"coupon.used", sagaGroup, coordinator.HandleEnvelope},
		{"coupon.usage.failed", sagaGroup, coordinator.HandleEnvelope},
		// Participants act on OrderCreated, finalize on OrderConfirmed and
		// compensate on OrderFailed.
		{"order.created", groupStock, stockParticipant.HandleEnvelope},
		{"order.confirmed", groupStock, stockParticipant.HandleEnvelope},
		{"order.failed", groupStock, stockParticipant.HandleEnvelope},
		{"order.created", groupPayment, paymentParticipant.HandleEnvelope},
		{"order.confirmed", groupPayment, paymentParticipant.HandleEnvelope},
		{"order.failed", groupPayment, paymentParticipant.HandleEnvelope},
		{"order.created", groupCoupon, couponParticipant.HandleEnvelope},
		{"order.confirmed", groupCoupon, couponParticipant.HandleEnvelope},
		{"order.failed", groupCoupon, couponParticipant.HandleEnvelope},
	}

	app.Logger.Info().
		Int("subscriptions", len(subscriptions)).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return outboxRelay.Run(gCtx) })
	g.Go(func() error { return reconciler.Run(gCtx) })
	g.Go(func() error { return drainScheduler.Run(gCtx) })

	for _, sub := range subscriptions {
		consumer := infraKafka.NewConsumer(&app.Config.Kafka, sub.topic, sub.group, sub.handler, app.Logger)
		g.Go(func() error { return consumer.Run(gCtx) })
	}

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
