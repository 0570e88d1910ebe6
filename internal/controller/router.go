package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hyunsookim/commerce/internal/application/checkout"
	"github.com/hyunsookim/commerce/internal/application/couponqueue"
	"github.com/hyunsookim/commerce/internal/domain/account"
	"github.com/hyunsookim/commerce/internal/infrastructure/config"
	"github.com/hyunsookim/commerce/internal/infrastructure/observability"
	customMW "github.com/hyunsookim/commerce/internal/middleware"
	"github.com/hyunsookim/commerce/internal/repository/postgres"
)

const queueJoinRequestsPerMinute = 120

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	PlaceOrder      *checkout.PlaceOrderUseCase
	GetOrder        *checkout.GetOrderUseCase
	JoinQueue       *couponqueue.JoinQueueUseCase
	QueueStatus     *couponqueue.QueueStatusUseCase
	AccountRepo     account.Repository
	IdempotencyRepo *postgres.IdempotencyRepository
	IdempotencyTTL  time.Duration
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	checkoutH := NewCheckoutController(deps.PlaceOrder, deps.GetOrder)
	queueH := NewQueueController(deps.JoinQueue, deps.QueueStatus)
	accountH := NewAccountController(deps.AccountRepo)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo, deps.IdempotencyTTL)

		// Orders
		r.With(idempotencyMW).Post("/orders", checkoutH.PlaceOrder)
		r.Get("/orders/{id}", checkoutH.GetOrder)
		r.Get("/users/{userId}/orders", checkoutH.ListOrders)

		// Balance
		r.Get("/users/{userId}/balance", accountH.GetBalance)

		// Coupon admission queue
		r.With(customMW.RateLimit(queueJoinRequestsPerMinute)).
			Post("/coupons/{couponId}/queue", queueH.Join)
		r.Get("/coupons/{couponId}/queue/{userId}", queueH.Status)
	})

	return r
}
