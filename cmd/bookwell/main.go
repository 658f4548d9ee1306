package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/clock"
	"github.com/bookwellhq/bookwell/internal/config"
	"github.com/bookwellhq/bookwell/internal/consumer"
	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/handlers"
	"github.com/bookwellhq/bookwell/internal/httpx"
	"github.com/bookwellhq/bookwell/internal/inbox"
	"github.com/bookwellhq/bookwell/internal/kafkax"
	"github.com/bookwellhq/bookwell/internal/otelx"
	"github.com/bookwellhq/bookwell/internal/outbox"
	"github.com/bookwellhq/bookwell/internal/payments"
	"github.com/bookwellhq/bookwell/internal/rbac"
	"github.com/bookwellhq/bookwell/internal/runtime"
	"github.com/bookwellhq/bookwell/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "bookwell")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	minNoticeMins, err := config.PositiveInt("MIN_ADVANCE_BOOKING_MINUTES", 120)
	if err != nil {
		panic(err)
	}
	maxDurationMins, err := config.PositiveInt("MAX_DURATION_MINUTES", 480)
	if err != nil {
		panic(err)
	}
	maxAdvanceDays, err := config.NonNegativeInt("MAX_ADVANCE_BOOKING_DAYS", 0)
	if err != nil {
		panic(err)
	}
	validator, err := booking.NewValidator(booking.Config{
		MinAdvanceBooking: time.Duration(minNoticeMins) * time.Minute,
		MaxDuration:       time.Duration(maxDurationMins) * time.Minute,
		MaxAdvanceBooking: time.Duration(maxAdvanceDays) * 24 * time.Hour,
	})
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository(pool)
	users := storage.NewUserStore(pool, outboxRepo)
	businesses := storage.NewBusinessStore(pool)
	services := storage.NewServiceStore(pool)
	calendars := storage.NewCalendarStore(pool)
	staff := storage.NewStaffStore(pool)
	appts := storage.NewAppointmentStore(pool, outboxRepo)

	evaluator := rbac.NewEvaluator(users)
	clk := clock.System{}
	orchestrator := booking.NewOrchestrator(businesses, services, calendars, appts, validator, clk)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	startEntitlementsConsumer(ctx, pool, businesses, logger)

	checkout := payments.NewCheckout(payments.CheckoutConfig{
		SecretKey:  config.String("STRIPE_SECRET_KEY", ""),
		SuccessURL: config.String("CHECKOUT_SUCCESS_URL", ""),
		CancelURL:  config.String("CHECKOUT_CANCEL_URL", ""),
	})

	authHandler := handlers.NewAuthHandler(users, businesses, logger, jwtSecret,
		config.DurationSeconds("ACCESS_TOKEN_TTL_SECONDS", 15*time.Minute))
	usersHandler := handlers.NewUsersHandler(users, evaluator, logger)
	bookingHandler := handlers.NewBookingHandler(orchestrator, appts, businesses, services, calendars, evaluator, users, logger, clk)
	businessHandler := handlers.NewBusinessHandler(services, calendars, staff, users, evaluator, logger)
	paymentsHandler := handlers.NewPaymentsHandler(checkout, appts, logger,
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		config.DurationSeconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300*time.Second))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	requireAuth := handlers.RequireAuth(jwtSecret)
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.Handle("/api/v1/auth/me", authed(authHandler.Me))

	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/public/checkout", paymentsHandler.CreateCheckout)
	mux.HandleFunc("/api/v1/public/webhooks/stripe", paymentsHandler.StripeWebhook)

	mux.Handle("/api/v1/appointments", authed(bookingHandler.List))
	mux.Handle("/api/v1/appointments/confirm", authed(bookingHandler.Confirm))
	mux.Handle("/api/v1/appointments/complete", authed(bookingHandler.Complete))
	mux.Handle("/api/v1/appointments/cancel", authed(bookingHandler.Cancel))

	mux.Handle("/api/v1/users", authed(usersHandler.List))
	mux.Handle("/api/v1/users/update", authed(usersHandler.Update))
	mux.Handle("/api/v1/users/delete", authed(usersHandler.Delete))

	mux.Handle("/api/v1/services", authed(businessHandler.CreateService))
	mux.HandleFunc("/api/v1/public/services", businessHandler.ListServices)
	mux.Handle("/api/v1/services/active", authed(businessHandler.SetServiceActive))
	mux.Handle("/api/v1/calendars", authed(businessHandler.CreateCalendar))
	mux.HandleFunc("/api/v1/public/calendars", businessHandler.ListCalendars)
	mux.Handle("/api/v1/calendars/active", authed(businessHandler.SetCalendarActive))
	mux.Handle("/api/v1/staff", authed(businessHandler.CreateStaff))
	mux.HandleFunc("/api/v1/public/staff", businessHandler.ListStaff)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(strings.Split(config.String("ALLOWED_ORIGINS", ""), ",")),
		httpx.WithBodyLimit(1<<20),
		rateLimitMiddleware(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	startHealthGrpcServer(ctx, logger)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// rateLimitMiddleware prefers the shared Redis fixed-window limiter so the
// limit holds across replicas, falling back to a per-process one.
func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit, err := config.PositiveInt("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "bookwell:rl").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// startEntitlementsConsumer keeps the local entitlement cache in sync with
// billing events.
func startEntitlementsConsumer(ctx context.Context, pool *db.Pool, businesses *storage.BusinessStore, logger *slog.Logger) {
	brokers := config.String("KAFKA_BROKERS", "")
	if brokers == "" {
		logger.Warn("entitlements consumer disabled (no kafka brokers configured)")
		return
	}

	inboxRepo := inbox.NewRepository(pool)
	cfg := consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "bookwell"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "billing.subscription.activated.v1"),
	}
	eventConsumer := consumer.New(logger, inboxRepo, cfg, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			BusinessID             string `json:"business_id"`
			Tier                   string `json:"tier"`
			MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.BusinessID == "" || payload.Tier == "" || payload.MaxMonthlyAppointments <= 0 {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		return businesses.UpsertEntitlements(ctx, storage.Entitlements{
			BusinessID:             payload.BusinessID,
			Tier:                   payload.Tier,
			MaxMonthlyAppointments: payload.MaxMonthlyAppointments,
		})
	})
	go eventConsumer.Run(ctx)
}
