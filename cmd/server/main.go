package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plantstore-be/internal/auth"
	"plantstore-be/internal/config"
	"plantstore-be/internal/contact"
	"plantstore-be/internal/db"
	"plantstore-be/internal/events"
	"plantstore-be/internal/logger"
	"plantstore-be/internal/mail"
	"plantstore-be/internal/metrics"
	"plantstore-be/internal/middleware"
	"plantstore-be/internal/notify"
	"plantstore-be/internal/order"
	"plantstore-be/internal/payment"
	"plantstore-be/internal/payment/webhook"
	"plantstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	healthTimeout     = 2 * time.Second
)

var (
	initDBFunc = db.NewDatabase

	startServerFunc = func(ctx context.Context, srv *http.Server) error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.L().Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// routes carries every handler the router mounts.
type routes struct {
	payments *payment.Handler
	webhook  *webhook.Handler
	orders   *order.Handler
	contact  *contact.Handler
	login    *auth.Handler

	issuer      *auth.Issuer
	session     auth.SessionCookie
	limiter     *middleware.RateLimiter
	metrics     http.Handler
	health      pinger
	corsOrigins []string
}

func setupRouter(rt *routes) http.Handler {
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(rt.corsOrigins))
	r.Use(rt.limiter.Handler)

	r.Get("/health", healthHandler(rt.health))
	r.Handle("/metrics", rt.metrics)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/initiate", rt.payments.Initiate)
		r.Post("/callback", rt.webhook.Callback)
		r.Get("/{checkoutRequestId}", rt.payments.GetStatus)
	})

	r.Post("/orders", rt.orders.PlaceOrder)
	r.Post("/contact", rt.contact.Submit)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", rt.login.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(rt.issuer, rt.session))
			r.Get("/payments", rt.payments.ListPayments)
			r.Post("/payments/{checkoutRequestId}/retry", rt.payments.RetryPayment)
			r.Get("/orders/{id}", rt.orders.GetOrder)
		})
	})

	return r
}

func healthHandler(p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := p.PingContext(ctx); err != nil {
				logger.FromCtx(r.Context()).Error("health check failed", zap.Error(err))
				utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

// app owns the long-lived clients that need closing on shutdown.
type app struct {
	router    http.Handler
	publisher events.Publisher
	redis     *redis.Client
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		logger.L().Warn("failed to close event publisher", zap.Error(err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.L().Warn("failed to close redis client", zap.Error(err))
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, database *sql.DB) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{
		publisher: events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic),
	}

	var tokens payment.TokenCache = payment.NewMemoryTokenCache()
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		tokens = payment.NewRedisTokenCache(a.redis)
	}

	gateway := payment.NewMpesaGateway(payment.MpesaConfig{
		BaseURL:        cfg.MpesaBaseURL(),
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackEndpoint(),
		Timeout:        cfg.MpesaTimeout,
	}, tokens)

	sender := mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	notifier := notify.NewEmailNotifier(sender, cfg.StoreName, cfg.AdminEmail)

	orderSvc := order.NewService(order.NewRepository(database), orderCreatedHook(a.publisher, notifier))

	paymentRepo := payment.NewRepository(database)
	paymentSvc := payment.NewService(paymentRepo, gateway, cfg.MpesaAccountRef)
	reconciler := payment.NewReconciler(paymentRepo, orderSvc, notifier, a.publisher)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if cfg.JWTSecret == "" {
		logger.L().Warn("JWT_SECRET is empty, admin login is disabled")
	}

	session := auth.SessionCookie{Name: cfg.AdminCookieName, Secure: cfg.IsProduction()}

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	go limiter.Run(ctx)

	a.router = setupRouter(&routes{
		payments:    payment.NewHandler(paymentSvc, reconciler),
		webhook:     webhook.NewWebhookHandler(reconciler, cfg.MpesaCallbackToken),
		orders:      order.NewHandler(orderSvc),
		contact:     contact.NewHandler(contact.NewService(sender, cfg.StoreName, cfg.AdminEmail)),
		login:       auth.NewHandler(auth.NewAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash, issuer), session),
		issuer:      issuer,
		session:     session,
		limiter:     limiter,
		metrics:     metrics.Handler(registry),
		health:      database,
		corsOrigins: cfg.CORSAllowedOrigins,
	})
	return a, nil
}

// orderCreatedHook announces a direct order and emails it without holding up the response.
func orderCreatedHook(publisher events.Publisher, notifier notify.Notifier) order.CreatedHook {
	return func(ctx context.Context, o *order.Order) {
		bg := logger.Detach(ctx)
		go events.PublishLogged(bg, publisher, events.Event{
			Type: events.OrderCreated,
			Key:  o.OrderNumber,
			Data: map[string]interface{}{"orderId": o.ID, "orderNumber": o.OrderNumber, "total": o.TotalAmount},
		})
		notify.NotifyAsync(bg, notifier, o)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.L().Info("server starting",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
		zap.String("mpesa_env", cfg.MpesaEnv),
	)
	return startServerFunc(ctx, srv)
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
