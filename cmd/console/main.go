// Package main is the entry point for the console gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/config"
	"github.com/servicechat/console/internal/handler"
	"github.com/servicechat/console/internal/middleware"
	"github.com/servicechat/console/internal/schedule"
	"github.com/servicechat/console/internal/session"
	"github.com/servicechat/console/internal/summary"
	"github.com/servicechat/console/pkg/logger"
	"github.com/servicechat/console/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting console gateway", zap.String("backend", cfg.BackendURL))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "servicechat-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Backend transport shared by all components
	transport := api.New(cfg.BackendURL, log, api.WithTimeout(cfg.BackendTimeout))

	// Persisted operator identity
	store := session.NewStore(cfg.SessionFile)
	identity, err := store.Load()
	if err != nil {
		log.Warn("failed to load persisted session, starting fresh", zap.Error(err))
	} else if identity != (session.Identity{}) {
		log.Info("resumed session",
			zap.String("customer_id", identity.CustomerID),
			zap.String("agent_id", identity.AgentID),
		)
	}

	// Workflow components
	bookingPolicy := schedule.Policy{
		RequirePhoneVerification: cfg.RequirePhoneVerification,
	}
	summaryClient := summary.New(transport, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(transport)
	sessionHandler := handler.NewSessionHandler(transport, store, log)
	chatHandler := handler.NewChatHandler(transport, log)
	bookingHandler := handler.NewBookingHandler(transport, bookingPolicy, log)
	summaryHandler := handler.NewSummaryHandler(summaryClient, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Console routes
	r.Route("/console", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Session
		r.Get("/session", sessionHandler.Get)
		r.Put("/session", sessionHandler.Put)
		r.Post("/session/token", sessionHandler.SetToken)

		// Conversations
		r.Route("/chat/{customerID}/{counterpartID}", func(r chi.Router) {
			r.Get("/messages", chatHandler.Messages)
			r.Post("/messages", chatHandler.Send)
		})
		r.Get("/agents/{agentID}/customers", chatHandler.Customers)

		// Booking
		r.Route("/schedule", func(r chi.Router) {
			r.Get("/slots", bookingHandler.Slots)
			r.Post("/otp/request", bookingHandler.RequestOTP)
			r.Post("/otp/verify", bookingHandler.VerifyOTP)
			r.Post("/book", bookingHandler.Book)
			r.Post("/reschedule", bookingHandler.Reschedule)
			r.Post("/cancel", bookingHandler.Cancel)
			r.Get("/bookings", bookingHandler.Bookings)
		})

		// Summaries and suggestions
		r.Get("/summary/{customerID}", summaryHandler.Get)
		r.Get("/summary/{customerID}/{agentID}", summaryHandler.Get)
		r.Post("/summary/generate", summaryHandler.Generate)
		r.Get("/suggestions/{customerID}/{agentID}", summaryHandler.Suggestions)
		r.Post("/suggestions/use", summaryHandler.UseSuggestion)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("gateway listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gateway")

	// Graceful shutdown with timeout; drain in-flight message saves first.
	chatHandler.Flush()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("gateway stopped")
}
