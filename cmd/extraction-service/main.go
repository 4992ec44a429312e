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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/events"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/handler"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/learning"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/matcher"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/parser"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/provider"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/router"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/store"
	"github.com/invoiceflow/invoiceflow-backend/internal/extraction/validation"
	"github.com/invoiceflow/invoiceflow-backend/pkg/config"
	"github.com/invoiceflow/invoiceflow-backend/pkg/database"
	"github.com/invoiceflow/invoiceflow-backend/pkg/httputil"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
	"github.com/invoiceflow/invoiceflow-backend/pkg/messaging"
)

func main() {
	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("extraction-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("extraction-service", cfg.Server.Environment).Level(cfg.Server.LogLevel)
	log.Info().Msg("starting Extraction Service")

	// Connect to database
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewExtractionEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize stores
	pgStore := store.NewPostgres(db)

	// Initialize pipeline components
	docMatcher := matcher.New(pgStore, pgStore, log)
	docParser := parser.New(log)
	validator := validation.NewEngine(cfg.Extraction.LenientValidation)
	learner := learning.New(pgStore, docParser, log)

	primaryOCR := provider.NewHTTPOCRClient(cfg.Providers.OCRServiceURL, cfg.Providers.OCRTimeout)
	localOCR := provider.NewLocalOCRClient(cfg.Providers.TesseractBin, cfg.Providers.TesseractLang, log)
	aiClient := provider.NewHTTPAIClient(cfg.Providers.AIServiceURL, cfg.Providers.AITimeout, log)

	extractionRouter := router.New(router.Params{
		Config:     cfg.Extraction,
		Providers:  cfg.Providers,
		Matcher:    docMatcher,
		Parser:     docParser,
		Validator:  validator,
		Learner:    learner,
		PrimaryOCR: primaryOCR,
		LocalOCR:   localOCR,
		AI:         aiClient,
		Events:     publisher,
		Logger:     log,
	})

	// Initialize handler
	extractionHandler := handler.NewHandler(extractionRouter, pgStore, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "extraction-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Mount("/api/v1/extraction", extractionHandler.Routes())

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain in-flight async template learning before exiting
	extractionRouter.Wait()

	log.Info().Msg("server stopped")
}
