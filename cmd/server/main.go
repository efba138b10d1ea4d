package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/safarline/booking-backend/internal/cache"
	"github.com/safarline/booking-backend/internal/config"
	"github.com/safarline/booking-backend/internal/database"
	"github.com/safarline/booking-backend/internal/handlers"
	"github.com/safarline/booking-backend/internal/services"
	"github.com/safarline/booking-backend/pkg/ors"
	"github.com/safarline/booking-backend/pkg/payment"
	"github.com/safarline/booking-backend/pkg/sms"
	"github.com/safarline/booking-backend/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SafarLine Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	ticketRepo := database.NewTicketRepository(db)
	agencyRepo := database.NewAgencyRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// The guest agency backs bookings made without a seller account
	if _, err := agencyRepo.EnsureGuestAgency(cfg.ORS.DefaultSellerToken); err != nil {
		logger.Fatalf("Failed to ensure guest agency: %v", err)
	}

	// Search cache
	searchCache := cache.NewSearchCache(cfg.Redis)
	if err := searchCache.Ping(context.Background()); err != nil {
		logger.WithError(err).Warn("Redis unreachable, search will hit the provider on every request")
	}

	// Payment gateway
	var gateway payment.Gateway
	if cfg.Zarinpal.MockMode {
		logger.Warn("Payment gateway in MOCK mode, no real money will move")
		gateway = payment.NewMock(cfg.Server.BaseURL, logger)
	} else {
		gateway = payment.NewZarinpal(payment.ZarinpalConfig{
			MerchantID:  cfg.Zarinpal.MerchantID,
			CallbackURL: cfg.Zarinpal.CallbackURL,
			Sandbox:     cfg.Zarinpal.Sandbox,
			Timeout:     cfg.Zarinpal.Timeout,
		}, logger)
	}

	// Reservation provider client
	orsClient := ors.NewClient(ors.Config{
		BaseURL: cfg.ORS.BaseURL,
		Timeout: cfg.ORS.Timeout,
	}, logger)

	// SMS gateway
	var smsGateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		logger.Info("SMS gateway in production mode")
		smsGateway = sms.NewHTTPGateway(sms.HTTPConfig{
			APIURL: cfg.SMS.APIURL,
			APIKey: cfg.SMS.APIKey,
			Sender: cfg.SMS.Sender,
		}, logger)
	} else {
		logger.Info("SMS gateway in development mode (messages are logged, not sent)")
		smsGateway = sms.NewDevGateway(logger)
	}
	notifier := sms.NewNotifier(smsGateway, cfg.SMS.OperatorPhone, logger)

	// Services
	passengerValidator := validator.NewPassengerValidator()
	orchestrator := services.NewBookingOrchestratorService(
		ticketRepo,
		agencyRepo,
		gateway,
		orsClient,
		auditRepo,
		notifier,
		passengerValidator,
		cfg.Booking,
		cfg.ORS.DefaultSellerToken,
		logger,
	)
	searchService := services.NewSearchService(orsClient, searchCache, cfg.Booking, cfg.ORS.DefaultSellerToken, logger)

	cleanupService := services.NewCleanupService(ticketRepo, cfg.Booking, logger)
	if err := cleanupService.Start(); err != nil {
		logger.Fatalf("Failed to start cleanup service: %v", err)
	}

	// Handlers
	searchHandler := handlers.NewSearchHandler(searchService, logger)
	bookingHandler := handlers.NewBookingHandler(orchestrator, logger)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, logger)
	opsHandler := handlers.NewOpsHandler(ticketRepo, auditRepo, orsClient, cfg.ORS.DefaultSellerToken, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		trips := v1.Group("/trips")
		{
			trips.GET("/search", searchHandler.SearchTrips)
			trips.GET("/:trip_code", searchHandler.GetTrip)
		}

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:ticket_code", bookingHandler.GetConfirmation)
		}

		v1.GET("/payment/callback", paymentHandler.Callback)

		ops := v1.Group("/ops")
		{
			ops.GET("/reservation-failures", opsHandler.ListReservationFailures)
			ops.GET("/reconciliations", opsHandler.ListReconciliationMismatches)
			ops.GET("/tickets/:id/audits", opsHandler.TicketAuditTrail)
			ops.GET("/balance", opsHandler.AccountBalance)
		}
	}

	// The mock gateway page only exists in mock mode
	if cfg.Zarinpal.MockMode {
		mockHandler := handlers.NewMockGatewayHandler(cfg.Server.BaseURL + "/api/v1/payment/callback")
		router.GET("/payment/mock-gateway", mockHandler.Show)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cleanupService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.WithFields(logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}).Info("Request completed")
	}
}

// healthCheckHandler reports process and database health
func healthCheckHandler(db interface{ Ping() error }) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
