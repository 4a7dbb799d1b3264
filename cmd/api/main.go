// cmd/api/main.go
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
	"github.com/joho/godotenv"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/database"
	"schoolcomms/internal/handlers"
	"schoolcomms/internal/middleware"
	"schoolcomms/internal/repositories"
	"schoolcomms/internal/services"
	"schoolcomms/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.Logging.Format == "console" {
		log = logger.NewConsole(cfg.Logging.Level)
	} else {
		log = logger.New(cfg.Logging.Level)
	}
	log.Info("Starting school messaging server...")

	// Initialize database connection
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db.DB); err != nil {
		log.Fatal("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	connRepo := repositories.NewConnectionRepository(db.DB)
	deliveryRepo := repositories.NewDeliveryRepository(db.DB)
	emailRepo := repositories.NewEmailSettingRepository(db.DB)
	templateRepo := repositories.NewTemplateRepository(db.DB)
	recipientRepo := repositories.NewRecipientRepository(db.DB)

	// Initialize transport and services
	transport := channels.NewWhatsAppTransport(cfg, log)
	registry := services.NewRegistry(cfg.WhatsApp.HandshakeTimeout)

	connectionService := services.NewConnectionService(cfg, registry, transport, connRepo, deliveryRepo, log)
	emailService := services.NewEmailService(cfg, emailRepo, log)
	dispatchService := services.NewDispatchService(
		cfg,
		deliveryRepo,
		templateRepo,
		recipientRepo,
		connectionService,
		emailService,
		log,
	)

	// Re-authenticate tenants that were connected before the restart
	if err := connectionService.RestoreSessions(context.Background()); err != nil {
		log.Error("Failed to restore WhatsApp sessions: %v", err)
	}

	// Initialize handlers
	connectionHandler := handlers.NewConnectionHandler(connectionService, log)
	dispatchHandler := handlers.NewDispatchHandler(dispatchService, log)
	emailHandler := handlers.NewEmailHandler(emailService, log)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryRepo, log)
	templateHandler := handlers.NewTemplateHandler(templateRepo, log)

	// Setup Gin router
	router := setupRouter(
		cfg,
		db,
		connectionHandler,
		dispatchHandler,
		emailHandler,
		deliveryHandler,
		templateHandler,
		log,
	)

	// Start HTTP server
	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Release live WhatsApp links before closing the process
	registry.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server shutdown complete")
}

func setupRouter(
	cfg *config.Config,
	db *database.Connection,
	connectionHandler *handlers.ConnectionHandler,
	dispatchHandler *handlers.DispatchHandler,
	emailHandler *handlers.EmailHandler,
	deliveryHandler *handlers.DeliveryHandler,
	templateHandler *handlers.TemplateHandler,
	log *logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.Use(middleware.AuthMiddleware(cfg))
		v1.Use(middleware.RateLimiter(cfg.RateLimit.RequestsPerMinute))

		// WhatsApp session lifecycle
		whatsapp := v1.Group("/whatsapp")
		{
			whatsapp.POST("/connect", connectionHandler.Connect)
			whatsapp.GET("/status", connectionHandler.Status)
			whatsapp.POST("/disconnect", connectionHandler.Disconnect)
		}

		// Bulk dispatch
		v1.POST("/messages/bulk", dispatchHandler.SendBulk)

		// Delivery log
		deliveries := v1.Group("/deliveries")
		{
			deliveries.GET("", deliveryHandler.List)
			deliveries.GET("/:id", deliveryHandler.Get)
		}

		// Message templates
		templates := v1.Group("/templates")
		{
			templates.GET("", templateHandler.List)
			templates.GET("/:id", templateHandler.Get)
		}

		// Per-tenant email configuration
		email := v1.Group("/email")
		{
			email.PUT("/config", emailHandler.SaveConfig)
			email.GET("/config", emailHandler.GetConfig)
			email.POST("/config/test", emailHandler.TestConfig)
		}
	}

	return router
}
