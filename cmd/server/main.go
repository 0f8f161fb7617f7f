package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/config"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/exchange"
	"github.com/ksred/escrow-api/internal/intent"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/oracle"
	"github.com/ksred/escrow-api/internal/settlement"
	"github.com/ksred/escrow-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// OracleDecimals is the price precision of the in-process oracle feed.
// It matches PriceScale so published prices and intent targets line up.
const OracleDecimals = 7

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the escrow API server with graceful shutdown
// support. It wires the balance ledger, intent registry and settlement
// engine onto one database, with the oracle feed and mock venue alongside.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Configuration record: admin and collaborator endpoints
	configService := config.NewService(db)
	adminAddress := os.Getenv("ADMIN_ADDRESS")
	if adminAddress == "" {
		adminAddress = "admin"
	}
	if err := configService.Bootstrap(
		adminAddress,
		os.Getenv("ROUTER_ADDRESS"),
		os.Getenv("ORACLE_ADDRESS"),
	); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap configuration")
	}
	configHandlers := config.NewGinHandlers(configService)

	// Initialize services and handlers
	authService := auth.NewService(auth.Secret())
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials outside production
	if os.Getenv("ENV") != "production" {
		authService.RegisterAccount("alice", "alice-api-key", "alice-api-secret")
		authService.RegisterAccount("bob", "bob-api-key", "bob-api-secret")
		authService.RegisterAccount(adminAddress, "admin-api-key", "admin-api-secret")
	}

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	intentService := intent.NewService(db, configService)
	intentHandlers := intent.NewGinHandlers(intentService)

	priceFeed := oracle.NewFeed(OracleDecimals)
	oracleHandlers := oracle.NewGinHandlers(priceFeed, priceFeed, configService.RequireAdmin)

	venue := exchange.NewVenue(priceFeed, ledgerService.GetDB())

	settlementService := settlement.NewService(db, priceFeed, venue)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Create and start the retention processor
	retentionProcessor := settlement.NewProcessor(settlementService.GetDB())
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go retentionProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, ledgerHandlers, intentHandlers, settlementHandlers, oracleHandlers, configHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// Routes are grouped by authorization requirement:
// - Auth routes: public endpoints for authentication
// - Escrow routes: protected by JWT, authorize as the token's account
// - Admin routes: JWT plus a configured-admin check inside the service
// - Read routes: public, never mutate state
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	intentHandlers *intent.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
	configHandlers *config.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Balance routes
		balances := v1.Group("/balances")
		{
			balances.GET("/:user/:asset", ledgerHandlers.GetBalanceHandler())

			protected := balances.Group("")
			protected.Use(middleware.JWTAuth())
			{
				protected.POST("/deposit", ledgerHandlers.DepositHandler())
				protected.POST("/withdraw", ledgerHandlers.WithdrawHandler())
			}
		}

		// Intent routes
		intents := v1.Group("/intents")
		{
			intents.GET("/:intent_id", intentHandlers.GetIntentHandler())
			intents.GET("/:intent_id/executable", settlementHandlers.CheckExecutableHandler())

			protected := intents.Group("")
			protected.Use(middleware.JWTAuth())
			{
				protected.POST("", intentHandlers.CreateIntentHandler())
				protected.POST("/:intent_id/cancel", intentHandlers.CancelIntentHandler())
				protected.POST("/:intent_id/execute", settlementHandlers.ExecuteIntentHandler())
			}
		}

		// Public reads
		v1.GET("/users/:user/intents", intentHandlers.GetUserIntentsHandler())
		prices := v1.Group("/prices")
		{
			prices.GET("", oracleHandlers.GetAssetsHandler())
			prices.GET("/quote", settlementHandlers.QuoteHandler())
			prices.GET("/cross", oracleHandlers.GetCrossRateHandler())
			prices.GET("/:asset", oracleHandlers.GetPriceHandler())
			prices.GET("/:asset/twap", oracleHandlers.GetTWAPHandler())
		}

		// Admin routes (configured-admin check happens in the services)
		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth())
		{
			admin.POST("/intents/:intent_id/cancel", intentHandlers.AdminCancelIntentHandler())
			admin.PUT("/config/router", configHandlers.SetRouterHandler())
			admin.PUT("/config/oracle", configHandlers.SetOracleHandler())
			admin.GET("/config", configHandlers.GetConfigHandler())
			admin.POST("/prices", oracleHandlers.PublishPriceHandler())
		}
	}
}
