package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/padhub/backend/config"
	"github.com/padhub/backend/internal/auth"
	"github.com/padhub/backend/internal/cache"
	"github.com/padhub/backend/internal/chat"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/handlers"
	"github.com/padhub/backend/internal/inventory"
	"github.com/padhub/backend/internal/logger"
	"github.com/padhub/backend/internal/middleware"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/repository"
	"github.com/padhub/backend/internal/resilience"
	"github.com/padhub/backend/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db.DB, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("migrations completed")

	// Connect to Redis. Without it the change feed stays in-process, which
	// only works for a single instance.
	var feed gateway.Feed
	redis, err := cache.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("running without Redis, live updates limited to this instance", zap.Error(err))
		redis = nil
		feed = gateway.NewMemoryFeed(logger)
	} else {
		defer redis.Close()
		redisFeed := gateway.NewRedisFeed(redis, logger)
		go redisFeed.Run(ctx)
		feed = redisFeed
	}

	retry := resilience.DefaultOptions()
	retry.MaxRetries = cfg.Retry.MaxRetries
	retry.BaseDelay = cfg.Retry.BaseDelay
	retry.MaxDelay = cfg.Retry.MaxDelay
	retry.Multiplier = cfg.Retry.Multiplier
	retry.Logger = logger

	bus := notify.NewBus()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	// Initialize repositories
	profileRepo := repository.NewProfileRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	propertyRepo := repository.NewPropertyRepository(db)
	roomRepo := repository.NewRoomRepository(db)

	// Initialize services
	chatService := chat.NewService(convRepo, msgRepo, feed, retry, bus, logger.Named("chat"))
	if redis != nil {
		chatService.SetTypingStore(redis)
	}
	inventoryService := inventory.NewService(propertyRepo, roomRepo, feed, cfg.Cache.StatsTTL, retry, bus, logger.Named("inventory"))

	// WebSocket hub
	var presence websocket.PresenceStore
	wsOpts := websocket.Options{
		MessagesPerSec: cfg.API.RateLimitMessagesPerSec,
		OfflineQueue:   cfg.Chat.OfflineQueue,
		Retry:          retry,
	}
	if redis != nil {
		presence = redis
		wsOpts.Limiter = redis
	}
	hub := websocket.NewHub(presence, logger.Named("ws"))
	detach := hub.AttachNotifications(bus)
	defer detach()
	go hub.Run(ctx)
	wsHandler := websocket.NewHandler(hub, jwtService, chatService, wsOpts, cfg.CORS.AllowedOrigins, logger.Named("ws"))

	// Initialize handlers
	profileHandler := handlers.NewProfileHandler(profileRepo, logger)
	chatHandler := handlers.NewChatHandler(chatService, logger)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService, logger)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitMessagesPerSec)
	rateLimiter.Cleanup(ctx)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		api.GET("/me", profileHandler.GetMe)
		api.GET("/online-users", wsHandler.GetOnlineUsers)

		// Chat routes
		api.GET("/conversations", chatHandler.GetConversations)
		api.POST("/conversations", chatHandler.CreateChat)
		api.GET("/chats/:id/messages", chatHandler.GetMessages)
		api.POST("/chats/:id/messages", middleware.RateLimitMiddleware(rateLimiter), chatHandler.SendMessage)
		api.POST("/chats/:id/read", chatHandler.MarkRead)

		// Inventory routes
		api.POST("/properties/:id/rooms", inventoryHandler.AddRoom)
		api.GET("/properties/:id/stats", inventoryHandler.GetPropertyStats)
		api.GET("/properties/:id/rooms/stats", inventoryHandler.GetRoomStats)
		api.DELETE("/rooms/:id", inventoryHandler.DeleteRoom)
		api.POST("/rooms/:id/beds", inventoryHandler.AddBed)
		api.PATCH("/beds/:id", inventoryHandler.UpdateBed)
		api.DELETE("/beds/:id", inventoryHandler.DeleteBed)
		api.GET("/portfolio", inventoryHandler.GetPortfolio)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting padhub server", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
