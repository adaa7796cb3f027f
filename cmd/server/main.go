package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/comfybridge/api/docs"
	"github.com/comfybridge/api/internal/comfy"
	"github.com/comfybridge/api/internal/config"
	"github.com/comfybridge/api/internal/handler"
	"github.com/comfybridge/api/internal/middleware"
	"github.com/comfybridge/api/internal/service"
	"github.com/comfybridge/api/internal/storage"
	ws "github.com/comfybridge/api/internal/websocket"
)

// @title          ComfyUI Bridge API
// @version        1.0
// @description    HTTP bridge to control a remote ComfyUI server.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	// Local development loads its environment from .env; missing file is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	config.ConfigureGlobalLogger(cfg.Server.LogLevel)

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	// Initialize Redis client (optional, only backs the rate limiter)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Warnf("Redis not available: %v", err)
		}
	} else {
		logrus.Info("Redis not configured, rate limiting disabled")
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize ComfyUI client and artifact store
	comfyClient := comfy.NewClient(&cfg.Comfy)

	store, err := storage.NewArtifactStore(cfg.Comfy.OutputDir)
	if err != nil {
		logrus.Fatalf("Failed to initialize artifact store: %v", err)
	}

	// Initialize services
	registry := service.NewJobRegistry(time.Hour, 1000)
	generateService := service.NewGenerateService(comfyClient, store, registry, hub, cfg.Comfy.WorkflowPath)

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	healthHandler := handler.NewHealthHandler(generateService)
	jobsHandler := handler.NewJobsHandler(registry)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		logrus.Info("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Service banner and health
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	// Swagger UI
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	// Generation routes
	app.Post("/generate-image", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerMin), generateHandler.Generate)
	app.Get("/download/:promptId", generateHandler.Download)

	// Job visibility routes
	app.Get("/jobs", jobsHandler.List)
	app.Get("/jobs/:promptId", jobsHandler.Get)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:promptId", websocket.New(func(c *websocket.Conn) {
		promptID := c.Params("promptId")
		hub.HandleConnection(c, promptID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logrus.Info("Shutting down ComfyUI Bridge")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	logrus.Infof("Starting ComfyUI Bridge on port %s", cfg.Server.Port)
	logrus.Infof("ComfyUI URL: %s", cfg.Comfy.URL)
	logrus.Infof("Output directory: %s", cfg.Comfy.OutputDir)

	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
