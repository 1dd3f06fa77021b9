package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/emotion"
	"heartline/internal/handlers"
	"heartline/internal/logging"
	"heartline/internal/middleware"
	"heartline/internal/personality"
	"heartline/internal/services"
	"heartline/internal/store"
	"heartline/pkg/auth"
)

// pingFunc adapts a context ping to handlers.Pinger
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Heartline Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Ledger: %s, Memory: %s)", cfg.Port, cfg.LedgerBackend, cfg.MemoryBackend)

	healthChecks := map[string]handlers.Pinger{}

	// MongoDB backs the ledger and/or conversation memory when selected
	var mongoDB *database.MongoDB
	if cfg.LedgerBackend == config.BackendMongo || cfg.MemoryBackend == config.BackendMongo {
		if cfg.MongoURI == "" {
			log.Fatal("❌ MONGODB_URI is required when a mongo backend is selected")
		}
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		defer mongoDB.Close(context.Background())

		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongoDB.Initialize(initCtx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		cancel()
		healthChecks["mongodb"] = mongoDB
	}

	// Quota ledger store
	var ledgerStore store.LedgerStore
	var redisService *services.RedisService
	switch cfg.LedgerBackend {
	case config.BackendRedis:
		if cfg.RedisURL == "" {
			log.Fatal("❌ REDIS_URL is required when LEDGER_BACKEND=redis")
		}
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisService.Close()
		ledgerStore = store.NewRedisLedger(redisService.Client())
		healthChecks["redis"] = redisService
	case config.BackendMongo:
		ledgerStore = store.NewMongoLedger(mongoDB)
	case config.BackendMemory:
		if cfg.IsProduction() {
			log.Println("⚠️  In-memory ledger in production: balances are lost on restart")
		}
		ledgerStore = store.NewMemoryLedger()
	default:
		log.Fatalf("❌ Unknown LEDGER_BACKEND %q (expected memory, redis or mongo)", cfg.LedgerBackend)
	}
	healthChecks["ledger"] = ledgerStore
	log.Printf("💎 [QUOTA] Ledger backend: %s", cfg.LedgerBackend)

	// Conversation memory store
	var memoryStore store.MemoryStore
	switch cfg.MemoryBackend {
	case config.BackendMongo:
		memoryStore = store.NewMongoTurns(mongoDB)
	case config.BackendMemory:
		memoryStore = store.NewMemoryTurns()
	default:
		log.Fatalf("❌ Unknown MEMORY_BACKEND %q (expected memory or mongo)", cfg.MemoryBackend)
	}

	// Persona settings repository
	var settingsRepo store.SettingsRepository
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Initialize(); err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		settingsRepo = store.NewSQLSettings(db)
		healthChecks["database"] = pingFunc(db.PingContext)
		log.Printf("✅ Persona settings stored in %s", db.Dialect())
	} else {
		log.Println("⚠️  DATABASE_URL not set - persona settings kept in memory")
		settingsRepo = store.NewMemorySettings()
	}

	// Persona catalogue with hot reload
	personaService := services.NewPersonaService(settingsRepo)
	if err := personaService.LoadCatalogueFile(cfg.PersonasFile); err != nil {
		log.Fatalf("❌ Failed to load persona catalogue: %v", err)
	}

	rootCtx, stopWatchers := context.WithCancel(context.Background())
	defer stopWatchers()
	go personaService.WatchCatalogue(rootCtx, cfg.PersonasFile)

	// Core services
	connManager := services.NewConnectionManager()
	metrics := services.InitMetrics(prometheus.DefaultRegisterer, connManager)

	// Balance pushes reach sessions on every instance when Redis is available
	var notifier services.BalanceNotifier = services.NewLocalNotifier(connManager)
	if redisService != nil {
		pubsub := services.NewPubSubService(redisService.Client(), services.NewLocalNotifier(connManager), uuid.New().String())
		if err := pubsub.Start(); err != nil {
			log.Printf("⚠️  [PUBSUB] Failed to start, balance pushes stay local: %v", err)
		} else {
			defer pubsub.Stop()
			notifier = pubsub
		}
	}

	ledger := services.NewQuotaLedger(ledgerStore, personaService, cfg.AccessiblePerGender, metrics)
	resolver := services.NewIdentityResolver(ledgerStore, ledger, cfg.WelcomeCredit, metrics)

	if cfg.GenerationAPIKey == "" {
		log.Println("⚠️  GENERATION_API_KEY not set - replies will fall back when the backend rejects calls")
	}
	generator := services.NewGenerationClient(services.GenerationConfig{
		BaseURL:     cfg.GenerationBaseURL,
		APIKey:      cfg.GenerationAPIKey,
		Model:       cfg.GenerationModel,
		Timeout:     cfg.GenerationTimeout,
		MaxTokens:   cfg.GenerationMaxTokens,
		Temperature: cfg.GenerationTemperature,
		RPS:         cfg.GenerationRPS,
	})

	conversations := services.NewConversationService(
		ledger,
		personaService,
		emotion.NewAnalyzer(),
		personality.NewBuilder(personality.Options{TraitMidpoint: cfg.TraitMidpoint}),
		memoryStore,
		generator,
		metrics,
		services.ConversationConfig{
			RecallLimit:       cfg.MemoryRecallLimit,
			GenerationTimeout: cfg.GenerationTimeout,
			MaxTokens:         cfg.GenerationMaxTokens,
			Temperature:       cfg.GenerationTemperature,
		},
	)

	// Optional session auth
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		var err error
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("🔐 Session token verification enabled")
	} else {
		log.Println("⚠️  JWT_SECRET not set - every caller is treated as anonymous")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Heartline v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    256 * 1024,
		ProxyHeader:  os.Getenv("PROXY_HEADER"), // e.g. X-Forwarded-For behind a load balancer
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("heartline")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig(cfg.ChatRateLimit)
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Chat=%d/min, Session=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.ChatMax,
		rateLimitConfig.SessionMax,
		rateLimitConfig.WebSocketMax,
	)

	allowedOrigins := cfg.CORSAllowedOrigins
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Device-Fingerprint,X-Platform",
		AllowCredentials: allowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	healthHandler := handlers.NewHealthHandler(connManager, healthChecks)
	chatHandler := handlers.NewChatHandler(conversations)
	sessionHandler := handlers.NewSessionHandler(ledger)
	quotaHandler := handlers.NewQuotaHandler(ledger, notifier)
	personaHandler := handlers.NewPersonaHandler(personaService)
	wsHandler := handlers.NewWebSocketHandler(connManager, conversations, metrics)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Purchase fulfillment: trusted callers only, no caller identity involved
	api.Post("/quota/credit", middleware.RequireServiceToken(cfg.ServiceToken), quotaHandler.Credit)

	identified := api.Group("",
		middleware.OptionalLocalAuthMiddleware(jwtAuth),
		middleware.ResolveIdentity(resolver),
	)

	identified.Post("/session", middleware.SessionRateLimiter(rateLimitConfig), sessionHandler.GetOrCreate)
	identified.Put("/session/preferences", sessionHandler.UpdatePreferences)

	identified.Get("/quota", quotaHandler.Balance)
	identified.Post("/quota/use", quotaHandler.Use)

	identified.Post("/chat", middleware.ChatRateLimiter(rateLimitConfig), chatHandler.SendMessage)
	identified.Delete("/chat/:personaId/history", chatHandler.ClearHistory)

	identified.Get("/personas", personaHandler.List)
	identified.Get("/personas/:personaId/settings", personaHandler.GetSettings)
	identified.Put("/personas/:personaId/settings", personaHandler.UpdateSettings)

	// WebSocket route: identity is resolved on the upgrade request
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	wsConfig := websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}

	app.Use("/ws/chat", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Use("/ws/chat", middleware.OptionalLocalAuthMiddleware(jwtAuth))
	app.Use("/ws/chat", middleware.ResolveIdentity(resolver))
	app.Get("/ws/chat", websocket.New(wsHandler.Handle, wsConfig))

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws/chat", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		stopWatchers()

		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
