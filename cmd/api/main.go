package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"posttrr/internal/adapter/api/handler"
	apimiddleware "posttrr/internal/adapter/api/middleware"
	"posttrr/internal/adapter/api/router"
	"posttrr/internal/adapter/repository"
	domainrepo "posttrr/internal/domain/repository"
	"posttrr/internal/infrastructure/database"
	"posttrr/internal/infrastructure/firebase"
	"posttrr/internal/infrastructure/jwtauth"
	"posttrr/internal/infrastructure/pubsub"
	"posttrr/internal/infrastructure/ratelimit"
	"posttrr/internal/infrastructure/websocket"
	"posttrr/internal/usecase"
	"posttrr/migrations"
	"posttrr/pkg/config"
	"posttrr/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type repositories struct {
	chats   domainrepo.ChatRepository
	listing domainrepo.ListingRepository
	devices domainrepo.DeviceTokenRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetEnvironment(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]handler.Pinger)

	var firebaseApp *fbapp.App
	var firebaseOpts []option.ClientOption
	if cfg.NeedsFirebase() {
		firebaseOpts, err = firebase.ClientOptions(cfg.FirebaseServiceAccountJSON, cfg.FirebaseServiceAccountPath)
		if err != nil {
			log.Fatalf("Failed to resolve Firebase credentials: %v", err)
		}

		firebaseApp, err = firebase.NewApp(ctx, cfg.FirebaseProject, firebaseOpts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var repos repositories
	switch cfg.StorageDriver {
	case config.StorageFirestore:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, firebaseOpts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = repositories{
			chats:   repository.NewFirestoreChatRepository(firestoreClient),
			listing: repository.NewFirestoreListingRepository(firestoreClient),
			devices: repository.NewFirestoreDeviceTokenRepository(firestoreClient),
		}
		checks["firestore"] = repository.FirestorePinger{Client: firestoreClient}

	case config.StoragePostgres:
		if cfg.AutoMigrate {
			if err := migrations.Up(cfg.DatabaseURL); err != nil {
				log.Fatalf("Failed to apply migrations: %v", err)
			}
			logger.Info("Database migrations applied")
		}

		pool, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pool.Close()

		repos = repositories{
			chats:   repository.NewPostgresChatRepository(pool),
			listing: repository.NewPostgresListingRepository(pool),
			devices: repository.NewPostgresDeviceTokenRepository(pool),
		}
		checks["postgres"] = pool

	default:
		logger.Warn("Using in-memory storage, data is lost on restart")
		repos = repositories{
			chats:   repository.NewMemoryChatRepository(),
			listing: repository.NewMemoryListingRepository(),
			devices: repository.NewMemoryDeviceTokenRepository(),
		}
	}

	if cfg.SeedFile != "" {
		seed, err := repository.LoadListingSeed(cfg.SeedFile)
		if err != nil {
			log.Fatalf("Failed to load seed file: %v", err)
		}
		if err := seed.Apply(ctx, repos.listing); err != nil {
			log.Fatalf("Failed to apply seed file: %v", err)
		}
		logger.Info("Seeded %d listings from %s", len(seed.Listings), cfg.SeedFile)
	}

	var verifier usecase.TokenVerifier
	var signer *jwtauth.Signer
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	default:
		signer, err = jwtauth.NewSigner(cfg.JWTSecret, cfg.JWTExpiry)
		if err != nil {
			log.Fatalf("Failed to initialize token signer: %v", err)
		}
		verifier = signer
	}

	var pushSender usecase.PushSender
	if cfg.PushEnabled {
		messagingClient, err := firebaseApp.Messaging(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Messaging: %v", err)
		}
		pushSender = firebase.NewFCMSender(messagingClient)
	}

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage:  ratelimit.PerMinute(cfg.MessageRatePerMinute),
		ratelimit.ActionCreateThread: ratelimit.PerHour(cfg.ThreadRatePerHour),
	})
	httpLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionHTTPRequest: ratelimit.PerMinute(cfg.HTTPRatePerMinute),
	})
	rateLimiter.StartCleanupRoutine(ctx, 10*time.Minute)
	httpLimiter.StartCleanupRoutine(ctx, 10*time.Minute)

	wsManager := websocket.NewManager(websocket.DefaultQueueSize)
	wsManager.Start(ctx)

	var publisher usecase.EventPublisher = wsManager
	if cfg.RedisURL != "" {
		redisClient, err := pubsub.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		broker := pubsub.NewRedisBroker(redisClient, cfg.RedisChannel, wsManager, 0)
		if err := broker.Start(ctx); err != nil {
			log.Fatalf("Failed to subscribe to %s: %v", cfg.RedisChannel, err)
		}
		publisher = broker
		checks["redis"] = pubsub.Pinger{Client: redisClient}
	}

	notificationUseCase := usecase.NewNotificationUseCase(repos.devices, pushSender, 0)
	go notificationUseCase.Start(ctx)

	chatUseCase := usecase.NewChatUseCase(repos.chats, repos.listing, publisher, notificationUseCase, rateLimiter)
	wsManager.SetThreadAuthorizer(chatUseCase)

	handlers := router.Handlers{
		Chat:      handler.NewChatHandler(chatUseCase),
		WebSocket: handler.NewWebSocketHandler(wsManager, cfg.WSAllowedOrigins),
		Health:    handler.NewHealthHandler(checks),
		Push:      handler.NewPushHandler(notificationUseCase),
	}
	if signer != nil && !cfg.IsProduction() {
		logger.Warn("Development token endpoint enabled at POST /_dev/token")
		handlers.DevToken = handler.NewDevTokenHandler(signer)
	}

	e := router.NewEcho(httpLimiter)
	router.Setup(e, handlers, apimiddleware.NewAuthMiddleware(verifier))

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
