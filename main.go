package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"haven/config"
	"haven/database"
	"haven/repositories"
	"haven/routes"
	"haven/services"
	"haven/websocket"
	"haven/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	setupLogger(cfg)

	store, redisClient, closeStore := openStore(cfg)
	defer closeStore()

	hub := websocket.NewHub(nil)
	go hub.Run()

	registry := services.NewDeviceRegistry()

	workerConfig := workers.DefaultDispatchWorkerConfig()
	workerConfig.WorkerCount = cfg.DispatchWorkers
	workerConfig.RetryAttempts = cfg.DispatchRetries
	dispatchWorker := workers.NewDispatchWorker(buildTransport(cfg, hub, registry), workerConfig)
	if err := dispatchWorker.Start(); err != nil {
		logrus.Fatal("Failed to start dispatch worker: ", err)
	}

	router, svc := routes.SetupRoutes(routes.Dependencies{
		Config:     cfg,
		Store:      store,
		Redis:      redisClient,
		Hub:        hub,
		Dispatcher: dispatchWorker,
		Registry:   registry,
	})
	hub.SetCommander(svc.Session)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Infof("Haven server starting on port %s (store: %s, transports: %v)", cfg.Port, cfg.StoreDriver, cfg.DeliveryTransports)
		logrus.Info("WebSocket endpoint: /ws")
		logrus.Info("Health Check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Error("Server forced to shutdown: ", err)
	}

	svc.Session.Shutdown()
	if err := dispatchWorker.Stop(); err != nil {
		logrus.Error("Failed to stop dispatch worker: ", err)
	}
	hub.Shutdown()

	logrus.Info("Server shutdown complete")
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// openStore selects the profile backend. The returned redis client is nil
// unless the redis driver is in use; rate limiting then falls back to memory.
func openStore(cfg *config.Config) (repositories.KVStore, *redis.Client, func()) {
	switch cfg.StoreDriver {
	case "mongo":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logrus.Fatal("Failed to connect to database: ", err)
		}
		return repositories.NewMongoKVStore(db), nil, func() {
			if err := database.Disconnect(); err != nil {
				logrus.Error("Failed to disconnect database: ", err)
			}
		}

	case "memory":
		logrus.Warn("Using in-memory store; profiles and history are lost on restart")
		return repositories.NewMemoryKVStore(), nil, func() {}

	default:
		client := config.InitRedis(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Fatal("Failed to connect to redis: ", err)
		}
		return repositories.NewRedisKVStore(client), client, func() {
			client.Close()
		}
	}
}

// buildTransport fans alerts out to every configured channel. Channels that
// cannot be set up are skipped with a warning.
func buildTransport(cfg *config.Config, hub *websocket.Hub, registry *services.DeviceRegistry) services.Transport {
	var transports []services.Transport

	for _, name := range cfg.DeliveryTransports {
		switch name {
		case "device":
			transports = append(transports, services.NewDeviceTransport(hub))

		case "push":
			if cfg.FirebaseCredentials == "" {
				logrus.Warn("Push transport requested without FIREBASE_CREDENTIALS")
				continue
			}
			push, err := services.NewPushTransport(context.Background(), cfg.FirebaseCredentials, registry)
			if err != nil {
				logrus.Errorf("Failed to initialize push transport: %v", err)
				continue
			}
			transports = append(transports, push)

		case "twilio":
			if !cfg.HasTwilio() {
				logrus.Warn("Twilio transport requested without credentials")
				continue
			}
			transports = append(transports, services.NewTwilioTransport(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber))

		case "log":
			transports = append(transports, services.LogTransport{})

		default:
			logrus.Warnf("Unknown delivery transport: %s", name)
		}
	}

	if len(transports) == 0 {
		logrus.Warn("No delivery transport available, alerts will only be logged")
		transports = append(transports, services.LogTransport{})
	}
	return services.NewMultiTransport(transports...)
}
