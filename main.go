package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/backfill"
	"chat-task-scanner-go/internal/classifier"
	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/connection"
	"chat-task-scanner-go/internal/database"
	appmetrics "chat-task-scanner-go/internal/metrics"
	"chat-task-scanner-go/internal/pipeline"
	"chat-task-scanner-go/internal/scheduler"
	"chat-task-scanner-go/internal/server"
	"chat-task-scanner-go/internal/store"
	"chat-task-scanner-go/internal/transport"
)

func main() {
	// Configure logging
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Chat Task Scanner")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize database
	db, err := database.Open(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize metrics
	metrics := appmetrics.NewMetrics()

	// Initialize stores
	processedStore := store.NewProcessedStore(db)
	taskStore := store.NewTaskStore(db)
	chatStore := store.NewChatStore(db)
	checkpointStore := store.NewCheckpointStore(db)

	// Initialize transport
	sessionDir := transport.NewSessionDir(cfg.Transport.SessionDir)
	client := transport.NewBridgeClient(cfg.Transport.BaseURL, cfg.Transport.PollInterval)

	// Initialize pipeline
	directory := pipeline.NewChatDirectory(chatStore, cfg.Monitor.CommandChat)
	gateway := classifier.New(&cfg.Classifier)
	ingestor := pipeline.NewIngestor(processedStore, taskStore, directory, gateway, metrics, cfg.Monitor.MinMessageLength)

	// Initialize connection manager and backfill scanner
	manager := connection.NewManager(client, sessionDir, checkpointStore, cfg.Connection, metrics)
	scanner := backfill.NewScanner(client, directory, ingestor, checkpointStore, cfg.Backfill, metrics)

	// Initialize maintenance scheduler
	sched := scheduler.NewScheduler(cfg, client, directory, manager, taskStore, metrics)

	// Setup HTTP server
	handlers := server.NewHandlers(db, taskStore, chatStore, manager, sched)
	router := setupRouter(handlers)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run the connection state machine
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.Errorf("Connection manager stopped: %v", err)
		}
	}()

	// Startup sequence: wait for ready, reconcile chats, backfill, then
	// consume live messages. Messages arriving during backfill queue on the
	// manager's buffer so the two never race for the same fingerprints.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-manager.Ready():
		}

		if cfg.Monitor.VerifyChatsOnStartup {
			if err := directory.Sync(ctx, client, cfg.Monitor.Chats); err != nil {
				logrus.Errorf("Startup chat verification failed: %v", err)
			}
		} else if err := directory.Refresh(ctx); err != nil {
			logrus.Errorf("Chat directory load failed: %v", err)
		}
		metrics.MonitoredChats.Set(float64(len(directory.Monitored())))

		if err := scanner.Run(ctx); err != nil {
			logrus.Errorf("Backfill scan failed: %v", err)
		}

		for msg := range manager.Messages() {
			go ingestor.Handle(ctx, msg)
		}
	}()

	// Start maintenance scheduler
	if err := sched.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the state machine and wait for it
	cancel()
	select {
	case <-managerDone:
	case <-shutdownCtx.Done():
	}

	// Stop scheduler
	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// Close transport
	client.Close()

	logrus.Info("Scanner stopped gracefully")
}

// setupRouter sets up the HTTP router with middleware
func setupRouter(handlers *server.Handlers) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	// Create router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	// Setup routes
	handlers.SetupRoutes(router)

	return router
}

// loggerMiddleware adds logging middleware
func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
