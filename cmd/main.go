package main

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tabkeep/aws"
	"tabkeep/handlers"
	"tabkeep/middleware"
	"tabkeep/models"
	"tabkeep/pkg/logger"
	"tabkeep/pkg/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	logger.InitFromEnv()
	mainLog := logger.GetLogger("main")

	cfg := models.LoadConfig()
	if !cfg.HasAnthropic() && !cfg.HasOpenAI() {
		log.Fatal("No provider API keys configured (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}

	if err := redis.InitRedis(""); err != nil {
		mainLog.Warn("Redis unavailable, rate limiting falls back to in-memory counters: " + err.Error())
	}
	defer redis.Close()

	if os.Getenv("SETUP_TABLES") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if client := aws.GetDynamoDBClient(ctx); client != nil {
			for _, err := range aws.SetupTables(ctx, client) {
				mainLog.Error("Table setup failed", err)
			}
		}
		cancel()
	}

	chatHandler := handlers.NewChatHandler(cfg)
	rateLimitConfig := middleware.DefaultRateLimitConfig()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HealthHandler)
	mux.HandleFunc("/metrics", handlers.MetricsHandler)
	mux.Handle("/chat", middleware.CORSMiddleware(
		middleware.OptionalAuthMiddleware(
			middleware.RateLimitMiddleware(chatHandler, rateLimitConfig),
		),
	))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	port = ":" + port

	server := &http.Server{
		Addr:    port,
		Handler: mux,

		// Streaming-tuned timeouts: writes stay open for the life of the
		// SSE stream.
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,

		MaxHeaderBytes: 1 << 20,

		TLSNextProto: make(map[string]func(*http.Server, *tls.Conn, http.Handler)),
	}

	// Outbound transport tuning for provider calls made off the shared
	// default transport (DynamoDB, Firebase, Redis bootstrap).
	http.DefaultTransport = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives:  false,
		DisableCompression: false,
		ForceAttemptHTTP2:  true,
	}

	mainLog.InfoWithFields("Gateway starting", map[string]interface{}{
		"port":      port,
		"anthropic": cfg.HasAnthropic(),
		"openai":    cfg.HasOpenAI(),
		"redis":     redis.GetClient() != nil,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		mainLog.Info("Shutting down server gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			mainLog.Error("Server shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
