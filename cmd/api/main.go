package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firetrack360/identity/internal/application/auth"
	"github.com/firetrack360/identity/internal/application/directory"
	"github.com/firetrack360/identity/internal/application/notification"
	"github.com/firetrack360/identity/internal/config"
	"github.com/firetrack360/identity/internal/infrastructure/dynamo"
	jwtinfra "github.com/firetrack360/identity/internal/infrastructure/jwt"
	rediscache "github.com/firetrack360/identity/internal/infrastructure/redis"
	s3infra "github.com/firetrack360/identity/internal/infrastructure/s3"
	"github.com/firetrack360/identity/internal/infrastructure/smtp"
	"github.com/firetrack360/identity/internal/infrastructure/sns"
	"github.com/firetrack360/identity/internal/pkg/password"
	transporthttp "github.com/firetrack360/identity/internal/transport/http"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// The signing secret is the root of every token; refuse to start without it.
	jwtProvider, err := jwtinfra.NewProvider(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}

	redisClient := rediscache.NewClient(cfg)
	userCache := rediscache.NewUserCache(redisClient, cfg.CacheTTL)

	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Dead-letter archive for notifications that exhaust their retries.
	s3Client := s3infra.NewClient(cfg)
	archive := s3infra.NewArchive(s3Client, cfg.DeadLetterBucket)

	dispatcher := notification.NewDispatcher(notification.Config{
		Workers:        cfg.NotifyWorkers,
		MaxAttempts:    cfg.NotifyMaxAttempts,
		QueueSize:      cfg.NotifyQueueSize,
		BaseDelay:      cfg.NotifyBaseDelay,
		MaxDelay:       cfg.NotifyMaxDelay,
		AttemptTimeout: cfg.NotifyAttemptTimeout,
	}, notification.DispatcherDeps{
		Email:   mailer,
		SMS:     smsSender,
		Archive: archive,
	})
	defer dispatcher.Close()

	userDirectory := directory.NewService(directory.ServiceDeps{
		Store: dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, cfg.DynamoTables.UserUniques),
		Cache: userCache,
	})

	authSvc := auth.NewService(auth.ServiceDeps{
		Directory:       userDirectory,
		Tokens:          jwtProvider,
		Hasher:          password.NewHasher(bcrypt.DefaultCost),
		Notifier:        dispatcher,
		VerificationTTL: cfg.VerificationTokenTTL,
		AccessTTL:       cfg.AccessTokenTTL,
		RefreshTTL:      cfg.RefreshTokenTTL,
	})

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{AuthService: authSvc})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
