package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"

	"devconnect/chat-service/internal/auth"
	"devconnect/chat-service/internal/repository"
	"devconnect/chat-service/internal/server"
	"devconnect/chat-service/internal/service"
	"devconnect/chat-service/internal/ws"

	"github.com/sirupsen/logrus"
)

func main() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Failed to read config file: %v", err)
	}

	logger := logrus.New()
	logLevel := viper.GetString("logging.level")
	logFormat := viper.GetString("logging.format")

	switch logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	dbHost := viper.GetString("database.host")
	dbPort := viper.GetInt("database.port")
	dbUser := viper.GetString("database.user")
	dbPassword := viper.GetString("database.password")
	dbName := viper.GetString("database.dbname")
	sslmode := viper.GetString("database.sslmode")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 5432
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "devconnect"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	logger.Info("Connected to PostgreSQL database")

	userRepo := repository.NewUserRepository(db)
	if err := userRepo.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize user tables: %v", err)
	}

	chatRepo := repository.NewChatRepository(db)
	if err := chatRepo.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize chat tables: %v", err)
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}

	cookieName := viper.GetString("auth.cookie_name")
	if cookieName == "" {
		cookieName = "token"
	}

	verifier := auth.NewVerifier(jwtSecret, userRepo)
	chatService := service.NewChatService(chatRepo, userRepo, logger)

	hub := ws.NewHub()
	dispatcher := ws.NewDispatcher(hub, chatService, logger)
	router := server.NewRouter(verifier, chatService, hub, dispatcher, cookieName, logger)

	port := viper.GetString("server.port")
	if port == "" {
		port = "8087"
	}

	host := viper.GetString("server.host")
	if host == "" {
		host = "0.0.0.0"
	}

	address := net.JoinHostPort(host, port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting chat server on %s", address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start chat server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down chat server...")

	shutdownTimeout := viper.GetDuration("server.shutdown_timeout")
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Infof("Chat server shutdown timeout: %v", err)
	} else {
		logger.Info("Chat server exited gracefully")
	}

	logger.Info("Server exited")
}
