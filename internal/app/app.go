package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/KuzeyMurathan/shadchat/internal/api"
	"github.com/KuzeyMurathan/shadchat/internal/config"
	"github.com/KuzeyMurathan/shadchat/internal/database"
	"github.com/KuzeyMurathan/shadchat/internal/provider"
	"github.com/KuzeyMurathan/shadchat/internal/provider/anthropic"
	"github.com/KuzeyMurathan/shadchat/internal/provider/gemini"
	"github.com/KuzeyMurathan/shadchat/internal/provider/openai"
	"github.com/KuzeyMurathan/shadchat/internal/repository"
	"github.com/KuzeyMurathan/shadchat/internal/service"
)

// App bundles the wired application: storage, services and the HTTP server.
type App struct {
	Config *config.Config
	DB     *sql.DB // nil when the redis storage driver is active
	Server *http.Server

	rdb *redis.Client
}

// NewApp wires the full application from a loaded configuration.
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	repo, err := app.openRepository(cfg)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg)

	settingsService := service.NewSettingsService(repo, cfg, slog.Default())
	chatService := service.NewChatService(repo, registry, settingsService, slog.Default())
	modelService := service.NewModelService(registry, settingsService)

	chatHandler := api.NewChatHandler(chatService)
	modelHandler := api.NewModelHandler(modelService)
	settingsHandler := api.NewSettingsHandler(settingsService)
	router := api.NewRouter(chatHandler, modelHandler, settingsHandler)

	app.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	return app, nil
}

// Close releases the storage handles.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			slog.Error("Failed to close redis connection", "error", err)
		}
	}
}

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	logConfigSource()

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer app.Close()

	slog.Info("Starting server", "port", cfg.AppPort)
	if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

// openRepository selects the storage backend from the configuration:
// "sqlite" (the default) keeps everything in a local file, "redis" keeps
// conversations as JSON documents in a Redis instance.
func (a *App) openRepository(cfg *config.Config) (repository.Repository, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("Successfully connected to Redis.", "addr", cfg.RedisAddr)
		a.rdb = rdb
		return repository.NewRedisRepository(rdb), nil
	case "", "sqlite":
		db, err := database.InitDB(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		slog.Info("Successfully connected to SQLite database.", "path", cfg.DatabasePath)
		a.DB = db
		return repository.NewSQLiteRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// buildRegistry registers one adapter per supported vendor. Base URLs are
// only overridden when the configuration says so; each adapter carries its
// own default.
func buildRegistry(cfg *config.Config) *provider.Registry {
	return provider.NewRegistry(
		openai.NewOpenAI(cfg.BaseURLs["openai"]),
		openai.NewXAI(cfg.BaseURLs["xai"]),
		openai.NewGroq(cfg.BaseURLs["groq"]),
		openai.NewOpenRouter(cfg.BaseURLs["openrouter"]),
		anthropic.New(cfg.BaseURLs["anthropic"]),
		gemini.New(cfg.BaseURLs["gemini"]),
	)
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
