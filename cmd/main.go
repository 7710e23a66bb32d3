package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/config"
	"github.com/retrorumble/tournament-lobby/db"
	"github.com/retrorumble/tournament-lobby/handlers"
	"github.com/retrorumble/tournament-lobby/repositories"
	api "github.com/retrorumble/tournament-lobby/routes"
	"github.com/retrorumble/tournament-lobby/services"
	"github.com/retrorumble/tournament-lobby/storage"
	"github.com/retrorumble/tournament-lobby/utils"
)

const (
	dbConnectTimeout = 5 * time.Second
	startupTimeout   = 30 * time.Second
	shutdownTimeout  = 15 * time.Second
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Репозиторий турниров: Postgres, если задан DATABASE_URL, иначе in-memory.
	var tournamentRepo repositories.TournamentRepository
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		if err := db.Migrate(dbConn); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		tournamentRepo = repositories.NewPostgresTournamentRepository(dbConn)
		logger.Info("database connection established")
	} else {
		tournamentRepo = repositories.NewMemoryTournamentRepository()
		logger.Warn("DATABASE_URL is empty, tournaments are kept in memory only")
	}

	// Хранилище состояний матчей
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	matchStore, err := storage.Open(startCtx, cfg.StoreConfig(), logger)
	cancelStart()
	if err != nil {
		logger.Error("failed to open match store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := matchStore.Close(); err != nil {
			logger.Error("failed to close match store", slog.Any("error", err))
		}
	}()

	// Инициализация WebSocket Hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := brackets.NewHub()
	go wsHub.Run(hubCtx)
	logger.Info("WebSocket Hub started")

	bracketManager := brackets.NewManager(matchStore, wsHub, tournamentRepo, logger, brackets.ManagerConfig{
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})

	// Инициализация сервисов
	locks := utils.NewKeyedMutex()
	tournamentService := services.NewTournamentService(tournamentRepo, bracketManager, wsHub, locks, logger)
	registrationService := services.NewRegistrationService(tournamentRepo, tournamentService, wsHub, locks, cfg.SitNGoAutoClone, logger)
	matchService := services.NewMatchService(tournamentRepo, bracketManager, matchStore, logger)

	scheduler, err := services.NewScheduler(tournamentService, wsHub, logger, services.SchedulerConfig{
		ScheduleBroadcastInterval: cfg.ScheduleBroadcastInterval,
	})
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	tournamentService.SetStartTracker(scheduler)
	logger.Info("Services initialized")

	// Восстановление активных сеток после перезапуска
	restoreCtx, cancelRestore := context.WithTimeout(ctx, startupTimeout)
	restored, err := tournamentService.RestoreActive(restoreCtx)
	cancelRestore()
	if err != nil {
		logger.Error("some brackets could not be restored", slog.Any("error", err))
	}
	logger.Info("active brackets restored", slog.Int("count", restored))

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()

	// Инициализация обработчиков HTTP
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, registrationService, matchService)
	matchHandler := handlers.NewMatchHandler(matchService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, cfg.AllowedOrigins)

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.AllowedOrigins, tournamentHandler, matchHandler, webSocketHandler)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
