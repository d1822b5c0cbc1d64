package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kieranpgray/coinbag/internal/domain/statements/ai"
	"github.com/kieranpgray/coinbag/internal/domain/statements/handler"
	"github.com/kieranpgray/coinbag/internal/domain/statements/repository"
	"github.com/kieranpgray/coinbag/internal/domain/statements/service"
	"github.com/kieranpgray/coinbag/pkg/config"
	"github.com/kieranpgray/coinbag/pkg/db"
	"github.com/kieranpgray/coinbag/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Repo        *repository.PostgresRepository
	FileStorage storage.Storage
	AIClient    *ai.Client

	ImportService *service.Service
	ImportHandler *handler.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.ImportHandler = handler.New(deps.ImportService, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initServices wires the repository, storage, AI client and the import
// pipeline
func (d *Dependencies) initServices(ctx context.Context) error {
	d.Repo = repository.NewPostgresRepository(d.DB.Pool)

	fileStorage, err := storage.NewLocalStorage(d.Config.Storage.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	aiClient, err := ai.NewClient(ctx, d.Config.Gemini, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to init ai client: %w", err)
	}
	d.AIClient = aiClient

	d.ImportService = service.New(
		d.Repo,
		d.Repo,
		d.Repo,
		d.Repo,
		d.FileStorage,
		d.AIClient,
		d.Config.Resilience,
		d.Logger,
	)

	d.Logger.Info("services initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
