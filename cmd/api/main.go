package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"figaro/internal/api"
	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/events"
	"figaro/internal/logging"
	"figaro/internal/metrics"
	"figaro/internal/models"
	"figaro/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// API-only запуск: HTTP API поверх общей базы, без телеграм-бота.
// Рассылки в этом режиме недоступны (нет транспорта).
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	barbers, services, err := loadStaff(cfg.StaffPath, &logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := service.NewCatalogService(db, &logger)
	if err := catalog.Sync(ctx, barbers, services); err != nil {
		logger.Error().Err(err).Msg("sync staff catalog")
		return err
	}

	metrics.Register()

	bookingService := service.NewBookingService(db, events.NewEventBus(), nil, cfg.Salon, &logger)
	httpServer := api.NewHTTPServer(cfg.API, bookingService, nil, logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	logger.Info().Int("port", cfg.API.Port).Msg("API server started")

	<-ctx.Done()
	return httpServer.Shutdown(context.Background())
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadStaff(path string, logger *zerolog.Logger) ([]models.Barber, []models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("staff_path", path).Msg("read staff")
		return nil, nil, err
	}

	var staff struct {
		Barbers  []models.Barber  `yaml:"barbers"`
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &staff); err != nil {
		logger.Error().Err(err).Str("staff_path", path).Msg("parse staff")
		return nil, nil, err
	}

	if err := config.ValidateStaff(staff.Barbers, staff.Services); err != nil {
		logger.Error().Err(err).Msg("staff validation failed")
		return nil, nil, err
	}

	return staff.Barbers, staff.Services, nil
}
