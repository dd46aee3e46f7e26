package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"figaro/internal/api"
	"figaro/internal/bot"
	"figaro/internal/broadcast"
	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/domain"
	"figaro/internal/events"
	"figaro/internal/google"
	"figaro/internal/logging"
	"figaro/internal/metrics"
	"figaro/internal/models"
	"figaro/internal/repository"
	"figaro/internal/scheduler"
	"figaro/internal/service"
	"figaro/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

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

	barbers, services, err := loadStaff(cfg.StaffPath, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := service.NewCatalogService(db, &logger)
	if err := catalog.Sync(ctx, barbers, services); err != nil {
		logger.Error().Err(err).Msg("Ошибка синхронизации справочника")
		return err
	}

	journal := initJournal(ctx, cfg, &logger)
	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	tgService := service.NewTelegramService(bot.NewBotWrapper(botAPI))

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	notifyWorker := worker.NewNotifyWorker(tgService, journal, redisClient, retryPolicy, &logger)
	go notifyWorker.Start(ctx)

	eventBus := events.NewEventBus()
	subscribeEventLog(eventBus, &logger)

	bookingService := service.NewBookingService(db, eventBus, notifyWorker, cfg.Salon, &logger)

	if cfg.Scheduler.Enabled {
		sweeper := scheduler.New(
			db, notifyWorker, stateService, eventBus,
			cfg.SweepInterval(),
			time.Duration(cfg.Scheduler.FeedbackDelayHours)*time.Hour,
			logger,
		)
		go sweeper.Start(ctx)
	}

	dispatcher := broadcast.NewDispatcher(db, tgService, eventBus, cfg.Broadcast, logger)

	if cfg.API.Enabled {
		metrics.Register()
		apiServer := api.NewHTTPServer(cfg.API, bookingService, dispatcher, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	telegramBot, err := bot.NewBot(
		tgService, cfg, stateService, bookingService,
		db, catalog, dispatcher, eventBus, bot.NewMetrics(), &logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Str("bot", tgService.GetSelf().UserName).Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

// loadStaff читает справочник мастеров и услуг из staff.yaml.
func loadStaff(path string, logger *zerolog.Logger) ([]models.Barber, []models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", path)
		return nil, nil, err
	}

	var staff struct {
		Barbers  []models.Barber  `yaml:"barbers"`
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &staff); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга staff.yaml")
		return nil, nil, err
	}

	if err := config.ValidateStaff(staff.Barbers, staff.Services); err != nil {
		logger.Error().Err(err).Msg("Staff validation failed")
		return nil, nil, err
	}

	return staff.Barbers, staff.Services, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

// initJournal подключает онлайн-журнал Google Sheets. Журнал опционален:
// без него бот работает, записи просто не дублируются в таблицу.
// Возвращает интерфейс, а не *JournalService: типизированный nil-указатель
// в интерфейсе проходил бы проверку journal == nil в воркере.
func initJournal(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.JournalWriter {
	if cfg.Google.CredentialsFile == "" || cfg.Google.JournalSpreadsheetID == "" {
		logger.Info().Msg("Google Sheets journal disabled")
		return nil
	}

	journal, err := google.NewJournalService(cfg.Google)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets journal")
		return nil
	}

	if err := journal.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	logger.Info().Msg("Google Sheets journal initialized")
	return journal
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, cfg.SessionTTL())
	fallbackRepo := repository.NewMemoryStateRepository(cfg.SessionTTL())
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Prometheus metrics server started")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}

// subscribeEventLog пишет доменные события в лог.
func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	appointmentLog := func(ev *events.Event) error {
		var payload events.AppointmentEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Int64("appointment_id", payload.AppointmentID).
			Str("barber", payload.BarberName).
			Msg("appointment event")
		return nil
	}

	bus.Subscribe(events.EventBookingConfirmed, appointmentLog)
	bus.Subscribe(events.EventBookingCancelled, appointmentLog)
	bus.Subscribe(events.EventReminderSent, appointmentLog)

	bus.Subscribe(events.EventBroadcastFinished, func(ev *events.Event) error {
		var payload events.BroadcastEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Msg("event bus: decode broadcast payload")
			return nil
		}
		logger.Info().
			Int("delivered", payload.Delivered).
			Int("failed", payload.Failed).
			Str("audience", payload.Audience).
			Msg("broadcast finished")
		return nil
	})
}
