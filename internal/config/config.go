package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"figaro/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Salon      SalonConfig      `yaml:"salon"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Bot        BotConfig        `yaml:"bot"`
	API        APIConfig        `yaml:"api"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Admins     []int64          `yaml:"admins"`
	StaffPath  string           `yaml:"staff_path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SalonConfig — часы работы и горизонт записи.
type SalonConfig struct {
	StartHour        int   `yaml:"start_hour"`
	EndHour          int   `yaml:"end_hour"` // исключительно: последний слот end_hour-1
	BookingRangeDays int   `yaml:"booking_range_days"`
	ClosedWeekDays   []int `yaml:"closed_week_days"`
}

type SchedulerConfig struct {
	Enabled            bool `yaml:"enabled"`
	SweepIntervalMin   int  `yaml:"sweep_interval_minutes"`
	FeedbackDelayHours int  `yaml:"feedback_delay_hours"`
}

type BroadcastConfig struct {
	DelayMinSec int `yaml:"delay_min_sec"`
	DelayMaxSec int `yaml:"delay_max_sec"`
	RateLimit   int `yaml:"rate_limit_per_minute"`
}

type BotConfig struct {
	SessionTTLSec     int `yaml:"session_ttl_sec"`
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	HeaderAPIKey string   `yaml:"header_api_key"`
	APIKeys      []string `yaml:"api_keys"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // период в формате time.ParseDuration, например "24h"
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	JournalSpreadsheetID string `yaml:"journal_spreadsheet_id"`
	JournalSheetName     string `yaml:"journal_sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env опционален: в проде переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Salon.StartHour < 0 || c.Salon.EndHour > 24 || c.Salon.StartHour >= c.Salon.EndHour {
		return fmt.Errorf("invalid working hours: %d..%d", c.Salon.StartHour, c.Salon.EndHour)
	}

	for _, wd := range c.Salon.ClosedWeekDays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("invalid closed weekday: %d", wd)
		}
	}

	// Интервал обхода должен быть короче 15-минутного окна напоминания,
	// иначе окно можно проскочить целиком
	if c.Scheduler.SweepIntervalMin >= 15 {
		return fmt.Errorf("sweep interval %dm must be shorter than 15m", c.Scheduler.SweepIntervalMin)
	}

	if c.Broadcast.DelayMinSec > c.Broadcast.DelayMaxSec {
		return fmt.Errorf("broadcast delay min %ds exceeds max %ds",
			c.Broadcast.DelayMinSec, c.Broadcast.DelayMaxSec)
	}

	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys configured")
	}

	return nil
}

// ValidateStaff проверяет справочник мастеров и услуг из staff.yaml.
func ValidateStaff(barbers []models.Barber, services []models.Service) error {
	barberIDs := make(map[int64]bool)
	for _, b := range barbers {
		if b.ID == 0 {
			return fmt.Errorf("barber '%s' has invalid ID 0", b.Name)
		}
		if barberIDs[b.ID] {
			return fmt.Errorf("duplicate barber ID found: %d", b.ID)
		}
		barberIDs[b.ID] = true
	}

	serviceIDs := make(map[int64]bool)
	for _, s := range services {
		if s.ID == 0 {
			return fmt.Errorf("service '%s' has invalid ID 0", s.Name)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("duplicate service ID found: %d", s.ID)
		}
		serviceIDs[s.ID] = true
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Bot.SessionTTLSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalMin) * time.Minute
}

func (c *Config) applyDefaults() {
	if c.Salon.StartHour == 0 && c.Salon.EndHour == 0 {
		c.Salon.StartHour = 10
		c.Salon.EndHour = 20
	}
	if c.Salon.BookingRangeDays == 0 {
		c.Salon.BookingRangeDays = models.DefaultBookingRangeDays
	}

	if c.Scheduler.SweepIntervalMin == 0 {
		c.Scheduler.SweepIntervalMin = models.DefaultSweepIntervalMinutes
	}
	if c.Scheduler.FeedbackDelayHours == 0 {
		c.Scheduler.FeedbackDelayHours = models.FeedbackDelayHours
	}

	if c.Broadcast.DelayMinSec == 0 {
		c.Broadcast.DelayMinSec = models.DefaultBroadcastDelayMinSec
	}
	if c.Broadcast.DelayMaxSec == 0 {
		c.Broadcast.DelayMaxSec = models.DefaultBroadcastDelayMaxSec
	}

	if c.Bot.SessionTTLSec == 0 {
		c.Bot.SessionTTLSec = models.DefaultSessionTTL
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.StaffPath == "" {
		c.StaffPath = "configs/staff.yaml"
	}
}
