package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB оборачивает соединение с SQLite.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	ErrSlotTaken  = errors.New("slot already taken")
	ErrPastDate   = errors.New("cannot book in the past")
	ErrClosedDay  = errors.New("day is closed for booking")
	ErrDateTooFar = errors.New("date is too far in the future")
	ErrNotFound   = errors.New("appointment not found")
)

// NewDB открывает базу и создаёт таблицы, если их нет.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL и busy timeout: бот, планировщик и API пишут конкурентно
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Каждое соединение с :memory: видит свою базу
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}

	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            chat_id INTEGER NOT NULL DEFAULT 0,
            date TEXT NOT NULL,
            hour INTEGER NOT NULL,
            service_id INTEGER NOT NULL DEFAULT 0,
            service_name TEXT NOT NULL DEFAULT '',
            barber_id INTEGER NOT NULL DEFAULT 0,
            barber_name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'confirmed',
            created_from TEXT NOT NULL DEFAULT 'web',
            reminder_sent_60 INTEGER NOT NULL DEFAULT 0,
            reminder_sent_30 INTEGER NOT NULL DEFAULT 0,
            feedback_requested INTEGER NOT NULL DEFAULT 0,
            rating INTEGER NOT NULL DEFAULT 0,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Частичный уникальный индекс — единственный механизм защиты от
		// двойного бронирования: из конкурентных INSERT на один ключ
		// выигрывает ровно один, отменённые записи ключ освобождают.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot
            ON appointments(date, hour, barber_id) WHERE status = 'confirmed'`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_phone ON appointments(phone)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_chat_id ON appointments(chat_id)`,

		`CREATE TABLE IF NOT EXISTS settings (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            start_hour INTEGER NOT NULL,
            end_hour INTEGER NOT NULL,
            booking_range_days INTEGER NOT NULL,
            closed_week_days TEXT NOT NULL DEFAULT '',
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS closed_dates (
            date TEXT PRIMARY KEY,
            reason TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE TABLE IF NOT EXISTS barbers (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            sort_order INTEGER NOT NULL DEFAULT 0
        )`,

		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            price INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
