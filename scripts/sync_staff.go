package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type StaffConfig struct {
	Barbers  []models.Barber  `yaml:"barbers"`
	Services []models.Service `yaml:"services"`
}

// Разовая синхронизация справочника staff.yaml в базу без запуска бота.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		staffPath = flag.String("staff", "configs/staff.yaml", "path to staff.yaml")
		dbPath    = flag.String("db", "./data/figaro.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*staffPath)
	if err != nil {
		return fmt.Errorf("read staff: %w", err)
	}
	var cfg StaffConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse staff: %w", err)
	}
	if len(cfg.Barbers) == 0 {
		return fmt.Errorf("no barbers in yaml")
	}
	if err = config.ValidateStaff(cfg.Barbers, cfg.Services); err != nil {
		return fmt.Errorf("validate staff: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncBarbers(ctx, cfg.Barbers); err != nil {
		return fmt.Errorf("sync barbers: %w", err)
	}
	if err = db.SyncServices(ctx, cfg.Services); err != nil {
		return fmt.Errorf("sync services: %w", err)
	}

	fmt.Printf("done: barbers=%d services=%d\n", len(cfg.Barbers), len(cfg.Services))
	return nil
}
