package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"figaro/internal/models"
)

// GetSettings читает единственную строку настроек.
// Возвращает (nil, nil), если настройки ещё не сохранялись.
func (db *DB) GetSettings(ctx context.Context) (*models.Settings, error) {
	query := `SELECT start_hour, end_hour, booking_range_days, closed_week_days FROM settings WHERE id = 1`

	var s models.Settings
	var closedCSV string
	err := db.QueryRowContext(ctx, query).Scan(&s.StartHour, &s.EndHour, &s.BookingRangeDays, &closedCSV)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	s.ClosedWeekDays = parseWeekdaysCSV(closedCSV)
	return &s, nil
}

func (db *DB) SaveSettings(ctx context.Context, s *models.Settings) error {
	query := `INSERT INTO settings (id, start_hour, end_hour, booking_range_days, closed_week_days, updated_at)
              VALUES (1, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  start_hour = excluded.start_hour,
                  end_hour = excluded.end_hour,
                  booking_range_days = excluded.booking_range_days,
                  closed_week_days = excluded.closed_week_days,
                  updated_at = excluded.updated_at`

	_, err := db.ExecContext(ctx, query,
		s.StartHour, s.EndHour, s.BookingRangeDays, formatWeekdaysCSV(s.ClosedWeekDays), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (db *DB) AddClosedDate(ctx context.Context, date time.Time, reason string) error {
	query := `INSERT INTO closed_dates (date, reason) VALUES (?, ?)
              ON CONFLICT(date) DO UPDATE SET reason = excluded.reason`
	_, err := db.ExecContext(ctx, query, date.Format(dateLayout), reason)
	if err != nil {
		return fmt.Errorf("failed to add closed date: %w", err)
	}
	return nil
}

func (db *DB) RemoveClosedDate(ctx context.Context, date time.Time) error {
	_, err := db.ExecContext(ctx, `DELETE FROM closed_dates WHERE date = ?`, date.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to remove closed date: %w", err)
	}
	return nil
}

func (db *DB) IsClosedDate(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM closed_dates WHERE date = ?`, date.Format(dateLayout)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check closed date: %w", err)
	}
	return count > 0, nil
}

func (db *DB) ListClosedDates(ctx context.Context) ([]models.ClosedDate, error) {
	rows, err := db.QueryContext(ctx, `SELECT date, reason FROM closed_dates ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed dates: %w", err)
	}
	defer rows.Close()

	var dates []models.ClosedDate
	for rows.Next() {
		var cd models.ClosedDate
		var dateStr string
		if err := rows.Scan(&dateStr, &cd.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan closed date: %w", err)
		}
		cd.Date, err = time.ParseInLocation(dateLayout, dateStr, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed date %s: %w", dateStr, err)
		}
		dates = append(dates, cd)
	}
	return dates, rows.Err()
}

func parseWeekdaysCSV(csv string) []int {
	if csv == "" {
		return nil
	}
	var days []int
	for _, part := range strings.Split(csv, ",") {
		if d, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			days = append(days, d)
		}
	}
	return days
}

func formatWeekdaysCSV(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}
