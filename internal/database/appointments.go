package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"figaro/internal/models"

	"github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

const appointmentColumns = `id, customer_name, phone, chat_id, date, hour,
        service_id, service_name, barber_id, barber_name, status, created_from,
        reminder_sent_60, reminder_sent_30, feedback_requested, rating, notes,
        created_at, updated_at`

// InsertAppointment вставляет подтверждённую запись. Атомарность
// insert-if-absent обеспечивает частичный уникальный индекс: проигравший
// конкурент получает ErrSlotTaken без каких-либо побочных эффектов.
func (db *DB) InsertAppointment(ctx context.Context, a *models.Appointment) error {
	query := `INSERT INTO appointments (
                customer_name, phone, chat_id, date, hour,
                service_id, service_name, barber_id, barber_name,
                status, created_from, notes, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		a.CustomerName,
		a.Phone,
		a.ChatID,
		a.Date.Format(dateLayout),
		a.Hour,
		a.ServiceID,
		a.ServiceName,
		a.BarberID,
		a.BarberName,
		models.StatusConfirmed,
		a.CreatedFrom,
		a.Notes,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	a.Status = models.StatusConfirmed
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointmentStatus меняет статус. Снятие статуса confirmed
// освобождает ключ слота для нового бронирования.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// BookedHours возвращает занятые часы на дату. При barberID == BarberAny
// учитываются все подтверждённые записи дня.
func (db *DB) BookedHours(ctx context.Context, date time.Time, barberID int64) ([]int, error) {
	query := `SELECT hour FROM appointments WHERE date = ? AND status = ?`
	args := []interface{}{date.Format(dateLayout), models.StatusConfirmed}
	if barberID != models.BarberAny {
		query += ` AND barber_id = ?`
		args = append(args, barberID)
	}
	query += ` ORDER BY hour`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked hours: %w", err)
	}
	defer rows.Close()

	var hours []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hour: %w", err)
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

func (db *DB) AppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
              FROM appointments
              WHERE date >= ? AND date <= ?
              ORDER BY date, hour`

	rows, err := db.QueryContext(ctx, query, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments by range: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// PendingReminders — подтверждённые записи на дату, у которых ещё не
// отправлено хотя бы одно из напоминаний.
func (db *DB) PendingReminders(ctx context.Context, date time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
              FROM appointments
              WHERE date = ? AND status = ?
                AND (reminder_sent_60 = 0 OR reminder_sent_30 = 0)
              ORDER BY hour`

	rows, err := db.QueryContext(ctx, query, date.Format(dateLayout), models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending reminders: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// PendingFeedback — записи на дату, чей слот начался не позже maxHour
// и которым ещё не отправляли запрос отзыва.
func (db *DB) PendingFeedback(ctx context.Context, date time.Time, maxHour int) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
              FROM appointments
              WHERE date = ? AND status = ? AND feedback_requested = 0 AND hour <= ?
              ORDER BY hour`

	rows, err := db.QueryContext(ctx, query, date.Format(dateLayout), models.StatusConfirmed, maxHour)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending feedback: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// Флаги напоминаний — односторонние, только false -> true.

func (db *DB) MarkReminder60(ctx context.Context, id int64) error {
	return db.setFlag(ctx, id, "reminder_sent_60")
}

func (db *DB) MarkReminder30(ctx context.Context, id int64) error {
	return db.setFlag(ctx, id, "reminder_sent_30")
}

func (db *DB) MarkFeedbackRequested(ctx context.Context, id int64) error {
	return db.setFlag(ctx, id, "feedback_requested")
}

func (db *DB) setFlag(ctx context.Context, id int64, column string) error {
	query := fmt.Sprintf(`UPDATE appointments SET %s = 1, updated_at = ? WHERE id = ?`, column)
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

func (db *DB) SaveRating(ctx context.Context, id int64, rating int) error {
	query := `UPDATE appointments SET rating = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, rating, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) UpdateNotes(ctx context.Context, id int64, notes string) error {
	query := `UPDATE appointments SET notes = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, notes, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpcomingByChat возвращает будущие подтверждённые записи отправителя.
func (db *DB) UpcomingByChat(ctx context.Context, chatID int64) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
              FROM appointments
              WHERE chat_id = ? AND status = ? AND date >= ?
              ORDER BY date, hour`

	rows, err := db.QueryContext(ctx, query, chatID, models.StatusConfirmed, time.Now().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming appointments: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// DistinctRecipients возвращает адресатов рассылки, дедуплицированных по
// телефону (записи без телефона — по chat id).
func (db *DB) DistinctRecipients(ctx context.Context, audience string) ([]models.Recipient, error) {
	query := `SELECT phone, chat_id FROM appointments WHERE status = ?`
	args := []interface{}{models.StatusConfirmed}

	today := time.Now().Format(dateLayout)
	switch audience {
	case "today":
		query += ` AND date = ?`
		args = append(args, today)
	case "future":
		query += ` AND date >= ?`
		args = append(args, today)
	case "all":
		// без предиката
	default:
		return nil, fmt.Errorf("unknown audience filter: %s", audience)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.Phone, &r.ChatID); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}

		key := r.Phone
		if key == "" {
			key = fmt.Sprintf("chat:%d", r.ChatID)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	var dateStr string
	err := row.Scan(
		&a.ID, &a.CustomerName, &a.Phone, &a.ChatID, &dateStr, &a.Hour,
		&a.ServiceID, &a.ServiceName, &a.BarberID, &a.BarberName,
		&a.Status, &a.CreatedFrom,
		&a.Reminder60, &a.Reminder30, &a.FeedbackSent, &a.Rating, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Date, err = time.ParseInLocation(dateLayout, dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse appointment date %s: %w", dateStr, err)
	}
	return a, nil
}

func collectAppointments(rows *sql.Rows) ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}
