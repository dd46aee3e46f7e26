package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"figaro/internal/models"
)

func mapNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// SyncBarbers приводит таблицу мастеров в соответствие со справочником из
// staff.yaml. Мастера, отсутствующие в списке, деактивируются, а не удаляются:
// на них могут ссылаться существующие записи.
func (db *DB) SyncBarbers(ctx context.Context, barbers []models.Barber) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE barbers SET is_active = 0`); err != nil {
		return fmt.Errorf("failed to deactivate barbers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO barbers (id, name, role, is_active, sort_order)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             role = excluded.role,
             is_active = excluded.is_active,
             sort_order = excluded.sort_order`)
	if err != nil {
		return fmt.Errorf("failed to prepare barber upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range barbers {
		if _, err := stmt.ExecContext(ctx, b.ID, b.Name, b.Role, b.IsActive, b.SortOrder); err != nil {
			return fmt.Errorf("failed to upsert barber %d: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListActiveBarbers(ctx context.Context) ([]models.Barber, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, role, is_active, sort_order FROM barbers
         WHERE is_active = 1 ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list barbers: %w", err)
	}
	defer rows.Close()

	var barbers []models.Barber
	for rows.Next() {
		var b models.Barber
		if err := rows.Scan(&b.ID, &b.Name, &b.Role, &b.IsActive, &b.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan barber: %w", err)
		}
		barbers = append(barbers, b)
	}
	return barbers, rows.Err()
}

// GetBarberByName ищет активного мастера по имени без учёта регистра.
func (db *DB) GetBarberByName(ctx context.Context, name string) (*models.Barber, error) {
	barbers, err := db.ListActiveBarbers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for i := range barbers {
		if strings.ToLower(barbers[i].Name) == needle {
			return &barbers[i], nil
		}
	}
	return nil, ErrNotFound
}

func (db *DB) GetBarberByID(ctx context.Context, id int64) (*models.Barber, error) {
	var b models.Barber
	err := db.QueryRowContext(ctx,
		`SELECT id, name, role, is_active, sort_order FROM barbers WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Role, &b.IsActive, &b.SortOrder)
	if err != nil {
		return nil, mapNotFound(err, fmt.Sprintf("barber %d", id))
	}
	return &b, nil
}

func (db *DB) SyncServices(ctx context.Context, services []models.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE services SET is_active = 0`); err != nil {
		return fmt.Errorf("failed to deactivate services: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO services (id, name, price, is_active)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             price = excluded.price,
             is_active = excluded.is_active`)
	if err != nil {
		return fmt.Errorf("failed to prepare service upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range services {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Name, s.Price, s.IsActive); err != nil {
			return fmt.Errorf("failed to upsert service %d: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListActiveServices(ctx context.Context) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, price, is_active FROM services WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var s models.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (db *DB) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	err := db.QueryRowContext(ctx,
		`SELECT id, name, price, is_active FROM services WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.Price, &s.IsActive)
	if err != nil {
		return nil, mapNotFound(err, fmt.Sprintf("service %d", id))
	}
	return &s, nil
}
