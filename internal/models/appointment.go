package models

import (
	"fmt"
	"time"
)

type Appointment struct {
	ID           int64     `json:"id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	ChatID       int64     `json:"chat_id,omitempty"`
	Date         time.Time `json:"date"`
	Hour         int       `json:"hour"`
	ServiceID    int64     `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	BarberID     int64     `json:"barber_id"`
	BarberName   string    `json:"barber_name,omitempty"`
	Status       string    `json:"status"` // confirmed, cancelled
	CreatedFrom  string    `json:"created_from"`
	Reminder60   bool      `json:"reminder_sent_60"`
	Reminder30   bool      `json:"reminder_sent_30"`
	FeedbackSent bool      `json:"feedback_requested"`
	Rating       int       `json:"rating,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StartTime возвращает момент начала слота в локальной зоне даты.
func (a *Appointment) StartTime() time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), a.Hour, 0, 0, 0, a.Date.Location())
}

// HourLabel returns the slot label, e.g. "14:00".
func (a *Appointment) HourLabel() string {
	return FormatHour(a.Hour)
}

// FormatHour formats a start-of-hour value as "HH:00".
func FormatHour(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// Recipient is a deduplicated broadcast target resolved from appointments.
type Recipient struct {
	Phone  string
	ChatID int64
}
