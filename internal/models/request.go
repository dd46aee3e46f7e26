package models

import "time"

// BookingRequest — заявка на запись из чата или HTTP API.
// Для двойного визита занимаются Hour и Hour+1.
type BookingRequest struct {
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	ChatID       int64     `json:"chat_id"`
	Date         time.Time `json:"date"`
	Hour         int       `json:"hour"`
	ServiceID    int64     `json:"service_id"`
	BarberID     int64     `json:"barber_id"`
	CreatedFrom  string    `json:"created_from"`
	Notes        string    `json:"notes"`
}

// BroadcastRequest — задание на рассылку.
type BroadcastRequest struct {
	Text     string `json:"text"`
	Audience string `json:"audience"` // all | today | future
}
