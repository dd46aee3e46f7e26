package models

import "time"

// Settings хранит часы работы и горизонт бронирования. Одна строка на салон.
type Settings struct {
	StartHour        int   `yaml:"start_hour" json:"start_hour"`
	EndHour          int   `yaml:"end_hour" json:"end_hour"` // исключительно: последний слот EndHour-1
	BookingRangeDays int   `yaml:"booking_range_days" json:"booking_range_days"`
	ClosedWeekDays   []int `yaml:"closed_week_days" json:"closed_week_days"` // 0 = воскресенье
}

// IsClosedWeekday reports whether the weekday is globally closed.
func (s *Settings) IsClosedWeekday(d time.Weekday) bool {
	for _, wd := range s.ClosedWeekDays {
		if int(d) == wd {
			return true
		}
	}
	return false
}

type ClosedDate struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}
