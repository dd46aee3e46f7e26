package domain

import (
	"context"
	"time"

	"figaro/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository — всё, что сервисный слой просит у SQLite.
type Repository interface {
	InsertAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status string) error
	BookedHours(ctx context.Context, date time.Time, barberID int64) ([]int, error)
	AppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error)
	PendingReminders(ctx context.Context, date time.Time) ([]*models.Appointment, error)
	PendingFeedback(ctx context.Context, date time.Time, maxHour int) ([]*models.Appointment, error)
	MarkReminder60(ctx context.Context, id int64) error
	MarkReminder30(ctx context.Context, id int64) error
	MarkFeedbackRequested(ctx context.Context, id int64) error
	SaveRating(ctx context.Context, id int64, rating int) error
	UpdateNotes(ctx context.Context, id int64, notes string) error
	UpcomingByChat(ctx context.Context, chatID int64) ([]*models.Appointment, error)
	DistinctRecipients(ctx context.Context, audience string) ([]models.Recipient, error)

	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, s *models.Settings) error
	AddClosedDate(ctx context.Context, date time.Time, reason string) error
	RemoveClosedDate(ctx context.Context, date time.Time) error
	IsClosedDate(ctx context.Context, date time.Time) (bool, error)
	ListClosedDates(ctx context.Context) ([]models.ClosedDate, error)

	SyncBarbers(ctx context.Context, barbers []models.Barber) error
	ListActiveBarbers(ctx context.Context) ([]models.Barber, error)
	GetBarberByName(ctx context.Context, name string) (*models.Barber, error)
	GetBarberByID(ctx context.Context, id int64) (*models.Barber, error)
	SyncServices(ctx context.Context, services []models.Service) error
	ListActiveServices(ctx context.Context) ([]models.Service, error)
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
}

type StateRepository interface {
	GetState(ctx context.Context, chatID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, chatID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, chatID int64, step string, data map[string]interface{}) error
	ClearUserState(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// BookingService — операции над слотами и записями.
type BookingService interface {
	AvailableSlots(ctx context.Context, date time.Time, barberID int64) ([]int, error)
	Book(ctx context.Context, req *models.BookingRequest) (*models.Appointment, error)
	BookDouble(ctx context.Context, req *models.BookingRequest) ([]*models.Appointment, error)
	Cancel(ctx context.Context, id int64) error
	ValidateDate(ctx context.Context, date time.Time) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	UpcomingByChat(ctx context.Context, chatID int64) ([]*models.Appointment, error)
	AppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error)
	SaveRating(ctx context.Context, id int64, rating int) error
}

// JournalWriter пишет записи в онлайн-журнал (Google Sheets).
type JournalWriter interface {
	AppendAppointment(ctx context.Context, a *models.Appointment) error
	MarkCancelled(ctx context.Context, appointmentID int64) error
}

// NotifyWorker — очередь исходящих уведомлений с ретраями.
type NotifyWorker interface {
	EnqueueMessage(ctx context.Context, chatID int64, text string) error
	EnqueueJournalAppend(ctx context.Context, a *models.Appointment) error
	EnqueueJournalCancel(ctx context.Context, appointmentID int64) error
}
