package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	CreatedFromWeb   = "web"
	CreatedFromChat  = "chat"
	CreatedFromAdmin = "admin"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Шаги диалога записи. Отсутствие состояния = idle.
const (
	StepAwaitingBarber   = "awaiting_barber"
	StepAwaitingDate     = "awaiting_date"
	StepAwaitingHour     = "awaiting_hour"
	StepAwaitingName     = "awaiting_name"
	StepConfirmation     = "confirmation"
	StepAwaitingFeedback = "awaiting_feedback"
)

// BarberAny — запись к любому свободному мастеру.
const BarberAny int64 = 0

const (
	// DefaultBookingRangeDays горизонт записи вперёд.
	DefaultBookingRangeDays = 14

	// DefaultSessionTTL время жизни сессии диалога (секунды).
	// Бездействие дольше — сессия сбрасывается в idle.
	DefaultSessionTTL = 15 * 60

	// DefaultSweepIntervalMinutes интервал прохода планировщика напоминаний.
	// Должен быть меньше ширины окна напоминания (15 минут).
	DefaultSweepIntervalMinutes = 5

	// DefaultBroadcastDelayMinSec / Max — пауза между сообщениями рассылки.
	DefaultBroadcastDelayMinSec = 10
	DefaultBroadcastDelayMaxSec = 25

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений (секунды)
	RateLimitWindow = 60

	// FeedbackDelayHours через сколько часов после начала слота просить отзыв
	FeedbackDelayHours = 2
)
