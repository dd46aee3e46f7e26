package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"figaro/internal/domain"
	"figaro/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskSendMessage   = "send_message"
	TaskJournalAppend = "journal_append"
	TaskJournalCancel = "journal_cancel"
)

// NotifyTask — единица работы исходящей очереди: сообщение клиенту
// или запись в онлайн-журнал.
type NotifyTask struct {
	Type          string              `json:"type"`
	ChatID        int64               `json:"chat_id,omitempty"`
	Text          string              `json:"text,omitempty"`
	Appointment   *models.Appointment `json:"appointment,omitempty"`
	AppointmentID int64               `json:"appointment_id,omitempty"`
	RetryCount    int                 `json:"retry_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

// MessageSender — минимальный срез телеграм-сервиса, который нужен очереди.
type MessageSender interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
}

// NotifyWorker доставляет задачи с экспоненциальными ретраями. Очередь
// живёт в Redis; при его недоступности — во внутреннем канале процесса.
type NotifyWorker struct {
	telegram      MessageSender
	journal       domain.JournalWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan NotifyTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewNotifyWorker(telegram MessageSender, journal domain.JournalWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &NotifyWorker{
		telegram:      telegram,
		journal:       journal,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan NotifyTask, 128),
		redisQueueKey: "notify:queue",
		deadLetterKey: "notify:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

func (w *NotifyWorker) EnqueueMessage(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return errors.New("chat id is required")
	}
	return w.enqueue(ctx, NotifyTask{
		Type:      TaskSendMessage,
		ChatID:    chatID,
		Text:      text,
		CreatedAt: time.Now(),
	})
}

func (w *NotifyWorker) EnqueueJournalAppend(ctx context.Context, a *models.Appointment) error {
	if a == nil || a.ID == 0 {
		return errors.New("appointment is required")
	}
	return w.enqueue(ctx, NotifyTask{
		Type:        TaskJournalAppend,
		Appointment: a,
		CreatedAt:   time.Now(),
	})
}

func (w *NotifyWorker) EnqueueJournalCancel(ctx context.Context, appointmentID int64) error {
	if appointmentID == 0 {
		return errors.New("appointment id is required")
	}
	return w.enqueue(ctx, NotifyTask{
		Type:          TaskJournalCancel,
		AppointmentID: appointmentID,
		CreatedAt:     time.Now(),
	})
}

func (w *NotifyWorker) enqueue(ctx context.Context, task NotifyTask) error {
	// Redis даёт очереди пережить рестарт процесса
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("notify: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("notify queue is full")
	}
}

// Start запускает основной цикл; останавливается по ctx.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notify worker started")
	defer w.logger.Info().Msg("notify worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotifyWorker) tryLocalQueue() (NotifyTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return NotifyTask{}, false
	}
}

func (w *NotifyWorker) tryRedis(ctx context.Context) (NotifyTask, bool) {
	if w.redis == nil {
		return NotifyTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return NotifyTask{}, false
		}
		w.logger.Error().Err(err).Msg("notify: redis BRPOP error")
		return NotifyTask{}, false
	}
	if len(res) != 2 {
		return NotifyTask{}, false
	}
	var task NotifyTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("notify: decode redis task")
		return NotifyTask{}, false
	}
	return task, true
}

func (w *NotifyWorker) processTask(ctx context.Context, task NotifyTask) {
	if err := w.handleTask(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
	}
}

func (w *NotifyWorker) handleTask(ctx context.Context, task NotifyTask) error {
	switch task.Type {
	case TaskSendMessage:
		if w.telegram == nil {
			return errors.New("telegram sender is not configured")
		}
		_, err := w.telegram.SendMessage(task.ChatID, task.Text)
		return err
	case TaskJournalAppend:
		if w.journal == nil {
			return nil // журнал выключен
		}
		if task.Appointment == nil {
			return errors.New("appointment payload missing")
		}
		return w.journal.AppendAppointment(ctx, task.Appointment)
	case TaskJournalCancel:
		if w.journal == nil {
			return nil
		}
		if task.AppointmentID == 0 {
			return errors.New("appointment id missing")
		}
		return w.journal.MarkCancelled(ctx, task.AppointmentID)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (w *NotifyWorker) retryOrFail(ctx context.Context, task NotifyTask, cause error) {
	task.RetryCount++
	if task.RetryCount >= w.retryPolicy.MaxRetries {
		w.logger.Error().Err(cause).
			Str("task_type", task.Type).
			Int("retries", task.RetryCount).
			Msg("notify: task failed permanently")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.RetryCount)
	w.logger.Warn().Err(cause).
		Str("task_type", task.Type).
		Dur("delay", delay).
		Msg("notify: task failed, will retry")

	time.AfterFunc(delay, func() {
		select {
		case w.queue <- task:
		default:
			w.logger.Error().Str("task_type", task.Type).Msg("notify: queue full, task dropped")
		}
	})
}

func (w *NotifyWorker) pushRedis(ctx context.Context, task NotifyTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, task NotifyTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Msg("notify: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("notify: deadletter push")
	}
}
