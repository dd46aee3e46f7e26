package scheduler

import (
	"context"
	"fmt"
	"time"

	"figaro/internal/domain"
	"figaro/internal/events"
	"figaro/internal/models"

	"github.com/rs/zerolog"
)

// Scheduler периодически проходит по сегодняшним записям и рассылает
// напоминания за 60 и 30 минут, а после визита — запрос отзыва.
type Scheduler struct {
	repo          domain.Repository
	notify        domain.NotifyWorker
	states        domain.StateManager
	events        domain.EventPublisher
	sweepInterval time.Duration
	feedbackDelay time.Duration
	metrics       *Metrics
	logger        zerolog.Logger

	// now подменяется в тестах
	now func() time.Time
}

func New(repo domain.Repository, notify domain.NotifyWorker, states domain.StateManager, publisher domain.EventPublisher, sweepInterval, feedbackDelay time.Duration, logger zerolog.Logger) *Scheduler {
	if sweepInterval <= 0 {
		sweepInterval = time.Duration(models.DefaultSweepIntervalMinutes) * time.Minute
	}
	if feedbackDelay <= 0 {
		feedbackDelay = models.FeedbackDelayHours * time.Hour
	}

	return &Scheduler{
		repo:          repo,
		notify:        notify,
		states:        states,
		events:        publisher,
		sweepInterval: sweepInterval,
		feedbackDelay: feedbackDelay,
		metrics:       NewMetrics(),
		logger:        logger.With().Str("component", "scheduler").Logger(),
		now:           time.Now,
	}
}

// Start blocks until ctx is cancelled, sweeping on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("sweep_interval", s.sweepInterval).Msg("scheduler started")

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход: напоминания, затем отзывы.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now()
	s.sweepReminders(ctx, now)
	s.sweepFeedback(ctx, now)
}

func (s *Scheduler) sweepReminders(ctx context.Context, now time.Time) {
	pending, err := s.repo.PendingReminders(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("reminders: load pending failed")
		return
	}

	for _, a := range pending {
		until := a.StartTime().Sub(now)

		switch {
		case until > 45*time.Minute && until <= 60*time.Minute && !a.Reminder60:
			s.sendReminder(ctx, a, "60m")
		case until > 20*time.Minute && until <= 40*time.Minute && !a.Reminder30:
			s.sendReminder(ctx, a, "30m")
		}
	}
}

// sendReminder ставит флаг сразу после попытки отправки, даже если она
// провалилась: повторное напоминание хуже пропущенного.
func (s *Scheduler) sendReminder(ctx context.Context, a *models.Appointment, kind string) {
	if a.ChatID != 0 {
		text := reminderText(a, kind)
		if err := s.notify.EnqueueMessage(ctx, a.ChatID, text); err != nil {
			s.metrics.RemindersFailed.WithLabelValues(kind).Inc()
			s.logger.Error().Err(err).Int64("appointment_id", a.ID).Str("kind", kind).Msg("reminder: enqueue failed")
		} else {
			s.metrics.RemindersSent.WithLabelValues(kind).Inc()
		}
	}

	var markErr error
	switch kind {
	case "60m":
		markErr = s.repo.MarkReminder60(ctx, a.ID)
	case "30m":
		markErr = s.repo.MarkReminder30(ctx, a.ID)
	}
	if markErr != nil {
		s.logger.Error().Err(markErr).Int64("appointment_id", a.ID).Str("kind", kind).Msg("reminder: mark failed")
		return
	}

	if s.events != nil {
		payload := events.AppointmentEventPayload{
			AppointmentID: a.ID,
			CustomerName:  a.CustomerName,
			ChatID:        a.ChatID,
			Date:          a.Date,
			Hour:          a.Hour,
			Status:        a.Status,
			Kind:          kind,
		}
		if err := s.events.PublishJSON(events.EventReminderSent, payload); err != nil {
			s.logger.Error().Err(err).Msg("reminder: publish event failed")
		}
	}
}

func (s *Scheduler) sweepFeedback(ctx context.Context, now time.Time) {
	// Отзыв просим не раньше, чем через feedbackDelay после начала слота
	cutoff := now.Add(-s.feedbackDelay)
	if cutoff.Day() != now.Day() || cutoff.Month() != now.Month() || cutoff.Year() != now.Year() {
		// Граница суток: самые ранние слоты ещё не созрели
		return
	}

	pending, err := s.repo.PendingFeedback(ctx, now, cutoff.Hour())
	if err != nil {
		s.logger.Error().Err(err).Msg("feedback: load pending failed")
		return
	}

	for _, a := range pending {
		if a.StartTime().After(cutoff) {
			continue
		}
		s.requestFeedback(ctx, a)
	}
}

func (s *Scheduler) requestFeedback(ctx context.Context, a *models.Appointment) {
	// Записи с сайта без чата пропускаем, но флаг ставим, чтобы не
	// перебирать их на каждом проходе
	if a.ChatID != 0 {
		text := fmt.Sprintf("Спасибо, что выбрали нас, %s! Оцените визит от 1 до 5.", a.CustomerName)
		if err := s.notify.EnqueueMessage(ctx, a.ChatID, text); err != nil {
			s.metrics.FeedbackFailed.Inc()
			s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("feedback: enqueue failed")
		} else {
			s.metrics.FeedbackRequested.Inc()
		}

		if s.states != nil {
			data := map[string]interface{}{"appointment_id": a.ID}
			if err := s.states.SetUserState(ctx, a.ChatID, models.StepAwaitingFeedback, data); err != nil {
				s.logger.Error().Err(err).Int64("chat_id", a.ChatID).Msg("feedback: seed session failed")
			}
		}
	}

	if err := s.repo.MarkFeedbackRequested(ctx, a.ID); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", a.ID).Msg("feedback: mark failed")
		return
	}

	if s.events != nil {
		payload := events.AppointmentEventPayload{
			AppointmentID: a.ID,
			CustomerName:  a.CustomerName,
			ChatID:        a.ChatID,
			Date:          a.Date,
			Hour:          a.Hour,
			Status:        a.Status,
		}
		if err := s.events.PublishJSON(events.EventFeedbackRequested, payload); err != nil {
			s.logger.Error().Err(err).Msg("feedback: publish event failed")
		}
	}
}

func reminderText(a *models.Appointment, kind string) string {
	minutes := "60"
	if kind == "30m" {
		minutes = "30"
	}
	return fmt.Sprintf("Напоминаем: через %s минут ждём вас в барбершопе, %s. Запись на %s.",
		minutes, a.CustomerName, a.HourLabel())
}
