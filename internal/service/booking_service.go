package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/domain"
	"figaro/internal/events"
	"figaro/internal/models"

	"github.com/rs/zerolog"
)

var ErrInvalidHour = errors.New("hour is outside working hours")

// PartialBookingError возвращается, когда при двойной записи второй час
// оказался занят. Первый час остаётся подтверждённым.
type PartialBookingError struct {
	Confirmed  *models.Appointment
	FailedHour int
	Err        error
}

func (e *PartialBookingError) Error() string {
	return fmt.Sprintf("booked %s only, hour %s is taken: %v",
		e.Confirmed.HourLabel(), models.FormatHour(e.FailedHour), e.Err)
}

func (e *PartialBookingError) Unwrap() error {
	return e.Err
}

type BookingService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	notify   domain.NotifyWorker
	salon    config.SalonConfig
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, notify domain.NotifyWorker, salon config.SalonConfig, logger *zerolog.Logger) *BookingService {
	if salon.BookingRangeDays <= 0 {
		salon.BookingRangeDays = models.DefaultBookingRangeDays
	}
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		notify:   notify,
		salon:    salon,
		logger:   logger,
	}
}

// workingHours берёт настройки из базы, а при их отсутствии — из конфига.
func (s *BookingService) workingHours(ctx context.Context) (*models.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &models.Settings{
			StartHour:        s.salon.StartHour,
			EndHour:          s.salon.EndHour,
			BookingRangeDays: s.salon.BookingRangeDays,
			ClosedWeekDays:   s.salon.ClosedWeekDays,
		}
	}
	return settings, nil
}

func (s *BookingService) ValidateDate(ctx context.Context, date time.Time) error {
	settings, err := s.workingHours(ctx)
	if err != nil {
		return err
	}

	today := truncateToDay(time.Now())
	day := truncateToDay(date)

	if day.Before(today) {
		return database.ErrPastDate
	}

	maxDate := today.AddDate(0, 0, settings.BookingRangeDays)
	if day.After(maxDate) {
		return database.ErrDateTooFar
	}

	if settings.IsClosedWeekday(day.Weekday()) {
		return database.ErrClosedDay
	}

	closed, err := s.repo.IsClosedDate(ctx, day)
	if err != nil {
		return err
	}
	if closed {
		return database.ErrClosedDay
	}

	return nil
}

// AvailableSlots возвращает свободные часы на дату. Для сегодняшнего дня
// часы, которые уже начались, не предлагаются.
func (s *BookingService) AvailableSlots(ctx context.Context, date time.Time, barberID int64) ([]int, error) {
	if err := s.ValidateDate(ctx, date); err != nil {
		return nil, err
	}

	settings, err := s.workingHours(ctx)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.BookedHours(ctx, date, barberID)
	if err != nil {
		return nil, err
	}

	// Для "любого мастера" час занят, только когда заняты все мастера
	capacity := 1
	if barberID == models.BarberAny {
		barbers, err := s.repo.ListActiveBarbers(ctx)
		if err != nil {
			return nil, err
		}
		capacity = len(barbers)
		if capacity == 0 {
			return []int{}, nil
		}
	}

	bookedCount := make(map[int]int)
	for _, h := range booked {
		bookedCount[h]++
	}

	now := time.Now()
	isToday := truncateToDay(date).Equal(truncateToDay(now))

	slots := make([]int, 0, settings.EndHour-settings.StartHour)
	for hour := settings.StartHour; hour < settings.EndHour; hour++ {
		if isToday && hour <= now.Hour() {
			continue
		}
		if bookedCount[hour] >= capacity {
			continue
		}
		slots = append(slots, hour)
	}

	return slots, nil
}

func (s *BookingService) Book(ctx context.Context, req *models.BookingRequest) (*models.Appointment, error) {
	if err := s.ValidateDate(ctx, req.Date); err != nil {
		return nil, err
	}

	settings, err := s.workingHours(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateHour(settings, req.Date, req.Hour); err != nil {
		return nil, err
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("unknown service: %w", err)
	}

	appointment := &models.Appointment{
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		ChatID:       req.ChatID,
		Date:         truncateToDay(req.Date),
		Hour:         req.Hour,
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		CreatedFrom:  req.CreatedFrom,
		Notes:        req.Notes,
	}

	if req.BarberID == models.BarberAny {
		err = s.bookAnyBarber(ctx, appointment)
	} else {
		barber, berr := s.repo.GetBarberByID(ctx, req.BarberID)
		if berr != nil {
			return nil, fmt.Errorf("unknown barber: %w", berr)
		}
		appointment.BarberID = barber.ID
		appointment.BarberName = barber.Name
		err = s.repo.InsertAppointment(ctx, appointment)
	}
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingConfirmed, appointment, "")
	s.enqueueJournalAppend(ctx, appointment)

	s.logger.Info().
		Int64("appointment_id", appointment.ID).
		Str("date", appointment.Date.Format("2006-01-02")).
		Int("hour", appointment.Hour).
		Int64("barber_id", appointment.BarberID).
		Msg("appointment booked")

	return appointment, nil
}

// bookAnyBarber перебирает активных мастеров, пока вставка не пройдёт.
// Гонку за последнего свободного мастера разрешает уникальный индекс.
func (s *BookingService) bookAnyBarber(ctx context.Context, appointment *models.Appointment) error {
	barbers, err := s.repo.ListActiveBarbers(ctx)
	if err != nil {
		return err
	}

	for _, barber := range barbers {
		appointment.BarberID = barber.ID
		appointment.BarberName = barber.Name
		err = s.repo.InsertAppointment(ctx, appointment)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrSlotTaken) {
			return err
		}
	}

	return database.ErrSlotTaken
}

// BookDouble занимает два часа подряд. Если второй час занят, первый
// остаётся в силе, а вызывающий получает PartialBookingError.
func (s *BookingService) BookDouble(ctx context.Context, req *models.BookingRequest) ([]*models.Appointment, error) {
	settings, err := s.workingHours(ctx)
	if err != nil {
		return nil, err
	}
	if req.Hour+1 >= settings.EndHour {
		return nil, ErrInvalidHour
	}

	first, err := s.Book(ctx, req)
	if err != nil {
		return nil, err
	}

	second := *req
	second.Hour = req.Hour + 1
	// Оба часа должны достаться одному мастеру
	second.BarberID = first.BarberID

	secondAppointment, err := s.Book(ctx, &second)
	if err != nil {
		return []*models.Appointment{first}, &PartialBookingError{
			Confirmed:  first,
			FailedHour: second.Hour,
			Err:        err,
		}
	}

	return []*models.Appointment{first, secondAppointment}, nil
}

// Cancel переводит запись в cancelled и освобождает слот.
// Повторная отмена — no-op.
func (s *BookingService) Cancel(ctx context.Context, id int64) error {
	appointment, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	if appointment.Status == models.StatusCancelled {
		return nil
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, id, models.StatusCancelled); err != nil {
		return err
	}

	appointment.Status = models.StatusCancelled
	s.publishEvent(events.EventBookingCancelled, appointment, "")
	s.enqueueJournalCancel(ctx, id)

	s.logger.Info().Int64("appointment_id", id).Msg("appointment cancelled")
	return nil
}

func (s *BookingService) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *BookingService) UpcomingByChat(ctx context.Context, chatID int64) ([]*models.Appointment, error) {
	return s.repo.UpcomingByChat(ctx, chatID)
}

func (s *BookingService) AppointmentsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Appointment, error) {
	return s.repo.AppointmentsByDateRange(ctx, start, end)
}

func (s *BookingService) SaveRating(ctx context.Context, id int64, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	return s.repo.SaveRating(ctx, id, rating)
}

func (s *BookingService) validateHour(settings *models.Settings, date time.Time, hour int) error {
	if hour < settings.StartHour || hour >= settings.EndHour {
		return ErrInvalidHour
	}
	now := time.Now()
	if truncateToDay(date).Equal(truncateToDay(now)) && hour <= now.Hour() {
		return database.ErrPastDate
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, appointment *models.Appointment, kind string) {
	if s.eventBus == nil {
		return
	}

	payload := events.AppointmentEventPayload{
		AppointmentID: appointment.ID,
		CustomerName:  appointment.CustomerName,
		Phone:         appointment.Phone,
		ChatID:        appointment.ChatID,
		BarberID:      appointment.BarberID,
		BarberName:    appointment.BarberName,
		Date:          appointment.Date,
		Hour:          appointment.Hour,
		Status:        appointment.Status,
		Kind:          kind,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("appointment_id", appointment.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueJournalAppend(ctx context.Context, appointment *models.Appointment) {
	if s.notify == nil {
		return
	}
	if err := s.notify.EnqueueJournalAppend(ctx, appointment); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", appointment.ID).Msg("journal enqueue error")
	}
}

func (s *BookingService) enqueueJournalCancel(ctx context.Context, id int64) {
	if s.notify == nil {
		return
	}
	if err := s.notify.EnqueueJournalCancel(ctx, id); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", id).Msg("journal enqueue error")
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
