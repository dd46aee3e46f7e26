package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/events"
	"figaro/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBookingService(t *testing.T, salon config.SalonConfig) (*BookingService, *database.DB, *events.EventBus) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.SyncBarbers(ctx, []models.Barber{
		{ID: 1, Name: "Сергей", IsActive: true, SortOrder: 1},
		{ID: 2, Name: "Анна", IsActive: true, SortOrder: 2},
	}))
	require.NoError(t, db.SyncServices(ctx, []models.Service{
		{ID: 1, Name: "Мужская стрижка", Price: 1500, IsActive: true},
	}))

	bus := events.NewEventBus()
	svc := NewBookingService(db, bus, nil, salon, &logger)
	return svc, db, bus
}

func defaultSalon() config.SalonConfig {
	return config.SalonConfig{StartHour: 10, EndHour: 20, BookingRangeDays: 14}
}

func testRequest(date time.Time, hour int, barberID int64) *models.BookingRequest {
	return &models.BookingRequest{
		CustomerName: "Иван Петров",
		Phone:        "+79990001122",
		ChatID:       100,
		Date:         date,
		Hour:         hour,
		ServiceID:    1,
		BarberID:     barberID,
		CreatedFrom:  models.CreatedFromChat,
	}
}

func TestValidateDate(t *testing.T) {
	svc, db, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()

	t.Run("PastDate", func(t *testing.T) {
		err := svc.ValidateDate(ctx, time.Now().AddDate(0, 0, -1))
		assert.ErrorIs(t, err, database.ErrPastDate)
	})

	t.Run("TooFar", func(t *testing.T) {
		err := svc.ValidateDate(ctx, time.Now().AddDate(0, 0, 15))
		assert.ErrorIs(t, err, database.ErrDateTooFar)
	})

	t.Run("Today", func(t *testing.T) {
		assert.NoError(t, svc.ValidateDate(ctx, time.Now()))
	})

	t.Run("ClosedDate", func(t *testing.T) {
		date := time.Now().AddDate(0, 0, 2)
		require.NoError(t, db.AddClosedDate(ctx, date, "санитарный день"))

		err := svc.ValidateDate(ctx, date)
		assert.ErrorIs(t, err, database.ErrClosedDay)
	})

	t.Run("ClosedWeekday", func(t *testing.T) {
		tomorrow := time.Now().AddDate(0, 0, 1)
		salon := defaultSalon()
		salon.ClosedWeekDays = []int{int(tomorrow.Weekday())}
		closedSvc, _, _ := newTestBookingService(t, salon)

		err := closedSvc.ValidateDate(ctx, tomorrow)
		assert.ErrorIs(t, err, database.ErrClosedDay)
	})
}

func TestAvailableSlots(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	slots, err := svc.AvailableSlots(ctx, date, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, slots)

	_, err = svc.Book(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)

	slots, err = svc.AvailableSlots(ctx, date, 1)
	require.NoError(t, err)
	assert.NotContains(t, slots, 12)
	assert.Len(t, slots, 9)

	// У второго мастера 12:00 по-прежнему свободно
	slots, err = svc.AvailableSlots(ctx, date, 2)
	require.NoError(t, err)
	assert.Contains(t, slots, 12)
}

func TestAvailableSlots_AnyBarber(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	// Час занят у одного из двух мастеров — для "любого" он ещё доступен
	_, err := svc.Book(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)

	slots, err := svc.AvailableSlots(ctx, date, models.BarberAny)
	require.NoError(t, err)
	assert.Contains(t, slots, 12)

	// Заняты оба мастера — час пропадает
	_, err = svc.Book(ctx, testRequest(date, 12, 2))
	require.NoError(t, err)

	slots, err = svc.AvailableSlots(ctx, date, models.BarberAny)
	require.NoError(t, err)
	assert.NotContains(t, slots, 12)
}

func TestAvailableSlots_TodayPastHours(t *testing.T) {
	// Круглосуточный график, чтобы тест не зависел от времени запуска
	svc, _, _ := newTestBookingService(t, config.SalonConfig{StartHour: 0, EndHour: 24, BookingRangeDays: 14})
	ctx := context.Background()

	slots, err := svc.AvailableSlots(ctx, time.Now(), 1)
	require.NoError(t, err)
	assert.NotContains(t, slots, 0, "midnight slot has always started already")
	for _, h := range slots {
		assert.Greater(t, h, time.Now().Hour())
	}
}

func TestBook(t *testing.T) {
	svc, _, bus := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	var confirmed int
	bus.Subscribe(events.EventBookingConfirmed, func(_ *events.Event) error {
		confirmed++
		return nil
	})

	a, err := svc.Book(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, "Сергей", a.BarberName)
	assert.Equal(t, "Мужская стрижка", a.ServiceName)
	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 1, confirmed)

	// Повторная запись в тот же слот
	_, err = svc.Book(ctx, testRequest(date, 12, 1))
	assert.ErrorIs(t, err, database.ErrSlotTaken)
	assert.Equal(t, 1, confirmed, "losing attempt must not emit an event")
}

func TestBook_Validation(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	t.Run("HourOutsideWorkingHours", func(t *testing.T) {
		_, err := svc.Book(ctx, testRequest(date, 9, 1))
		assert.ErrorIs(t, err, ErrInvalidHour)

		_, err = svc.Book(ctx, testRequest(date, 20, 1))
		assert.ErrorIs(t, err, ErrInvalidHour)
	})

	t.Run("UnknownService", func(t *testing.T) {
		req := testRequest(date, 12, 1)
		req.ServiceID = 99
		_, err := svc.Book(ctx, req)
		assert.Error(t, err)
	})

	t.Run("UnknownBarber", func(t *testing.T) {
		_, err := svc.Book(ctx, testRequest(date, 12, 99))
		assert.Error(t, err)
	})
}

func TestBook_AnyBarber(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	// Первый мастер занят — запись уходит второму
	_, err := svc.Book(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)

	a, err := svc.Book(ctx, testRequest(date, 12, models.BarberAny))
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.BarberID)

	// Оба заняты
	_, err = svc.Book(ctx, testRequest(date, 12, models.BarberAny))
	assert.ErrorIs(t, err, database.ErrSlotTaken)
}

func TestBookDouble(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	appointments, err := svc.BookDouble(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, 12, appointments[0].Hour)
	assert.Equal(t, 13, appointments[1].Hour)
	assert.Equal(t, appointments[0].BarberID, appointments[1].BarberID)
}

func TestBookDouble_SecondHourTaken(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	// Занимаем 13:00 заранее
	_, err := svc.Book(ctx, testRequest(date, 13, 1))
	require.NoError(t, err)

	appointments, err := svc.BookDouble(ctx, testRequest(date, 12, 1))
	require.Error(t, err)

	var partial *PartialBookingError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 12, partial.Confirmed.Hour)
	assert.Equal(t, 13, partial.FailedHour)
	assert.ErrorIs(t, err, database.ErrSlotTaken)

	// Первый час остаётся подтверждённым
	require.Len(t, appointments, 1)
	got, err := svc.GetAppointment(ctx, appointments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}

func TestBookDouble_LastHour(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	// 19:00 — последний слот, пары 19+20 не существует
	_, err := svc.BookDouble(ctx, testRequest(date, 19, 1))
	assert.ErrorIs(t, err, ErrInvalidHour)
}

func TestCancel(t *testing.T) {
	svc, _, bus := newTestBookingService(t, defaultSalon())
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	var cancelled int
	bus.Subscribe(events.EventBookingCancelled, func(_ *events.Event) error {
		cancelled++
		return nil
	})

	a, err := svc.Book(ctx, testRequest(date, 12, 1))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, a.ID))
	assert.Equal(t, 1, cancelled)

	// Повторная отмена — no-op
	require.NoError(t, svc.Cancel(ctx, a.ID))
	assert.Equal(t, 1, cancelled)

	// Слот снова доступен
	slots, err := svc.AvailableSlots(ctx, date, 1)
	require.NoError(t, err)
	assert.Contains(t, slots, 12)

	// Отмена несуществующей записи
	err = svc.Cancel(ctx, 9999)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSaveRating_Validation(t *testing.T) {
	svc, _, _ := newTestBookingService(t, defaultSalon())
	ctx := context.Background()

	assert.Error(t, svc.SaveRating(ctx, 1, 0))
	assert.Error(t, svc.SaveRating(ctx, 1, 6))
}
