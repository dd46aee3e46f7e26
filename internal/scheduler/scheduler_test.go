package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"figaro/internal/database"
	"figaro/internal/events"
	"figaro/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	chats    []int64
	err      error
}

func (f *fakeNotifier) EnqueueMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) EnqueueJournalAppend(_ context.Context, _ *models.Appointment) error {
	return nil
}

func (f *fakeNotifier) EnqueueJournalCancel(_ context.Context, _ int64) error {
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeStates struct {
	mu    sync.Mutex
	steps map[int64]string
	data  map[int64]map[string]interface{}
}

func newFakeStates() *fakeStates {
	return &fakeStates{steps: make(map[int64]string), data: make(map[int64]map[string]interface{})}
}

func (f *fakeStates) GetUserState(_ context.Context, chatID int64) (*models.UserState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step, ok := f.steps[chatID]
	if !ok {
		return nil, nil
	}
	return &models.UserState{ChatID: chatID, CurrentStep: step, TempData: f.data[chatID]}, nil
}

func (f *fakeStates) SetUserState(_ context.Context, chatID int64, step string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[chatID] = step
	f.data[chatID] = data
	return nil
}

func (f *fakeStates) ClearUserState(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.steps, chatID)
	delete(f.data, chatID)
	return nil
}

func (f *fakeStates) CheckRateLimit(_ context.Context, _ int64, _ int, _ time.Duration) (bool, error) {
	return true, nil
}

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *database.DB, *fakeNotifier, *fakeStates) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	notifier := &fakeNotifier{}
	states := newFakeStates()
	s := New(db, notifier, states, events.NewEventBus(), 5*time.Minute, 2*time.Hour, logger)
	s.now = func() time.Time { return now }
	return s, db, notifier, states
}

func insertAppointment(t *testing.T, db *database.DB, date time.Time, hour int, chatID int64) *models.Appointment {
	a := &models.Appointment{
		CustomerName: "Иван",
		Phone:        "+79990001122",
		ChatID:       chatID,
		Date:         date,
		Hour:         hour,
		ServiceID:    1,
		ServiceName:  "Мужская стрижка",
		BarberID:     1,
		BarberName:   "Сергей",
		CreatedFrom:  models.CreatedFromChat,
	}
	require.NoError(t, db.InsertAppointment(context.Background(), a))
	return a
}

func TestSweep_Reminder60(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	// 11:05, запись на 12:00 — до начала 55 минут
	now := date.Add(11*time.Hour + 5*time.Minute)

	s, db, notifier, _ := newTestScheduler(t, now)
	a := insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, int64(500), notifier.chats[0])
	assert.Contains(t, notifier.messages[0], "60 минут")

	stored, err := db.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reminder60)
	assert.False(t, stored.Reminder30)
}

func TestSweep_Reminder60_ExactlyOnce(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := date.Add(11*time.Hour + 5*time.Minute)

	s, db, notifier, _ := newTestScheduler(t, now)
	insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())
	s.Sweep(context.Background())
	s.Sweep(context.Background())

	assert.Equal(t, 1, notifier.count())
}

func TestSweep_Reminder30(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	// До начала 35 минут
	now := date.Add(11*time.Hour + 25*time.Minute)

	s, db, notifier, _ := newTestScheduler(t, now)
	a := insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())

	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.messages[0], "30 минут")

	stored, err := db.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reminder30)
}

func TestSweep_OutsideWindows(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
	}{
		{"TooEarly", date.Add(10 * time.Hour)},                    // 120 минут до начала
		{"GapBetweenWindows", date.Add(11*time.Hour + 15*time.Minute)}, // 45 минут: вне обоих окон
		{"TooLate", date.Add(11*time.Hour + 50*time.Minute)},      // 10 минут
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, db, notifier, _ := newTestScheduler(t, tc.now)
			insertAppointment(t, db, date, 12, 500)

			s.Sweep(context.Background())
			assert.Equal(t, 0, notifier.count())
		})
	}
}

func TestSweep_MarkedEvenIfSendFails(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := date.Add(11*time.Hour + 5*time.Minute)

	s, db, notifier, _ := newTestScheduler(t, now)
	notifier.err = errors.New("queue down")
	a := insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())

	// Попытка была одна, флаг стоит, повторов не будет
	stored, err := db.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reminder60)

	notifier.err = nil
	s.Sweep(context.Background())
	assert.Equal(t, 0, notifier.count())
}

func TestSweep_CancelledSkipped(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := date.Add(11*time.Hour + 5*time.Minute)

	s, db, notifier, _ := newTestScheduler(t, now)
	a := insertAppointment(t, db, date, 12, 500)
	require.NoError(t, db.UpdateAppointmentStatus(context.Background(), a.ID, models.StatusCancelled))

	s.Sweep(context.Background())
	assert.Equal(t, 0, notifier.count())
}

func TestSweep_Feedback(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	// 14:30 — запись на 12:00 началась 2.5 часа назад
	now := date.Add(14*time.Hour + 30*time.Minute)

	s, db, notifier, states := newTestScheduler(t, now)
	a := insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())

	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.messages[0], "Оцените")

	stored, err := db.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.FeedbackSent)

	// Планировщик посеял сессию ожидания оценки
	state, err := states.GetUserState(context.Background(), 500)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StepAwaitingFeedback, state.CurrentStep)
	assert.EqualValues(t, a.ID, state.TempData["appointment_id"])
}

func TestSweep_FeedbackTooSoon(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	// Через час после начала — рано
	now := date.Add(13 * time.Hour)

	s, db, notifier, _ := newTestScheduler(t, now)
	insertAppointment(t, db, date, 12, 500)

	s.Sweep(context.Background())
	assert.Equal(t, 0, notifier.count())
}

func TestSweep_FeedbackWebBookingNoChat(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := date.Add(14*time.Hour + 30*time.Minute)

	s, db, notifier, states := newTestScheduler(t, now)
	a := insertAppointment(t, db, date, 12, 0)

	s.Sweep(context.Background())

	// Сообщения нет, но флаг стоит — запись больше не всплывает
	assert.Equal(t, 0, notifier.count())
	stored, err := db.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.FeedbackSent)
	assert.Empty(t, states.steps)
}

func TestSweep_PublishesEvents(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := date.Add(11*time.Hour + 5*time.Minute)

	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	var reminders int
	bus.Subscribe(events.EventReminderSent, func(e *events.Event) error {
		reminders++
		return nil
	})

	notifier := &fakeNotifier{}
	s := New(db, notifier, newFakeStates(), bus, 5*time.Minute, 2*time.Hour, logger)
	s.now = func() time.Time { return now }

	insertAppointment(t, db, date, 12, 500)
	s.Sweep(context.Background())

	assert.Equal(t, 1, reminders)
}
