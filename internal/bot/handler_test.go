package bot

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"figaro/internal/config"
	"figaro/internal/database"
	"figaro/internal/models"
	"figaro/internal/repository"
	"figaro/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	sent []string
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) SendMessage(_ int64, text string) (tgbotapi.Message, error) {
	f.sent = append(f.sent, text)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) SendMarkdown(_ int64, text string) (tgbotapi.Message, error) {
	f.sent = append(f.sent, text)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) SendWithKeyboard(_ int64, text string, _ tgbotapi.ReplyKeyboardMarkup) (tgbotapi.Message, error) {
	f.sent = append(f.sent, text)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeTelegram) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "figaro_test_bot"} }

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeBroadcaster struct {
	text     string
	audience string
	total    int
	err      error
}

func (f *fakeBroadcaster) Dispatch(_ context.Context, text, audience string) (int, error) {
	f.text = text
	f.audience = audience
	return f.total, f.err
}

type testEnv struct {
	bot *Bot
	tg  *fakeTelegram
	db  *database.DB
}

func newTestBot(t *testing.T) *testEnv {
	t.Helper()
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

	cfg := &config.Config{}
	cfg.Salon = config.SalonConfig{StartHour: 10, EndHour: 20, BookingRangeDays: 14}
	cfg.Bot.RateLimitMessages = 100
	cfg.Bot.RateLimitWindow = 60
	cfg.Admins = []int64{999}
	cfg.Exports.Path = t.TempDir()

	states := service.NewStateService(repository.NewMemoryStateRepository(time.Minute), &logger)
	booking := service.NewBookingService(db, nil, nil, cfg.Salon, &logger)

	catalog := service.NewCatalogService(db, &logger)
	require.NoError(t, catalog.Refresh(ctx))

	tg := &fakeTelegram{}
	b, err := NewBot(tg, cfg, states, booking, db, catalog, nil, nil, nil, &logger)
	require.NoError(t, err)

	return &testEnv{bot: b, tg: tg, db: db}
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID},
	}}
}

func (e *testEnv) send(ctx context.Context, chatID int64, text string) {
	e.bot.handleMessage(ctx, message(chatID, text))
}

func TestBookingFlow_HappyPath(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	assert.Contains(t, env.tg.last(), "мастеру")

	env.send(ctx, 100, "Сергей")
	assert.Contains(t, env.tg.last(), "какой день")

	env.send(ctx, 100, "завтра")
	assert.Contains(t, env.tg.last(), "Свободное время")

	env.send(ctx, 100, "12:00")
	assert.Contains(t, env.tg.last(), "Как вас записать")

	env.send(ctx, 100, "Пётр")
	assert.Contains(t, env.tg.last(), "Проверьте запись")
	assert.Contains(t, env.tg.last(), "Сергей")
	assert.Contains(t, env.tg.last(), "Мужская стрижка")
	assert.Contains(t, env.tg.last(), "12:00")

	env.send(ctx, 100, "да")
	assert.Contains(t, env.tg.last(), "Записал")

	// Слот действительно занят
	tomorrow := time.Now().AddDate(0, 0, 1)
	hours, err := env.db.BookedHours(ctx, tomorrow, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{12}, hours)

	// Диалог не спрашивает услугу, но запись получает базовую
	stored, err := env.db.GetAppointment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ServiceID)
	assert.Equal(t, "Мужская стрижка", stored.ServiceName)

	// Сессия уничтожена
	state, err := env.bot.stateService.GetUserState(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestBookingFlow_AnyBarber(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Любой мастер")
	env.send(ctx, 100, "завтра")
	env.send(ctx, 100, "15:00")
	env.send(ctx, 100, "Олег")
	env.send(ctx, 100, "да")

	assert.Contains(t, env.tg.last(), "Записал")
}

func TestBookingFlow_UnknownBarberReprompts(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Василий")

	assert.Contains(t, env.tg.last(), "Не нашёл такого мастера")
	assert.Contains(t, env.tg.last(), "Сергей")

	// Шаг не сдвинулся
	state, err := env.bot.stateService.GetUserState(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StepAwaitingBarber, state.CurrentStep)
}

func TestBookingFlow_CancelMidway(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Анна")
	env.send(ctx, 100, "отмена")

	assert.Contains(t, env.tg.last(), "отменил")

	state, err := env.bot.stateService.GetUserState(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestBookingFlow_SlotTakenAtHourStep(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()
	tomorrow := time.Now().AddDate(0, 0, 1)

	// Другой клиент уже занял 12:00 у Сергея
	taken := &models.Appointment{
		CustomerName: "Первый", Phone: "+7000", ChatID: 200,
		Date: tomorrow, Hour: 12, ServiceID: 1, BarberID: 1, BarberName: "Сергей",
		CreatedFrom: models.CreatedFromChat,
	}
	require.NoError(t, env.db.InsertAppointment(ctx, taken))

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Сергей")
	env.send(ctx, 100, "завтра")
	env.send(ctx, 100, "12:00")

	assert.Contains(t, env.tg.last(), "занято")

	state, err := env.bot.stateService.GetUserState(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StepAwaitingHour, state.CurrentStep)
}

func TestBookingFlow_NameTooShort(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Анна")
	env.send(ctx, 100, "завтра")
	env.send(ctx, 100, "11:00")
	env.send(ctx, 100, "Я")

	assert.Contains(t, env.tg.last(), "слишком короткое")
}

func TestBookingFlow_ConfirmationRequiresYes(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Анна")
	env.send(ctx, 100, "завтра")
	env.send(ctx, 100, "11:00")
	env.send(ctx, 100, "Олег")
	env.send(ctx, 100, "может быть")

	assert.Contains(t, env.tg.last(), "«да»")

	env.send(ctx, 100, "да")
	assert.Contains(t, env.tg.last(), "Записал")
}

func TestIdle_HelpText(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	env.send(ctx, 100, "привет")
	assert.Contains(t, env.tg.last(), "бот барбершопа")
}

func TestIdle_ShowUpcomingAndCancel(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()
	tomorrow := time.Now().AddDate(0, 0, 1)

	a := &models.Appointment{
		CustomerName: "Пётр", Phone: "+7000", ChatID: 100,
		Date: tomorrow, Hour: 12, ServiceID: 1, BarberID: 1, BarberName: "Сергей",
		CreatedFrom: models.CreatedFromChat,
	}
	require.NoError(t, env.db.InsertAppointment(ctx, a))

	env.send(ctx, 100, "мои записи")
	assert.Contains(t, env.tg.last(), "Сергей")

	env.send(ctx, 100, "отменить запись 1")
	assert.Contains(t, env.tg.last(), "отменена")

	stored, err := env.db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

func TestCancelAppointment_ForeignChatDenied(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()
	tomorrow := time.Now().AddDate(0, 0, 1)

	a := &models.Appointment{
		CustomerName: "Пётр", Phone: "+7000", ChatID: 200,
		Date: tomorrow, Hour: 12, ServiceID: 1, BarberID: 1,
		CreatedFrom: models.CreatedFromChat,
	}
	require.NoError(t, env.db.InsertAppointment(ctx, a))

	env.send(ctx, 100, "отменить запись 1")
	assert.Contains(t, env.tg.last(), "Не нашёл")

	stored, err := env.db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
}

func TestFeedbackStep_SavesRating(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	a := &models.Appointment{
		CustomerName: "Пётр", Phone: "+7000", ChatID: 100,
		Date: time.Now(), Hour: 12, ServiceID: 1, BarberID: 1,
		CreatedFrom: models.CreatedFromChat,
	}
	require.NoError(t, env.db.InsertAppointment(ctx, a))

	require.NoError(t, env.bot.stateService.SetUserState(ctx, 100, models.StepAwaitingFeedback,
		map[string]interface{}{"appointment_id": a.ID}))

	env.send(ctx, 100, "вчера было супер")
	assert.Contains(t, env.tg.last(), "от 1 до 5")

	env.send(ctx, 100, "5")
	assert.Contains(t, env.tg.last(), "Спасибо")

	stored, err := env.db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Rating)

	state, err := env.bot.stateService.GetUserState(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestAdmin_BroadcastCommand(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()

	bc := &fakeBroadcaster{total: 7}
	env.bot.broadcaster = bc

	// Не админ — команда не распознаётся как админская
	env.send(ctx, 100, "/broadcast all Скидки!")
	assert.Empty(t, bc.text)

	env.send(ctx, 999, "/broadcast all Скидки!")
	assert.Equal(t, "Скидки!", bc.text)
	assert.Equal(t, "all", bc.audience)
	assert.Contains(t, env.tg.last(), "адресатов: 7")
}

func TestAdmin_CloseAndOpenDay(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 3)

	env.send(ctx, 999, "/close "+date.Format("02.01.2006")+" санитарный день")
	assert.Contains(t, env.tg.last(), "закрыт")

	closed, err := env.db.IsClosedDate(ctx, date)
	require.NoError(t, err)
	assert.True(t, closed)

	// Клиент не может записаться в закрытый день
	env.send(ctx, 100, "записаться")
	env.send(ctx, 100, "Анна")
	env.send(ctx, 100, strings.ToLower(date.Format("02.01.2006")))
	assert.Contains(t, env.tg.last(), "не работает")

	env.send(ctx, 999, "/open "+date.Format("02.01.2006"))
	closed, err = env.db.IsClosedDate(ctx, date)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestAdmin_ScheduleCommand(t *testing.T) {
	env := newTestBot(t)
	ctx := context.Background()
	tomorrow := time.Now().AddDate(0, 0, 1)

	a := &models.Appointment{
		CustomerName: "Пётр", Phone: "+7000", ChatID: 100,
		Date: tomorrow, Hour: 12, ServiceID: 1, BarberID: 1, BarberName: "Сергей",
		CreatedFrom: models.CreatedFromChat,
	}
	require.NoError(t, env.db.InsertAppointment(ctx, a))

	env.send(ctx, 999, "/schedule "+tomorrow.Format("02.01.2006"))
	assert.Contains(t, env.tg.last(), "Пётр")
	assert.Contains(t, env.tg.last(), "12:00")
}

func TestProcessUpdate_RecoversFromPanic(t *testing.T) {
	env := newTestBot(t)

	// Сообщение без From вызвало бы панику глубже, recovery её гасит
	assert.NotPanics(t, func() {
		env.bot.withRecovery(func() { panic("boom") })
	})
}
