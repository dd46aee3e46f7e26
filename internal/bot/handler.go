package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"figaro/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	msgHelp = "Я бот барбершопа. Напишите «записаться», чтобы выбрать мастера и время, " +
		"«мои записи» — посмотреть ближайшие визиты, «отмена» — прервать оформление."
	msgCancelled    = "Хорошо, отменил. Возвращайтесь, когда будете готовы."
	msgSessionGone  = "Кажется, мы начали заново. Напишите «записаться», чтобы оформить визит."
	msgAskName      = "Как вас записать? Напишите имя и, если хотите, фамилию."
	msgNameTooShort = "Имя слишком короткое. Напишите хотя бы два символа."
)

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	if b.metrics != nil {
		b.metrics.MessagesProcessed.Inc()
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if b.isAdmin(update.Message.From.ID) && strings.HasPrefix(text, "/") {
		if b.handleAdminCommand(ctx, update, text) {
			return
		}
	}

	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to load session")
	}

	// Отмена работает из любого шага и проверяется до обработчиков
	if isCancelKeyword(text) {
		if state != nil {
			if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
				b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to clear session")
			}
		}
		b.sendPlain(chatID, msgCancelled)
		return
	}

	if state == nil {
		b.handleIdle(ctx, update, text)
		return
	}

	switch state.CurrentStep {
	case models.StepAwaitingBarber:
		b.handleBarberStep(ctx, chatID, text)
	case models.StepAwaitingDate:
		b.handleDateStep(ctx, chatID, state, text)
	case models.StepAwaitingHour:
		b.handleHourStep(ctx, chatID, state, text)
	case models.StepAwaitingName:
		b.handleNameStep(ctx, chatID, state, text)
	case models.StepConfirmation:
		b.handleConfirmationStep(ctx, chatID, state, text)
	case models.StepAwaitingFeedback:
		b.handleFeedbackStep(ctx, chatID, state, text)
	default:
		b.logger.Warn().Str("step", state.CurrentStep).Int64("chat_id", chatID).Msg("Unknown session step, resetting")
		b.stateService.ClearUserState(ctx, chatID)
		b.sendPlain(chatID, msgSessionGone)
	}
}

func (b *Bot) handleIdle(ctx context.Context, update tgbotapi.Update, text string) {
	chatID := update.Message.Chat.ID

	lower := strings.ToLower(text)
	switch {
	case isBookingKeyword(text):
		b.startBooking(ctx, chatID)
	case strings.EqualFold(text, "/start"):
		b.sendWithKeyboard(chatID,
			"Здравствуйте! Это бот записи в барбершоп «Фигаро». Напишите «записаться» или выберите кнопку ниже.",
			mainKeyboard())
	case strings.EqualFold(text, "/my") || lower == "мои записи" || lower == "📋 мои записи":
		b.showUpcoming(ctx, chatID)
	case strings.HasPrefix(lower, "отменить запись"):
		b.cancelAppointment(ctx, chatID, strings.TrimSpace(text[len("отменить запись"):]))
	default:
		b.sendWithKeyboard(chatID, msgHelp, mainKeyboard())
	}
}

func (b *Bot) startBooking(ctx context.Context, chatID int64) {
	barbers := b.catalog.ActiveBarbers()
	if len(barbers) == 0 {
		b.sendPlain(chatID, "Сейчас нет доступных мастеров. Попробуйте позже.")
		return
	}
	if len(b.catalog.ActiveServices()) == 0 {
		b.sendPlain(chatID, "Запись временно недоступна. Попробуйте позже.")
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StepAwaitingBarber, nil); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to start booking session")
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.sendWithKeyboard(chatID, "К какому мастеру записать?", barbersKeyboard(barbers))
}

func (b *Bot) handleBarberStep(ctx context.Context, chatID int64, text string) {
	var barberID int64
	var barberName string

	if isAnyBarberKeyword(text) {
		barberID = models.BarberAny
		barberName = "любой мастер"
	} else {
		barber, err := b.catalog.BarberByName(text)
		if err != nil {
			names := barberNames(b.catalog.ActiveBarbers())
			b.sendWithKeyboard(chatID,
				"Не нашёл такого мастера. Выберите из списка: "+strings.Join(names, ", "),
				barbersKeyboard(b.catalog.ActiveBarbers()))
			return
		}
		barberID = barber.ID
		barberName = barber.Name
	}

	// Услугу диалог не спрашивает: записываем на базовую, первую по справочнику
	services := b.catalog.ActiveServices()
	if len(services) == 0 {
		b.sendPlain(chatID, "Запись временно недоступна. Попробуйте позже.")
		return
	}
	svc := services[0]

	data := map[string]interface{}{
		"barber_id":    barberID,
		"barber_name":  barberName,
		"service_id":   svc.ID,
		"service_name": svc.Name,
	}
	if err := b.stateService.SetUserState(ctx, chatID, models.StepAwaitingDate, data); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.sendWithKeyboard(chatID,
		"На какой день? Можно «сегодня», «завтра», дату вида 02.09.2026 или номер из списка:\n"+
			datesPrompt(time.Now()),
		datesKeyboard(time.Now()))
}

func (b *Bot) handleDateStep(ctx context.Context, chatID int64, state *models.UserState, text string) {
	date, err := parseDateInput(text, time.Now())
	if err != nil {
		b.sendPlain(chatID, "Не понял дату. Напишите «сегодня», «завтра», 02.09.2026 или номер из списка.")
		return
	}

	if err := b.bookingService.ValidateDate(ctx, date); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	barberID := state.GetInt64("barber_id")
	slots, err := b.bookingService.AvailableSlots(ctx, date, barberID)
	if err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	if len(slots) == 0 {
		b.sendPlain(chatID, "На этот день свободных окон нет. Попробуйте другую дату.")
		return
	}

	state.TempData["date"] = date.Format("2006-01-02")
	if err := b.stateService.SetUserState(ctx, chatID, models.StepAwaitingHour, state.TempData); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.sendWithKeyboard(chatID, "Свободное время:", hoursKeyboard(slots))
}

func (b *Bot) handleHourStep(ctx context.Context, chatID int64, state *models.UserState, text string) {
	hour, err := parseHourInput(text)
	if err != nil {
		b.sendPlain(chatID, "Напишите время в формате 14:00.")
		return
	}

	date := state.GetDate("date")
	barberID := state.GetInt64("barber_id")

	slots, err := b.bookingService.AvailableSlots(ctx, date, barberID)
	if err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	if !containsHour(slots, hour) {
		b.sendWithKeyboard(chatID, "Это время уже занято. Выберите из свободных:", hoursKeyboard(slots))
		return
	}

	state.TempData["hour"] = hour
	if err := b.stateService.SetUserState(ctx, chatID, models.StepAwaitingName, state.TempData); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.sendPlain(chatID, msgAskName)
}

func (b *Bot) handleNameStep(ctx context.Context, chatID int64, state *models.UserState, text string) {
	name := strings.TrimSpace(text)
	if len([]rune(name)) < 2 {
		b.sendPlain(chatID, msgNameTooShort)
		return
	}

	state.TempData["name"] = name
	if err := b.stateService.SetUserState(ctx, chatID, models.StepConfirmation, state.TempData); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	date := state.GetDate("date")
	summary := fmt.Sprintf("Проверьте запись:\n— Мастер: %s\n— Услуга: %s\n— Дата: %s\n— Время: %s\n— Имя: %s\n\nВсё верно?",
		state.GetString("barber_name"),
		state.GetString("service_name"),
		date.Format("02.01.2006"),
		models.FormatHour(state.GetInt("hour")),
		name)
	b.sendWithKeyboard(chatID, summary, confirmKeyboard())
}

func (b *Bot) handleConfirmationStep(ctx context.Context, chatID int64, state *models.UserState, text string) {
	if !isConfirmKeyword(text) {
		b.sendWithKeyboard(chatID, "Ответьте «да», чтобы подтвердить, или «отмена».", confirmKeyboard())
		return
	}

	req := &models.BookingRequest{
		CustomerName: state.GetString("name"),
		ChatID:       chatID,
		Date:         state.GetDate("date"),
		Hour:         state.GetInt("hour"),
		ServiceID:    state.GetInt64("service_id"),
		BarberID:     state.GetInt64("barber_id"),
		CreatedFrom:  models.CreatedFromChat,
	}

	appointment, err := b.bookingService.Book(ctx, req)

	// Сессия завершается и при успехе, и при отказе
	if clearErr := b.stateService.ClearUserState(ctx, chatID); clearErr != nil {
		b.logger.Error().Err(clearErr).Int64("chat_id", chatID).Msg("Failed to clear session")
	}

	if err != nil {
		if b.metrics != nil {
			b.metrics.BookingsFailed.Inc()
		}
		b.sendWithKeyboard(chatID, b.getErrorMessage(err), mainKeyboard())
		return
	}

	if b.metrics != nil {
		b.metrics.BookingsCreated.WithLabelValues(appointment.BarberName).Inc()
	}

	b.sendWithKeyboard(chatID, fmt.Sprintf(
		"Записал! Ждём вас %s в %s, мастер — %s. За час пришлём напоминание.",
		appointment.Date.Format("02.01.2006"),
		appointment.HourLabel(),
		appointment.BarberName),
		mainKeyboard())
}

func (b *Bot) handleFeedbackStep(ctx context.Context, chatID int64, state *models.UserState, text string) {
	rating, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || rating < 1 || rating > 5 {
		b.sendPlain(chatID, "Оцените визит числом от 1 до 5.")
		return
	}

	appointmentID := state.GetInt64("appointment_id")
	if appointmentID == 0 {
		b.stateService.ClearUserState(ctx, chatID)
		b.sendPlain(chatID, msgSessionGone)
		return
	}

	if err := b.bookingService.SaveRating(ctx, appointmentID, rating); err != nil {
		b.logger.Error().Err(err).Int64("appointment_id", appointmentID).Msg("Failed to save rating")
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.stateService.ClearUserState(ctx, chatID)
	if rating >= 4 {
		b.sendPlain(chatID, "Спасибо за оценку! Будем рады видеть вас снова.")
	} else {
		b.sendPlain(chatID, "Спасибо за честность. Передадим мастеру, постараемся стать лучше.")
	}
}

func (b *Bot) showUpcoming(ctx context.Context, chatID int64) {
	appointments, err := b.bookingService.UpcomingByChat(ctx, chatID)
	if err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	if len(appointments) == 0 {
		b.sendWithKeyboard(chatID, "У вас нет предстоящих записей.", mainKeyboard())
		return
	}

	var sb strings.Builder
	sb.WriteString("Ваши записи:\n")
	for _, a := range appointments {
		fmt.Fprintf(&sb, "— %s %s, мастер %s (№%d)\n",
			a.Date.Format("02.01.2006"), a.HourLabel(), a.BarberName, a.ID)
	}
	sb.WriteString("\nЧтобы отменить запись, напишите «отменить запись <номер>».")
	b.sendPlain(chatID, sb.String())
}

func (b *Bot) cancelAppointment(ctx context.Context, chatID int64, idText string) {
	id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
	if err != nil {
		b.sendPlain(chatID, "Укажите номер записи, например: отменить запись 12.")
		return
	}

	a, err := b.bookingService.GetAppointment(ctx, id)
	if err != nil {
		b.sendPlain(chatID, "Не нашёл такую запись.")
		return
	}
	// Чужие записи из чата не отменяются
	if a.ChatID != chatID {
		b.sendPlain(chatID, "Не нашёл такую запись.")
		return
	}

	if err := b.bookingService.Cancel(ctx, id); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}

	b.sendPlain(chatID, fmt.Sprintf("Запись на %s %s отменена.",
		a.Date.Format("02.01.2006"), a.HourLabel()))
}

// --- Распознавание ключевых слов ---

func isCancelKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "/cancel" || t == "отмена" || t == "cancel" || t == "❌ отмена"
}

func isBookingKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "записаться" || t == "book" || t == "/book" || t == "✂️ записаться"
}

func isAnyBarberKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "любой" || t == "any" || t == "любой мастер"
}

func isConfirmKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "да" || t == "yes" || t == "confirm" || t == "✅ да"
}

func containsHour(slots []int, hour int) bool {
	for _, s := range slots {
		if s == hour {
			return true
		}
	}
	return false
}

func barberNames(barbers []models.Barber) []string {
	names := make([]string, 0, len(barbers))
	for _, barber := range barbers {
		names = append(names, barber.Name)
	}
	return names
}
