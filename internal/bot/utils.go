package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"figaro/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Сколько ближайших дат предлагаем кнопками
const quickDates = 7

var weekdayShort = map[time.Weekday]string{
	time.Monday:    "пн",
	time.Tuesday:   "вт",
	time.Wednesday: "ср",
	time.Thursday:  "чт",
	time.Friday:    "пт",
	time.Saturday:  "сб",
	time.Sunday:    "вс",
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, adminID := range b.config.Admins {
		if userID == adminID {
			return true
		}
	}
	return false
}

func (b *Bot) sendPlain(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) {
	if _, err := b.tgService.SendWithKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.sendPlain(chatID, text)
}

// --- Клавиатуры ---

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("✂️ Записаться"),
			tgbotapi.NewKeyboardButton("📋 Мои записи"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func barbersKeyboard(barbers []models.Barber) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(barbers); i += 2 {
		row := []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(barbers[i].Name)}
		if i+1 < len(barbers) {
			row = append(row, tgbotapi.NewKeyboardButton(barbers[i+1].Name))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("Любой мастер"),
		tgbotapi.NewKeyboardButton("❌ Отмена"),
	))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func datesKeyboard(now time.Time) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Сегодня"),
			tgbotapi.NewKeyboardButton("Завтра"),
		),
	}

	for day := 2; day < quickDates; day += 2 {
		row := []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(now.AddDate(0, 0, day).Format("02.01.2006")),
		}
		if day+1 < quickDates {
			row = append(row, tgbotapi.NewKeyboardButton(now.AddDate(0, 0, day+1).Format("02.01.2006")))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("❌ Отмена")))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// datesPrompt нумерует ближайшие даты, номер принимается как ответ.
func datesPrompt(now time.Time) string {
	var sb strings.Builder
	for i := 0; i < quickDates; i++ {
		d := now.AddDate(0, 0, i)
		fmt.Fprintf(&sb, "%d) %s (%s)\n", i+1, d.Format("02.01.2006"), weekdayShort[d.Weekday()])
	}
	return sb.String()
}

func hoursKeyboard(slots []int) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(slots); i += 3 {
		var row []tgbotapi.KeyboardButton
		for j := i; j < i+3 && j < len(slots); j++ {
			row = append(row, tgbotapi.NewKeyboardButton(models.FormatHour(slots[j])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("❌ Отмена")))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("✅ Да"),
			tgbotapi.NewKeyboardButton("❌ Отмена"),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// --- Разбор пользовательского ввода ---

// parseDateInput понимает «сегодня», «завтра», 02.01.2006, 2006-01-02
// и номер пункта из подсказки (1..7).
func parseDateInput(text string, now time.Time) (time.Time, error) {
	t := strings.ToLower(strings.TrimSpace(text))

	switch t {
	case "сегодня", "today":
		return dayOf(now), nil
	case "завтра", "tomorrow":
		return dayOf(now.AddDate(0, 0, 1)), nil
	}

	if n, err := strconv.Atoi(t); err == nil {
		if n < 1 || n > quickDates {
			return time.Time{}, fmt.Errorf("date option %d out of range", n)
		}
		return dayOf(now.AddDate(0, 0, n-1)), nil
	}

	// Локальная зона, иначе набранное «сегодня» западнее UTC уезжает во вчера
	if parsed, err := time.ParseInLocation("02.01.2006", t, time.Local); err == nil {
		return parsed, nil
	}
	if parsed, err := time.ParseInLocation("2006-01-02", t, time.Local); err == nil {
		return parsed, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date: %q", text)
}

// parseHourInput принимает «14:00», «14.00» и просто «14».
func parseHourInput(text string) (int, error) {
	t := strings.TrimSpace(text)
	t = strings.ReplaceAll(t, ".", ":")

	if idx := strings.Index(t, ":"); idx >= 0 {
		minutes := t[idx+1:]
		if minutes != "00" && minutes != "0" {
			return 0, fmt.Errorf("slots start on the hour")
		}
		t = t[:idx]
	}

	hour, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("unrecognized hour: %q", text)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour %d out of range", hour)
	}
	return hour, nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
