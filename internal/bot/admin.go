package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAdminCommand обрабатывает служебные команды. Возвращает true,
// если текст был командой администратора.
func (b *Bot) handleAdminCommand(ctx context.Context, update tgbotapi.Update, text string) bool {
	chatID := update.Message.Chat.ID
	cmd, args := splitCommand(text)

	switch cmd {
	case "/broadcast":
		b.handleBroadcastCommand(ctx, chatID, args)
	case "/schedule":
		b.handleScheduleCommand(ctx, chatID, args)
	case "/export":
		b.handleExportCommand(ctx, chatID)
	case "/close":
		b.handleCloseCommand(ctx, chatID, args)
	case "/open":
		b.handleOpenCommand(ctx, chatID, args)
	case "/help_admin":
		b.sendPlain(chatID, "Команды:\n"+
			"/broadcast <all|today|future> <текст> — рассылка\n"+
			"/schedule [дата] — записи на день\n"+
			"/export — расписание недели в Excel\n"+
			"/close <дата> [причина] — закрыть день\n"+
			"/open <дата> — открыть день")
	default:
		return false
	}
	return true
}

func (b *Bot) handleBroadcastCommand(ctx context.Context, chatID int64, args string) {
	if b.broadcaster == nil {
		b.sendPlain(chatID, "Рассылки выключены в конфигурации.")
		return
	}

	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		b.sendPlain(chatID, "Формат: /broadcast <all|today|future> <текст>")
		return
	}
	audience, text := parts[0], strings.TrimSpace(parts[1])

	total, err := b.broadcaster.Dispatch(ctx, text, audience)
	if err != nil {
		b.sendPlain(chatID, "Не удалось запустить рассылку: "+err.Error())
		return
	}

	b.sendPlain(chatID, fmt.Sprintf("Рассылка запущена, адресатов: %d. "+
		"Сообщения уходят постепенно, это займёт время.", total))
}

func (b *Bot) handleScheduleCommand(ctx context.Context, chatID int64, args string) {
	date := time.Now()
	if args != "" {
		parsed, err := parseDateInput(args, time.Now())
		if err != nil {
			b.sendPlain(chatID, "Не понял дату. Пример: /schedule 02.09.2026")
			return
		}
		date = parsed
	}

	appointments, err := b.bookingService.AppointmentsByDateRange(ctx, date, date)
	if err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	if len(appointments) == 0 {
		b.sendPlain(chatID, "На "+date.Format("02.01.2006")+" записей нет.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Записи на %s:\n", date.Format("02.01.2006"))
	for _, a := range appointments {
		marker := "✅"
		if a.Status != "confirmed" {
			marker = "❌"
		}
		fmt.Fprintf(&sb, "%s %s %s — %s (%s)\n", marker, a.HourLabel(), a.BarberName, a.CustomerName, a.Phone)
	}
	b.sendPlain(chatID, sb.String())
}

func (b *Bot) handleExportCommand(ctx context.Context, chatID int64) {
	start := time.Now()
	end := start.AddDate(0, 0, 6)

	path, err := b.exportToExcel(ctx, start, end)
	if err != nil {
		b.logger.Error().Err(err).Msg("Export failed")
		b.sendPlain(chatID, "Не получилось собрать файл. Попробуйте позже.")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = fmt.Sprintf("Расписание %s — %s", start.Format("02.01"), end.Format("02.01"))
	if _, err := b.tgService.Send(doc); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send export")
	}
}

func (b *Bot) handleCloseCommand(ctx context.Context, chatID int64, args string) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		b.sendPlain(chatID, "Формат: /close <дата> [причина]")
		return
	}

	date, err := parseDateInput(parts[0], time.Now())
	if err != nil {
		b.sendPlain(chatID, "Не понял дату. Пример: /close 02.09.2026 санитарный день")
		return
	}

	reason := ""
	if len(parts) == 2 {
		reason = parts[1]
	}

	if err := b.closeDate(ctx, date, reason); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	b.sendPlain(chatID, "День "+date.Format("02.01.2006")+" закрыт для записи.")
}

func (b *Bot) handleOpenCommand(ctx context.Context, chatID int64, args string) {
	date, err := parseDateInput(strings.TrimSpace(args), time.Now())
	if err != nil {
		b.sendPlain(chatID, "Не понял дату. Пример: /open 02.09.2026")
		return
	}

	if err := b.openDate(ctx, date); err != nil {
		b.sendPlain(chatID, b.getErrorMessage(err))
		return
	}
	b.sendPlain(chatID, "День "+date.Format("02.01.2006")+" снова открыт.")
}

func (b *Bot) closeDate(ctx context.Context, date time.Time, reason string) error {
	return b.repo.AddClosedDate(ctx, date, reason)
}

func (b *Bot) openDate(ctx context.Context, date time.Time) error {
	return b.repo.RemoveClosedDate(ctx, date)
}

func splitCommand(text string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	cmd := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return cmd, ""
	}
	return cmd, parts[1]
}
