package bot

import (
	"errors"

	"figaro/internal/database"
	"figaro/internal/service"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var partial *service.PartialBookingError
	if errors.As(err, &partial) {
		return "⚠️ Получилось записать только первый час — второй уже занят. " +
			"Первая запись сохранена, для второго часа выберите другое время."
	}

	if errors.Is(err, database.ErrSlotTaken) {
		return "⚠️ Увы, это время только что заняли. Выберите другое."
	}

	if errors.Is(err, database.ErrPastDate) {
		return "⚠️ Это время уже прошло. Выберите дату и час в будущем."
	}

	if errors.Is(err, database.ErrDateTooFar) {
		return "⚠️ Так далеко вперёд запись пока не открыта. Выберите более раннюю дату."
	}

	if errors.Is(err, database.ErrClosedDay) {
		return "⚠️ В этот день барбершоп не работает. Выберите другую дату."
	}

	if errors.Is(err, database.ErrNotFound) {
		return "⚠️ Не нашёл такую запись."
	}

	return "❌ Что-то пошло не так. Попробуйте позже или позвоните нам."
}
