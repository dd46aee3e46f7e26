package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"figaro/internal/models"

	"github.com/xuri/excelize/v2"
)

// exportToExcel создает Excel файл с расписанием на период:
// строки — часы, колонки — даты, клетка — записи всех мастеров на этот час.
func (b *Bot) exportToExcel(ctx context.Context, startDate, endDate time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(b.config.Exports.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	appointments, err := b.bookingService.AppointmentsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting appointments: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Расписание"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	dateHeaders := b.writeDateHeaders(f, sheetName, startDate, endDate)
	hourRows := b.writeHourHeaders(f, sheetName)
	b.writeAppointmentData(f, sheetName, appointments, dateHeaders, hourRows)

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	for i := 'B'; i <= 'Z'; i++ {
		_ = f.SetColWidth(sheetName, string(i), string(i), 28)
	}

	lastCol := getLastColumn(len(dateHeaders) + 1)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(b.config.Exports.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	b.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (b *Bot) writeDateHeaders(f *excelize.File, sheetName string, startDate, endDate time.Time) map[string]int {
	col := 2
	currentDate := startDate
	dateHeaders := make(map[string]int)

	for !currentDate.After(endDate) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		label := fmt.Sprintf("%s (%s)", currentDate.Format("02.01"), weekdayShort[currentDate.Weekday()])
		_ = f.SetCellValue(sheetName, cell, label)
		dateHeaders[currentDate.Format("2006-01-02")] = col

		style, _ := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		col++
		currentDate = currentDate.AddDate(0, 0, 1)
	}
	return dateHeaders
}

// writeHourHeaders подписывает рабочие часы в первой колонке.
func (b *Bot) writeHourHeaders(f *excelize.File, sheetName string) map[int]int {
	hourRows := make(map[int]int)
	row := 3
	for hour := b.config.Salon.StartHour; hour < b.config.Salon.EndHour; hour++ {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, models.FormatHour(hour))

		style, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
			Font: &excelize.Font{Bold: true},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		hourRows[hour] = row
		row++
	}
	return hourRows
}

func (b *Bot) writeAppointmentData(
	f *excelize.File, sheetName string,
	appointments []*models.Appointment,
	dateHeaders map[string]int,
	hourRows map[int]int,
) {
	// Группируем по клетке (дата, час)
	type cellKey struct {
		date string
		hour int
	}
	byCell := make(map[cellKey][]*models.Appointment)
	for _, a := range appointments {
		key := cellKey{date: a.Date.Format("2006-01-02"), hour: a.Hour}
		byCell[key] = append(byCell[key], a)
	}

	for key, cellAppointments := range byCell {
		col, okCol := dateHeaders[key.date]
		row, okRow := hourRows[key.hour]
		if !okCol || !okRow {
			continue
		}

		var cellValue string
		confirmed := 0
		for _, a := range cellAppointments {
			icon := "✅"
			if a.Status == models.StatusCancelled {
				icon = "❌"
			} else {
				confirmed++
			}
			cellValue += fmt.Sprintf("%s %s: %s (%s)\n", icon, a.BarberName, a.CustomerName, a.Phone)
			if a.Notes != "" {
				cellValue += fmt.Sprintf("   💬 %s\n", a.Notes)
			}
		}

		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheetName, cell, cellValue)

		styleID, err := b.getCellStyle(f, confirmed)
		if err == nil {
			_ = f.SetCellStyle(sheetName, cell, cell, styleID)
		}
	}
}

// getCellStyle возвращает стиль ячейки: красный — все мастера заняты,
// зеленый — есть подтвержденные записи, белый — только отмены.
func (b *Bot) getCellStyle(f *excelize.File, confirmed int) (int, error) {
	fill := "#FFFFFF"
	switch {
	case confirmed > 0 && confirmed >= len(b.catalog.ActiveBarbers()):
		fill = "#FFC7CE"
	case confirmed > 0:
		fill = "#C6EFCE"
	}

	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}

// getLastColumn возвращает последнюю колонку для объединения ячеек
func getLastColumn(colCount int) string {
	// Базовые колонки A-Z
	if colCount <= 26 {
		return string(rune('A' + colCount - 1))
	}

	// Для большего количества колонок (AA, AB, etc.)
	firstChar := string(rune('A' + (colCount-1)/26 - 1))
	secondChar := string(rune('A' + (colCount-1)%26))
	return firstChar + secondChar
}
