package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"figaro/internal/config"
	"figaro/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrRowNotFound возвращается, когда запись с нужным ID не найдена в журнале.
var ErrRowNotFound = errors.New("journal row not found")

// JournalService ведёт онлайн-журнал записей в Google Sheets.
// Каждая запись — одна строка, колонка A содержит ID записи.
type JournalService struct {
	service   *sheets.Service
	sheetID   string
	sheetName string
	rowCache  map[int64]int
	cacheMu   sync.RWMutex
}

func NewJournalService(cfg config.GoogleConfig) (*JournalService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	sheetName := cfg.JournalSheetName
	if sheetName == "" {
		sheetName = "Журнал"
	}

	j := &JournalService{
		service:   srv,
		sheetID:   cfg.JournalSpreadsheetID,
		sheetName: sheetName,
		rowCache:  make(map[int64]int),
	}

	// Прогреваем кэш строк в фоне
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		j.WarmUpCache(ctx)
	}()

	return j, nil
}

// TestConnection проверяет подключение к таблице
func (j *JournalService) TestConnection(ctx context.Context) error {
	_, err := j.service.Spreadsheets.Values.Get(j.sheetID, j.rangeRef("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendAppointment добавляет запись в конец журнала.
func (j *JournalService) AppendAppointment(ctx context.Context, a *models.Appointment) error {
	if a == nil {
		return fmt.Errorf("appointment is nil")
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{appointmentRow(a)},
	}

	_, err := j.service.Spreadsheets.Values.Append(j.sheetID, j.rangeRef("A:A"), valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// MarkCancelled помечает строку записи отменённой и проставляет время изменения.
func (j *JournalService) MarkCancelled(ctx context.Context, appointmentID int64) error {
	rowIdx, err := j.findRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	statusRange := j.rangeRef(fmt.Sprintf("G%d:G%d", rowIdx, rowIdx))
	_, err = j.service.Spreadsheets.Values.Update(j.sheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{models.StatusCancelled}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := j.rangeRef(fmt.Sprintf("J%d:J%d", rowIdx, rowIdx))
	_, err = j.service.Spreadsheets.Values.Update(j.sheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{time.Now().Format("2006-01-02 15:04:05")}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// Rewrite полностью перезаписывает журнал переданным списком записей.
func (j *JournalService) Rewrite(ctx context.Context, appointments []*models.Appointment) error {
	clearRange := j.rangeRef("A2:Z")
	_, err := j.service.Spreadsheets.Values.Clear(j.sheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear journal sheet: %v", err)
	}

	values := [][]interface{}{journalHeaders()}
	for _, a := range appointments {
		values = append(values, appointmentRow(a))
	}

	_, err = j.service.Spreadsheets.Values.Update(j.sheetID, j.rangeRef("A1"), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update journal sheet: %v", err)
	}

	j.cacheMu.Lock()
	j.rowCache = make(map[int64]int)
	for i, a := range appointments {
		j.rowCache[a.ID] = i + 2 // строка 1 — заголовки
	}
	j.cacheMu.Unlock()

	return nil
}

// WarmUpCache читает колонку ID и заполняет кэш номеров строк.
func (j *JournalService) WarmUpCache(ctx context.Context) error {
	resp, err := j.service.Spreadsheets.Values.Get(j.sheetID, j.rangeRef("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	j.cacheMu.Lock()
	defer j.cacheMu.Unlock()
	j.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		id := parseRowID(row[0])
		if id > 0 {
			j.rowCache[id] = i + 1
		}
	}
	return nil
}

// findRow ищет номер строки (1-based) записи по колонке A, с кэшем.
func (j *JournalService) findRow(ctx context.Context, appointmentID int64) (int, error) {
	if appointmentID == 0 {
		return 0, fmt.Errorf("appointment id is required")
	}

	if row, ok := j.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := j.service.Spreadsheets.Values.Get(j.sheetID, j.rangeRef("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if parseRowID(row[0]) == appointmentID {
			rowIdx := i + 1 // Values нумеруются с нуля, строки листа — с единицы
			j.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

func (j *JournalService) getCachedRow(id int64) (int, bool) {
	j.cacheMu.RLock()
	defer j.cacheMu.RUnlock()
	row, ok := j.rowCache[id]
	return row, ok
}

func (j *JournalService) setCachedRow(id int64, row int) {
	j.cacheMu.Lock()
	defer j.cacheMu.Unlock()
	j.rowCache[id] = row
}

// ClearCache сбрасывает кэш номеров строк.
func (j *JournalService) ClearCache() {
	j.cacheMu.Lock()
	defer j.cacheMu.Unlock()
	j.rowCache = make(map[int64]int)
}

func (j *JournalService) rangeRef(cells string) string {
	return fmt.Sprintf("%s!%s", j.sheetName, cells)
}

func parseRowID(cell interface{}) int64 {
	var id int64
	switch v := cell.(type) {
	case float64:
		id = int64(v)
	case string:
		fmt.Sscanf(v, "%d", &id)
	}
	return id
}

func journalHeaders() []interface{} {
	return []interface{}{"ID", "Клиент", "Телефон", "Дата", "Время", "Мастер", "Статус", "Услуга", "Создана", "Изменена"}
}

func appointmentRow(a *models.Appointment) []interface{} {
	return []interface{}{
		a.ID,
		a.CustomerName,
		a.Phone,
		a.Date.Format("02.01.2006"),
		a.HourLabel(),
		a.BarberName,
		a.Status,
		a.ServiceName,
		a.CreatedAt.Format("2006-01-02 15:04:05"),
		a.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
