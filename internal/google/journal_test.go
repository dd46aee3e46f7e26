package google

import (
	"testing"
	"time"

	"figaro/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAppointmentRow(t *testing.T) {
	a := &models.Appointment{
		ID:           42,
		CustomerName: "Пётр",
		Phone:        "+79991234567",
		Date:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Hour:         14,
		BarberName:   "Сергей",
		Status:       models.StatusConfirmed,
		ServiceName:  "Стрижка",
		CreatedAt:    time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
	}

	row := appointmentRow(a)

	assert.Len(t, row, len(journalHeaders()))
	assert.Equal(t, int64(42), row[0])
	assert.Equal(t, "Пётр", row[1])
	assert.Equal(t, "14.03.2026", row[3])
	assert.Equal(t, "14:00", row[4])
	assert.Equal(t, models.StatusConfirmed, row[6])
	assert.Equal(t, "2026-03-10 18:30:00", row[8])
}

func TestParseRowID(t *testing.T) {
	assert.Equal(t, int64(7), parseRowID(float64(7)))
	assert.Equal(t, int64(15), parseRowID("15"))
	assert.Equal(t, int64(0), parseRowID("header"))
	assert.Equal(t, int64(0), parseRowID(nil))
}

func TestRowCache(t *testing.T) {
	j := &JournalService{rowCache: make(map[int64]int)}

	_, ok := j.getCachedRow(1)
	assert.False(t, ok)

	j.setCachedRow(1, 5)
	row, ok := j.getCachedRow(1)
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	j.ClearCache()
	_, ok = j.getCachedRow(1)
	assert.False(t, ok)
}

func TestRangeRef(t *testing.T) {
	j := &JournalService{sheetName: "Журнал"}
	assert.Equal(t, "Журнал!A2:Z", j.rangeRef("A2:Z"))
}
