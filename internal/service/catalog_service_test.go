package service

import (
	"context"
	"io"
	"testing"

	"figaro/internal/database"
	"figaro/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	svc := NewCatalogService(db, &logger)
	ctx := context.Background()

	barbers := []models.Barber{
		{ID: 1, Name: "Сергей", IsActive: true, SortOrder: 1},
		{ID: 2, Name: "Анна", IsActive: true, SortOrder: 2},
	}
	services := []models.Service{
		{ID: 1, Name: "Мужская стрижка", Price: 1500, IsActive: true},
	}

	require.NoError(t, svc.Sync(ctx, barbers, services))

	assert.Len(t, svc.ActiveBarbers(), 2)
	assert.Len(t, svc.ActiveServices(), 1)

	b, err := svc.BarberByName("  анна ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.ID)

	_, err = svc.BarberByID(99)
	assert.ErrorIs(t, err, database.ErrNotFound)

	s, err := svc.ServiceByName("мужская стрижка")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ID)

	// Повторный Sync без Анны убирает её из кэша
	require.NoError(t, svc.Sync(ctx, barbers[:1], services))
	assert.Len(t, svc.ActiveBarbers(), 1)
	_, err = svc.BarberByID(2)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
