package service

import (
	"context"
	"strings"
	"sync"

	"figaro/internal/database"
	"figaro/internal/domain"
	"figaro/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService кэширует справочник мастеров и услуг в памяти:
// бот обращается к нему на каждом шаге диалога.
type CatalogService struct {
	repo     domain.Repository
	logger   *zerolog.Logger
	barbers  []models.Barber
	services []models.Service
	mu       sync.RWMutex
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger,
	}
}

// Sync загружает справочник из staff.yaml в базу и обновляет кэш.
func (s *CatalogService) Sync(ctx context.Context, barbers []models.Barber, services []models.Service) error {
	if err := s.repo.SyncBarbers(ctx, barbers); err != nil {
		return err
	}
	if err := s.repo.SyncServices(ctx, services); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *CatalogService) Refresh(ctx context.Context) error {
	barbers, err := s.repo.ListActiveBarbers(ctx)
	if err != nil {
		return err
	}
	services, err := s.repo.ListActiveServices(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.barbers = barbers
	s.services = services
	return nil
}

func (s *CatalogService) ActiveBarbers() []models.Barber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.barbers
}

func (s *CatalogService) ActiveServices() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

func (s *CatalogService) BarberByID(id int64) (*models.Barber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.barbers {
		if s.barbers[i].ID == id {
			b := s.barbers[i]
			return &b, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *CatalogService) BarberByName(name string) (*models.Barber, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.barbers {
		if strings.ToLower(s.barbers[i].Name) == needle {
			b := s.barbers[i]
			return &b, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *CatalogService) ServiceByID(id int64) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.services {
		if s.services[i].ID == id {
			svc := s.services[i]
			return &svc, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *CatalogService) ServiceByName(name string) (*models.Service, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.services {
		if strings.ToLower(s.services[i].Name) == needle {
			svc := s.services[i]
			return &svc, nil
		}
	}
	return nil, database.ErrNotFound
}
