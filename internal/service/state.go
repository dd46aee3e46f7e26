package service

import (
	"context"
	"time"

	"figaro/internal/domain"
	"figaro/internal/models"

	"github.com/rs/zerolog"
)

// StateService — тонкая обёртка над хранилищем сессий диалога.
// Отсутствие сессии означает, что диалог не начат.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *StateService) GetUserState(ctx context.Context, chatID int64) (*models.UserState, error) {
	state, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to get user state")
		return nil, err
	}

	return state, nil
}

func (s *StateService) SetUserState(ctx context.Context, chatID int64, step string, data map[string]interface{}) error {
	state := &models.UserState{
		ChatID:      chatID,
		CurrentStep: step,
		TempData:    data,
	}
	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) ClearUserState(ctx context.Context, chatID int64) error {
	return s.stateRepo.ClearState(ctx, chatID)
}

// UpdateUserStateData дописывает одно значение в данные сессии, не меняя шаг.
func (s *StateService) UpdateUserStateData(ctx context.Context, chatID int64, key string, value interface{}) error {
	state, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.UserState{
			ChatID:   chatID,
			TempData: make(map[string]interface{}),
		}
	}

	if state.TempData == nil {
		state.TempData = make(map[string]interface{})
	}
	state.TempData[key] = value

	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, chatID, limit, window)
}
