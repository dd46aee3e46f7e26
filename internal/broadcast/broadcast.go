package broadcast

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"figaro/internal/config"
	"figaro/internal/domain"
	"figaro/internal/events"
	"figaro/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MessageSender — минимальный срез Telegram-клиента, нужный рассылке.
type MessageSender interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
}

// Dispatcher рассылает сообщения всем клиентам выбранной аудитории.
// Отправка идёт последовательно со случайной паузой между сообщениями,
// чтобы не упереться в лимиты Telegram на массовые отправки.
type Dispatcher struct {
	repo     domain.Repository
	sender   MessageSender
	events   domain.EventPublisher
	limiter  *rate.Limiter
	delayMin time.Duration
	delayMax time.Duration
	rng      *rand.Rand
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewDispatcher(repo domain.Repository, sender MessageSender, publisher domain.EventPublisher, cfg config.BroadcastConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.DelayMinSec <= 0 {
		cfg.DelayMinSec = models.DefaultBroadcastDelayMinSec
	}
	if cfg.DelayMaxSec < cfg.DelayMinSec {
		cfg.DelayMaxSec = models.DefaultBroadcastDelayMaxSec
	}
	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = models.RateLimitMessages
	}

	return &Dispatcher{
		repo:     repo,
		sender:   sender,
		events:   publisher,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		delayMin: time.Duration(cfg.DelayMinSec) * time.Second,
		delayMax: time.Duration(cfg.DelayMaxSec) * time.Second,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics:  NewMetrics(),
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

// Dispatch резолвит аудиторию и запускает рассылку в фоне. Возвращает
// число адресатов; сама рассылка к этому моменту только началась.
// Запущенную рассылку нельзя отменить иначе как остановкой процесса.
func (d *Dispatcher) Dispatch(ctx context.Context, text, audience string) (int, error) {
	if text == "" {
		return 0, fmt.Errorf("broadcast text is empty")
	}

	recipients, err := d.repo.DistinctRecipients(ctx, audience)
	if err != nil {
		return 0, fmt.Errorf("resolve audience %q: %w", audience, err)
	}

	d.logger.Info().Str("audience", audience).Int("recipients", len(recipients)).Msg("broadcast accepted")
	// Вызывающий контекст (HTTP-запрос, обработка апдейта) живёт секунды,
	// рассылка — минуты: фон не должен умирать вместе с ним
	go d.run(context.WithoutCancel(ctx), text, audience, recipients)

	return len(recipients), nil
}

func (d *Dispatcher) run(ctx context.Context, text, audience string, recipients []models.Recipient) {
	start := time.Now()
	var delivered, failed int

	for i, r := range recipients {
		if ctx.Err() != nil {
			d.logger.Warn().Int("remaining", len(recipients)-i).Msg("broadcast aborted by shutdown")
			break
		}
		if r.ChatID == 0 {
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			break
		}

		if _, err := d.sender.SendMessage(r.ChatID, text); err != nil {
			failed++
			d.metrics.Failed.Inc()
			d.logger.Error().Err(err).Int64("chat_id", r.ChatID).Msg("broadcast: send failed")
		} else {
			delivered++
			d.metrics.Delivered.Inc()
		}

		if i < len(recipients)-1 {
			if !d.pause(ctx) {
				break
			}
		}
	}

	d.logger.Info().
		Str("audience", audience).
		Int("total", len(recipients)).
		Int("delivered", delivered).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("broadcast finished")

	if d.events != nil {
		payload := events.BroadcastEventPayload{
			Audience:  audience,
			Total:     len(recipients),
			Delivered: delivered,
			Failed:    failed,
		}
		if err := d.events.PublishJSON(events.EventBroadcastFinished, payload); err != nil {
			d.logger.Error().Err(err).Msg("broadcast: publish event failed")
		}
	}
}

// pause ждёт случайный интервал из [delayMin, delayMax]; false — процесс
// останавливается.
func (d *Dispatcher) pause(ctx context.Context) bool {
	delay := d.delayMin
	if spread := d.delayMax - d.delayMin; spread > 0 {
		delay += time.Duration(d.rng.Int63n(int64(spread) + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
