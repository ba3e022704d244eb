package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// ConveyorUseCase управляет переходами состояний записи на конвейере.
type ConveyorUseCase struct {
	productRepo ProductRepository
	gateway     ConveyorGateway
	settings    SettingsProvider
	publisher   EventPublisher
	metrics     MetricsRecorder
	feed        FeedUC
	logger      logger.Logger
}

func NewConveyorUC(
	productRepo ProductRepository,
	gateway ConveyorGateway,
	settings SettingsProvider,
	publisher EventPublisher,
	metrics MetricsRecorder,
	feed FeedUC,
	logger logger.Logger,
) *ConveyorUseCase {
	return &ConveyorUseCase{
		productRepo: productRepo,
		gateway:     gateway,
		settings:    settings,
		publisher:   publisher,
		metrics:     metrics,
		feed:        feed,
		logger:      logger,
	}
}

// ForceSync безусловно возвращает запись в idle и снимает все вехи одним UPDATE.
func (c *ConveyorUseCase) ForceSync(ctx context.Context, id int64) error {
	const op = "ConveyorUseCase.ForceSync"

	if id <= 0 {
		return e.Wrap(op, e.ErrInvalidProductID)
	}

	line := domain.LogLine(time.Now(), "force sync: status reset to idle, milestones cleared")
	if err := c.productRepo.ForceSync(ctx, id, line); err != nil {
		return e.Wrap(op, err)
	}

	c.feed.Invalidate(ctx)
	c.publish(ctx, NewConveyorEvent(EventForceSynced, id, nil))
	return nil
}

// MarkInFeed отмечает карточку созданной и опубликованной. Повторный вызов ничего не меняет.
func (c *ConveyorUseCase) MarkInFeed(ctx context.Context, id int64) error {
	const op = "ConveyorUseCase.MarkInFeed"

	if id <= 0 {
		return e.Wrap(op, e.ErrInvalidProductID)
	}

	line := domain.LogLine(time.Now(), "marked as published in feed")
	if err := c.productRepo.MarkInFeed(ctx, id, line); err != nil {
		return e.Wrap(op, err)
	}

	c.feed.Invalidate(ctx)
	c.publish(ctx, NewConveyorEvent(EventMarkedInFeed, id, nil))
	return nil
}

// Queue ставит простаивающую запись в очередь конвейера.
func (c *ConveyorUseCase) Queue(ctx context.Context, id int64) error {
	const op = "ConveyorUseCase.Queue"

	if id <= 0 {
		return e.Wrap(op, e.ErrInvalidProductID)
	}

	line := domain.LogLine(time.Now(), "queued for conveyor")
	if err := c.productRepo.Enqueue(ctx, id, line); err != nil {
		return e.Wrap(op, err)
	}

	c.publish(ctx, NewConveyorEvent(EventQueued, id, nil))
	return nil
}

// Pricing возвращает разбор розничной цены записи по текущим настройкам.
func (c *ConveyorUseCase) Pricing(ctx context.Context, id int64) (*PricingRes, error) {
	const op = "ConveyorUseCase.Pricing"

	if id <= 0 {
		return nil, e.Wrap(op, e.ErrInvalidProductID)
	}

	rec, err := c.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return &PricingRes{
		ProductID: rec.ID,
		Breakdown: CalculatePrice(rec.Price, c.settings.Get()),
	}, nil
}

// ProcessNext забирает одну запись из очереди и прогоняет её по этапам.
// Возвращает false, если очередь пуста. Ошибка этапа переводит запись в error и не считается ошибкой вызова.
func (c *ConveyorUseCase) ProcessNext(ctx context.Context) (bool, error) {
	const op = "ConveyorUseCase.ProcessNext"

	rec, err := c.productRepo.ClaimPending(ctx)
	if err != nil {
		return false, e.Wrap(op, err)
	}
	if rec == nil {
		return false, nil
	}

	log := c.logger.With("product_id", rec.ID)
	req := newStageReq(rec, c.settings.Get())

	for _, stage := range domain.ConveyorStages {
		if rec.StageDone(stage) {
			continue
		}

		if err := c.gateway.RunStage(ctx, stage, req); err != nil {
			c.metrics.StageFinished(stage, false)
			log.Errorf(err, "conveyor stage %s failed", stage)

			line := domain.LogLine(time.Now(), "stage %s failed: %v", stage, err)
			if _, ferr := c.productRepo.FinishConveyor(ctx, rec.ID, domain.ConveyorError, line); ferr != nil {
				return true, e.Wrap(op, ferr)
			}

			c.publish(ctx, NewConveyorEvent(EventConveyorFailed, rec.ID, map[string]any{
				"stage": string(stage),
				"error": err.Error(),
			}))
			return true, nil
		}
		c.metrics.StageFinished(stage, true)

		applied, err := c.productRepo.CompleteStage(ctx, rec.ID, stage, domain.LogLine(time.Now(), "stage %s completed", stage))
		if err != nil {
			return true, e.Wrap(op, err)
		}
		if !applied {
			log.Warnf("record left processing during stage %s, stopping", stage)
			return true, nil
		}
		if stage == domain.StageKaspiCard {
			c.feed.Invalidate(ctx)
		}
	}

	applied, err := c.productRepo.FinishConveyor(ctx, rec.ID, domain.ConveyorDone, domain.LogLine(time.Now(), "conveyor completed"))
	if err != nil {
		return true, e.Wrap(op, err)
	}
	if applied {
		c.publish(ctx, NewConveyorEvent(EventConveyorDone, rec.ID, nil))
	}

	return true, nil
}

func (c *ConveyorUseCase) publish(ctx context.Context, event *ConveyorEvent) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warnf("failed to publish %s event: %v", event.Type, err)
	}
}
