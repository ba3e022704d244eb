package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// ModerationUseCase реализует цикл исправления отказов модерации маркетплейса.
type ModerationUseCase struct {
	productRepo     ProductRepository
	trManager       TxManager
	providers       []FixProvider // в порядке приоритета
	providerTimeout time.Duration
	publisher       EventPublisher
	metrics         MetricsRecorder
	feed            FeedUC
	logger          logger.Logger
}

func NewModerationUC(
	productRepo ProductRepository,
	trManager TxManager,
	providers []FixProvider,
	providerTimeout time.Duration,
	publisher EventPublisher,
	metrics MetricsRecorder,
	feed FeedUC,
	logger logger.Logger,
) *ModerationUseCase {
	return &ModerationUseCase{
		productRepo:     productRepo,
		trManager:       trManager,
		providers:       providers,
		providerTimeout: providerTimeout,
		publisher:       publisher,
		metrics:         metrics,
		feed:            feed,
		logger:          logger,
	}
}

// RecordRejection фиксирует отказ модерации с причиной. Закрытые записи не меняются.
func (m *ModerationUseCase) RecordRejection(ctx context.Context, id int64, reason string) error {
	const op = "ModerationUseCase.RecordRejection"

	if id <= 0 {
		return e.Wrap(op, e.ErrInvalidProductID)
	}
	if strings.TrimSpace(reason) == "" {
		return e.Wrap(op, e.ErrMissingFieldValue)
	}

	if err := m.productRepo.RecordRejection(ctx, id, strings.TrimSpace(reason)); err != nil {
		return e.Wrap(op, err)
	}

	m.publish(ctx, NewConveyorEvent(EventRejected, id, map[string]any{"reason": reason}))
	return nil
}

// SuggestFix опрашивает провайдеров строго по очереди; первый корректный ответ прекращает перебор.
// Если все провайдеры не справились, возвращается деградированный результат без действий, а не ошибка.
func (m *ModerationUseCase) SuggestFix(ctx context.Context, req *SuggestFixReq) (*SuggestFixRes, error) {
	const op = "ModerationUseCase.SuggestFix"

	reason, product, err := m.suggestInput(ctx, req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	prompt, err := buildFixPrompt(reason, product)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	attempts := make([]ProviderAttempt, 0, len(m.providers))
	for _, provider := range m.providers {
		started := time.Now()

		suggestion, err := m.askProvider(ctx, provider, prompt)
		if err != nil {
			m.metrics.ProviderAttempt(provider.Name(), false)
			m.logger.Warnf("fix provider %s failed: %v", provider.Name(), err)
			attempts = append(attempts, ProviderAttempt{
				Provider: provider.Name(),
				Error:    err.Error(),
				Duration: time.Since(started),
			})

			// Отмена запроса прерывает всю цепочку
			if ctx.Err() != nil {
				break
			}
			continue
		}

		m.metrics.ProviderAttempt(provider.Name(), true)
		return &SuggestFixRes{
			Suggestion: suggestion,
			Provider:   provider.Name(),
			Attempts:   attempts,
		}, nil
	}

	m.logger.Warnf("%v: product_id=%d attempts=%d", e.ErrProviderExhausted, req.ProductID, len(attempts))
	return &SuggestFixRes{
		Suggestion: domain.FixSuggestion{Actions: []domain.FixAction{}},
		Degraded:   true,
		Attempts:   attempts,
	}, nil
}

func (m *ModerationUseCase) askProvider(ctx context.Context, provider FixProvider, prompt string) (domain.FixSuggestion, error) {
	pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	defer cancel()

	raw, err := provider.Complete(pctx, prompt)
	if err != nil {
		return domain.FixSuggestion{}, err
	}

	return parseSuggestion(raw)
}

// suggestInput дополняет запрос причиной отказа и снимком записи из хранилища.
func (m *ModerationUseCase) suggestInput(ctx context.Context, req *SuggestFixReq) (string, map[string]any, error) {
	reason := strings.TrimSpace(req.RejectionReason)
	product := req.ProductData

	if reason != "" && len(product) > 0 {
		return reason, product, nil
	}
	if req.ProductID <= 0 {
		return "", nil, e.ErrMissingProductID
	}

	rec, err := m.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return "", nil, err
	}

	if reason == "" {
		reason = strings.TrimSpace(rec.KaspiDetails)
	}
	if len(product) == 0 {
		product = productSnapshot(rec)
	}

	return reason, product, nil
}

// ApplyFix применяет одно действие и отправляет карточку на повторную модерацию.
// Счётчик попыток увеличивается только после успешной записи исправления.
func (m *ModerationUseCase) ApplyFix(ctx context.Context, req *ApplyFixReq) (*ApplyFixRes, error) {
	const op = "ModerationUseCase.ApplyFix"

	// Валидация до любого обращения к хранилищу
	if err := validateFix(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	rec, err := m.openRecord(ctx, req.ProductID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	reason := rec.KaspiDetails

	field, value := req.Payload.Field, strings.TrimSpace(req.Payload.Value)
	if field.Virtual() {
		err = m.trManager.Do(ctx, func(ctx context.Context) error {
			locked, err := m.productRepo.GetByIDForUpdate(ctx, req.ProductID)
			if err != nil {
				return err
			}

			specs, err := locked.Specs.With(string(field), value)
			if err != nil {
				return err
			}

			return m.productRepo.ApplySpecsFix(ctx, req.ProductID, specs)
		})
	} else {
		err = m.productRepo.ApplyColumnFix(ctx, req.ProductID, field, value)
	}
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	m.publish(ctx, NewConveyorEvent(EventFixApplied, req.ProductID, map[string]any{
		"field": string(field),
		"value": value,
	}))
	m.feed.Invalidate(ctx)

	res, err := m.registerCycle(ctx, req.ProductID, reason)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return res, nil
}

// Resubmit отправляет карточку на повторную модерацию без изменений. Это тоже попытка.
func (m *ModerationUseCase) Resubmit(ctx context.Context, id int64) (*ApplyFixRes, error) {
	const op = "ModerationUseCase.Resubmit"

	if id <= 0 {
		return nil, e.Wrap(op, e.ErrInvalidProductID)
	}

	rec, err := m.openRecord(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	reason := rec.KaspiDetails

	if err := m.productRepo.ResetForResubmit(ctx, id); err != nil {
		return nil, e.Wrap(op, err)
	}

	m.publish(ctx, NewConveyorEvent(EventResubmitted, id, nil))

	res, err := m.registerCycle(ctx, id, reason)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return res, nil
}

// AutoFix обрабатывает отклонённые записи ниже потолка попыток: применяет первое предложенное действие
// либо, если действий нет, отправляет карточку повторно без изменений.
func (m *ModerationUseCase) AutoFix(ctx context.Context, limit int) (int, error) {
	const op = "ModerationUseCase.AutoFix"

	records, err := m.productRepo.ListRejected(ctx, domain.MaxModerationRetries, limit)
	if err != nil {
		return 0, e.Wrap(op, err)
	}

	processed := 0
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		rec := &records[i]

		suggestion, err := m.SuggestFix(ctx, NewSuggestFixReq(rec.ID, rec.KaspiDetails, productSnapshot(rec)))
		if err != nil {
			m.logger.Errorf(err, "auto fix: suggestion failed for product %d", rec.ID)
			continue
		}

		var res *ApplyFixRes
		if actions := suggestion.Suggestion.Actions; len(actions) > 0 {
			res, err = m.ApplyFix(ctx, NewApplyFixReq(rec.ID, actions[0].Type, actions[0].Payload.Field, actions[0].Payload.Value))
		} else {
			res, err = m.Resubmit(ctx, rec.ID)
		}
		if err != nil {
			m.logger.Errorf(err, "auto fix: product %d was not resubmitted", rec.ID)
			continue
		}

		processed++
		m.logger.Infof("auto fix: product %d resubmitted, retries=%d closed=%t", rec.ID, res.Retries, res.Closed)
	}

	return processed, nil
}

// openRecord загружает запись для очередного цикла исправления.
// Цикл открывает только отказ модерации: закрытая запись даёт ErrRetryLimitReached, любая другая ErrNotRejected.
func (m *ModerationUseCase) openRecord(ctx context.Context, id int64) (*domain.ProductRecord, error) {
	rec, err := m.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.KaspiStatus == domain.KaspiStatusClosed || rec.ModerationRetries >= domain.MaxModerationRetries {
		return nil, e.ErrRetryLimitReached
	}
	if rec.KaspiStatus != domain.KaspiStatusRejected {
		return nil, e.ErrNotRejected
	}
	return rec, nil
}

// registerCycle увеличивает счётчик попыток; на потолке запись закрывается тем же UPDATE.
func (m *ModerationUseCase) registerCycle(ctx context.Context, id int64, reason string) (*ApplyFixRes, error) {
	cycle, err := m.productRepo.RegisterModerationCycle(ctx, id, domain.MaxModerationRetries,
		closedSummary(domain.MaxModerationRetries, reason))
	if err != nil {
		return nil, err
	}

	closed := cycle.KaspiStatus == domain.KaspiStatusClosed
	if closed {
		m.metrics.ModerationClosed()
		m.logger.Warnf("product %d: %v, moderation closed", id, e.ErrRetryLimitReached)
		m.publish(ctx, NewConveyorEvent(EventModerationClosed, id, map[string]any{
			"retries":     cycle.Retries,
			"last_reason": reason,
		}))
	}

	return &ApplyFixRes{ProductID: id, Retries: cycle.Retries, Closed: closed}, nil
}

func validateFix(req *ApplyFixReq) error {
	if req.ProductID <= 0 {
		return e.ErrInvalidProductID
	}
	if strings.TrimSpace(req.ActionType) != domain.ActionUpdateField {
		return e.ErrInvalidActionType
	}
	if !req.Payload.Field.Allowed() {
		return e.ErrFieldNotAllowed
	}
	if strings.TrimSpace(req.Payload.Value) == "" {
		return e.ErrMissingFieldValue
	}
	return nil
}

func (m *ModerationUseCase) publish(ctx context.Context, event *ConveyorEvent) {
	if err := m.publisher.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warnf("failed to publish %s event: %v", event.Type, err)
	}
}
