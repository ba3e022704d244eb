// Package settings хранит runtime-настройки бизнес-логики: цены, конверт фида, порядок SKU.
// Значения по умолчанию приходят из конфигурации, переопределения лежат в таблице settings.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// Repository — постоянное хранилище переопределений (ключ → строковое значение).
type Repository interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// Service отдаёт снимок настроек без обращения к базе. Обновление снимка происходит только явно:
// Refresh, Update или EnsureFresh для устаревшего/инвалидированного снимка.
type Service struct {
	repo     Repository
	defaults domain.Settings
	logger   logger.Logger

	mu        sync.RWMutex
	current   domain.Settings
	loadedAt  time.Time
	stale     bool
	listeners []func(ctx context.Context)
	now       func() time.Time
}

func NewService(repo Repository, defaults domain.Settings, logger logger.Logger) *Service {
	return &Service{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
		current:  defaults,
		stale:    true,
		now:      time.Now,
	}
}

// DefaultsFromConfig строит настройки по умолчанию из конфигурации приложения.
func DefaultsFromConfig(c *cfg.PricingCfg) domain.Settings {
	order := domain.SKUOrder(c.SKUOrder)
	if !order.Valid() {
		order = domain.SKUExplicitFirst
	}

	return domain.Settings{
		RetailDivisor:     c.RetailDivisor,
		MinOfferPrice:     c.MinOfferPrice,
		CommissionPercent: c.CommissionPercent,
		TaxPercent:        c.TaxPercent,
		LogisticsCost:     c.LogisticsCost,
		StoreID:           c.StoreID,
		MerchantID:        c.MerchantID,
		CompanyName:       c.CompanyName,
		DefaultStock:      c.DefaultStock,
		SKUOrder:          order,
		DefaultCategory:   c.DefaultCategory,
	}
}

// OnUpdate регистрирует обработчик, вызываемый после успешного Update.
func (s *Service) OnUpdate(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh перечитывает переопределения из хранилища. Некорректные значения пропускаются с предупреждением.
func (s *Service) Refresh(ctx context.Context) error {
	const op = "settings.Service.Refresh"

	values, err := s.repo.Load(ctx)
	if err != nil {
		return e.Wrap(op, err)
	}

	merged := s.decode(values)
	if err := merged.Validate(); err != nil {
		s.logger.Warnf("stored settings rejected, keeping defaults: %v", err)
		merged = s.defaults
	}

	s.mu.Lock()
	s.current = merged
	s.loadedAt = s.now()
	s.stale = false
	s.mu.Unlock()

	return nil
}

// Invalidate помечает снимок устаревшим; следующий EnsureFresh перечитает хранилище.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// EnsureFresh перечитывает настройки, если снимок инвалидирован или старше maxAge.
func (s *Service) EnsureFresh(ctx context.Context, maxAge time.Duration) error {
	s.mu.RLock()
	fresh := !s.stale && (maxAge <= 0 || s.now().Sub(s.loadedAt) < maxAge)
	s.mu.RUnlock()

	if fresh {
		return nil
	}
	return s.Refresh(ctx)
}

// Update валидирует патч, сохраняет изменённые ключи и синхронно обновляет снимок.
func (s *Service) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	const op = "settings.Service.Update"

	next := s.Get().Apply(patch)
	if err := next.Validate(); err != nil {
		return domain.Settings{}, e.Wrap(op, fmt.Errorf("%w: %v", e.ErrInvalidSettings, err))
	}

	if err := s.repo.Save(ctx, encodePatch(patch)); err != nil {
		return domain.Settings{}, e.Wrap(op, err)
	}

	if err := s.Refresh(ctx); err != nil {
		s.Invalidate()
		return domain.Settings{}, e.Wrap(op, err)
	}

	s.mu.RLock()
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx)
	}

	s.logger.Infof("settings updated")
	return s.Get(), nil
}

func (s *Service) decode(values map[string]string) domain.Settings {
	out := s.defaults
	for key, raw := range values {
		if err := decodeValue(&out, key, raw); err != nil {
			s.logger.Warnf("setting %s=%q ignored: %v", key, raw, err)
		}
	}
	return out
}

// decodeValue применяет одно значение. При ошибке разбора out не меняется.
func decodeValue(out *domain.Settings, key, raw string) error {
	switch key {
	case domain.SettingRetailDivisor, domain.SettingCommissionPercent, domain.SettingTaxPercent:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		switch key {
		case domain.SettingRetailDivisor:
			out.RetailDivisor = v
		case domain.SettingCommissionPercent:
			out.CommissionPercent = v
		default:
			out.TaxPercent = v
		}
	case domain.SettingMinOfferPrice, domain.SettingLogisticsCost:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		if key == domain.SettingMinOfferPrice {
			out.MinOfferPrice = v
		} else {
			out.LogisticsCost = v
		}
	case domain.SettingDefaultStock:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		out.DefaultStock = v
	case domain.SettingStoreID:
		out.StoreID = raw
	case domain.SettingMerchantID:
		out.MerchantID = raw
	case domain.SettingCompanyName:
		out.CompanyName = raw
	case domain.SettingSKUOrder:
		order := domain.SKUOrder(raw)
		if !order.Valid() {
			return fmt.Errorf("unknown sku order")
		}
		out.SKUOrder = order
	case domain.SettingDefaultCategory:
		out.DefaultCategory = raw
	default:
		return fmt.Errorf("unknown key")
	}
	return nil
}

func encodePatch(p domain.SettingsPatch) map[string]string {
	out := make(map[string]string)
	if p.RetailDivisor != nil {
		out[domain.SettingRetailDivisor] = formatFloat(*p.RetailDivisor)
	}
	if p.MinOfferPrice != nil {
		out[domain.SettingMinOfferPrice] = strconv.FormatInt(*p.MinOfferPrice, 10)
	}
	if p.CommissionPercent != nil {
		out[domain.SettingCommissionPercent] = formatFloat(*p.CommissionPercent)
	}
	if p.TaxPercent != nil {
		out[domain.SettingTaxPercent] = formatFloat(*p.TaxPercent)
	}
	if p.LogisticsCost != nil {
		out[domain.SettingLogisticsCost] = strconv.FormatInt(*p.LogisticsCost, 10)
	}
	if p.StoreID != nil {
		out[domain.SettingStoreID] = *p.StoreID
	}
	if p.MerchantID != nil {
		out[domain.SettingMerchantID] = *p.MerchantID
	}
	if p.CompanyName != nil {
		out[domain.SettingCompanyName] = *p.CompanyName
	}
	if p.DefaultStock != nil {
		out[domain.SettingDefaultStock] = strconv.Itoa(*p.DefaultStock)
	}
	if p.SKUOrder != nil {
		out[domain.SettingSKUOrder] = string(*p.SKUOrder)
	}
	if p.DefaultCategory != nil {
		out[domain.SettingDefaultCategory] = *p.DefaultCategory
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
