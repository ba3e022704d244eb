package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

// TxManager выполняет fn в транзакции, переданной через контекст.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SettingsProvider отдаёт актуальный снимок runtime-настроек.
type SettingsProvider interface {
	Get() domain.Settings
}

// BaseCatalogSource загружает базовый каталог, которым владеет внешняя система.
type BaseCatalogSource interface {
	Fetch(ctx context.Context) (CatalogDocument, error)
}

// CatalogDocument — разобранный XML-каталог с коллекцией предложений.
type CatalogDocument interface {
	SKUs() []string
	AppendOffer(offer domain.CatalogOffer)
	// FilterByMinPrice удаляет предложения с нечисловой ценой или ценой ниже min, возвращает число удалённых.
	FilterByMinPrice(min int64) int
	// Dedup оставляет первое предложение для каждого SKU, возвращает число удалённых.
	Dedup() int
	OfferCount() int
	Render(env domain.FeedEnvelope) ([]byte, error)
}

// ERPCatalog читает справочник товаров ERP.
type ERPCatalog interface {
	// ArticleCodes возвращает соответствие артикул → код по всем товарам ERP.
	ArticleCodes(ctx context.Context) (map[string]string, error)
}

// FixProvider — один поставщик подсказок для исправления отказа модерации.
type FixProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ConveyorGateway выполняет этапы конвейера во внешних системах.
type ConveyorGateway interface {
	RunStage(ctx context.Context, stage domain.ConveyorStage, req *StageReq) error
}

// DiscoveryGateway ищет товары во внешнем источнике.
type DiscoveryGateway interface {
	Discover(ctx context.Context, query string, page int) ([]domain.DiscoveredItem, error)
}

// EventPublisher публикует события конвейера. Доставка best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event *ConveyorEvent) error
}

// MetricsRecorder собирает метрики бизнес-операций.
type MetricsRecorder interface {
	ObserveFeed(duration time.Duration, offers int, cached bool, err error)
	ProviderAttempt(provider string, ok bool)
	ModerationClosed()
	StageFinished(stage domain.ConveyorStage, ok bool)
	JobFinished(status domain.JobStatus)
}
