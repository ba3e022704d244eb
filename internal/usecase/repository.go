package usecase

import (
	"context"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

// ProductRepository — хранилище записей конвейера.
// Все переходы состояний выполняются одним условным UPDATE; методы, которые ничего не нашли, возвращают e.ErrProductNotFound.
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.ProductRecord, error)
	// GetByIDForUpdate блокирует строку до конца текущей транзакции.
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.ProductRecord, error)
	ListFeedEligible(ctx context.Context) ([]domain.ProductRecord, error)
	ListRejected(ctx context.Context, maxRetries int, limit int) ([]domain.ProductRecord, error)

	ForceSync(ctx context.Context, id int64, logLine string) error
	MarkInFeed(ctx context.Context, id int64, logLine string) error
	// Enqueue переводит idle/NULL → pending. Для остальных статусов возвращает e.ErrInvalidStatusShift.
	Enqueue(ctx context.Context, id int64, logLine string) error

	RecordRejection(ctx context.Context, id int64, reason string) error
	ApplyColumnFix(ctx context.Context, id int64, field domain.FixField, value string) error
	ApplySpecsFix(ctx context.Context, id int64, specs domain.Specs) error
	ResetForResubmit(ctx context.Context, id int64) error
	RegisterModerationCycle(ctx context.Context, id int64, limit int, closedSummary string) (*ModerationCycleRes, error)

	// ClaimPending атомарно забирает одну запись pending → processing. nil, если очередь пуста.
	ClaimPending(ctx context.Context) (*domain.ProductRecord, error)
	// CompleteStage и FinishConveyor применяются только к записи в статусе processing; false означает, что запись сброшена параллельно.
	CompleteStage(ctx context.Context, id int64, stage domain.ConveyorStage, logLine string) (bool, error)
	FinishConveyor(ctx context.Context, id int64, status domain.ConveyorStatus, logLine string) (bool, error)

	InsertDiscovered(ctx context.Context, records []*domain.ProductRecord) (int, error)
	Stats(ctx context.Context) (*ProductStats, error)
}

// JobRepository — очередь заданий discovery.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]domain.Job, error)
	// Latest возвращает самое позднее задание или nil, если заданий нет.
	Latest(ctx context.Context) (*domain.Job, error)
	HasActive(ctx context.Context) (bool, error)
	StopPending(ctx context.Context, logLine string) (int64, error)
	// ClaimPending атомарно забирает самое старое задание pending → processing. nil, если очередь пуста.
	ClaimPending(ctx context.Context) (*domain.Job, error)
	AppendLog(ctx context.Context, id int64, logLine string) error
	Finish(ctx context.Context, id int64, status domain.JobStatus, logLine string) error
}

// FeedCacheRepository хранит последний успешно собранный фид.
type FeedCacheRepository interface {
	// Get возвращает e.ErrCacheMiss при отсутствии значения.
	Get(ctx context.Context) ([]byte, error)
	Set(ctx context.Context, body []byte) error
	Invalidate(ctx context.Context) error
}
