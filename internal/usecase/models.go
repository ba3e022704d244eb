package usecase

import (
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

// CONVEYOR

// StageReq — данные товара, передаваемые во внешнюю систему на этапе конвейера.
type StageReq struct {
	ProductID   int64
	Article     string
	Name        string
	Brand       string
	Description string
	Cost        int64 // закупочная цена
	Price       int64 // розничная цена
	Stock       int
	Images      []string
	Category    string
	CategoryID  string
	Attributes  []domain.OfferParam
}

// PricingRes — разбор розничной цены товара.
type PricingRes struct {
	ProductID int64
	Breakdown PriceBreakdown
}

// MODERATION

// SuggestFixReq — запрос подсказки по отказу модерации.
// Если RejectionReason или ProductData не заданы, они берутся из записи ProductID.
type SuggestFixReq struct {
	ProductID       int64
	RejectionReason string
	ProductData     map[string]any
}

// SuggestFixRes — результат цепочки провайдеров. Degraded означает, что ни один провайдер не ответил корректно.
type SuggestFixRes struct {
	Suggestion domain.FixSuggestion
	Provider   string
	Degraded   bool
	Attempts   []ProviderAttempt
}

// ProviderAttempt — диагностика одной неудачной попытки провайдера.
type ProviderAttempt struct {
	Provider string
	Error    string
	Duration time.Duration
}

// ApplyFixReq — применение одного действия из подсказки.
type ApplyFixReq struct {
	ProductID  int64
	ActionType string
	Payload    domain.FixPayload
}

// ApplyFixRes — состояние модерации после цикла исправления.
type ApplyFixRes struct {
	ProductID int64
	Retries   int
	Closed    bool
}

// ModerationCycleRes — счётчики после инкремента moderation_retries.
type ModerationCycleRes struct {
	Retries     int
	KaspiStatus domain.KaspiStatus
}

// FEED

// FeedRes — готовый XML-документ фида.
type FeedRes struct {
	Body   []byte
	Offers int
	Cached bool
}

// JOBS

// EnqueueJobReq — запрос на постановку задания discovery.
type EnqueueJobReq struct {
	Mode  domain.JobMode
	Query string
	Page  int
}

// JobsStatusRes — список заданий и признак работающего конвейера.
type JobsStatusRes struct {
	Running bool
	Latest  *domain.Job
	Jobs    []domain.Job
}

// StopJobsRes — число остановленных заданий.
type StopJobsRes struct {
	Stopped int64
}

// STATS

// ProductStats — агрегаты по хранилищу записей.
type ProductStats struct {
	Total            int64
	ByConveyorStatus map[domain.ConveyorStatus]int64
	ByKaspiStatus    map[domain.KaspiStatus]int64
	FeedEligible     int64
	Closed           int64
	Errors           int64
}

// StatsRes — статистика для панели оператора.
type StatsRes struct {
	Products *ProductStats
	Running  bool
}

// HealthRes — состояние конвейера.
type HealthRes struct {
	Status       string
	Running      bool
	LatestStatus domain.JobStatus
	LatestLog    string
	CheckedAt    time.Time
}

// EVENTS

// Типы событий конвейера.
const (
	EventForceSynced      = "product.force_synced"
	EventMarkedInFeed     = "product.marked_in_feed"
	EventQueued           = "product.queued"
	EventRejected         = "product.rejected"
	EventFixApplied       = "moderation.fix_applied"
	EventResubmitted      = "moderation.resubmitted"
	EventModerationClosed = "moderation.closed"
	EventConveyorDone     = "conveyor.done"
	EventConveyorFailed   = "conveyor.failed"
	EventJobEnqueued      = "job.enqueued"
	EventJobsStopped      = "job.stopped"
	EventJobFinished      = "job.finished"
)

// ConveyorEvent — событие для внешних потребителей.
type ConveyorEvent struct {
	Type       string
	ProductID  int64
	JobID      int64
	Payload    map[string]any
	OccurredAt time.Time
}

// MAPPERS

func NewConveyorEvent(eventType string, productID int64, payload map[string]any) *ConveyorEvent {
	return &ConveyorEvent{
		Type:       eventType,
		ProductID:  productID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

func NewJobEvent(eventType string, jobID int64, payload map[string]any) *ConveyorEvent {
	return &ConveyorEvent{
		Type:       eventType,
		JobID:      jobID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

func NewSuggestFixReq(productID int64, reason string, data map[string]any) *SuggestFixReq {
	return &SuggestFixReq{
		ProductID:       productID,
		RejectionReason: reason,
		ProductData:     data,
	}
}

func NewApplyFixReq(productID int64, actionType string, field domain.FixField, value string) *ApplyFixReq {
	return &ApplyFixReq{
		ProductID:  productID,
		ActionType: actionType,
		Payload:    domain.FixPayload{Field: field, Value: value},
	}
}

func NewEnqueueJobReq(mode domain.JobMode, query string, page int) *EnqueueJobReq {
	return &EnqueueJobReq{
		Mode:  mode,
		Query: query,
		Page:  page,
	}
}

func NewModerationCycleRes(retries int, status domain.KaspiStatus) *ModerationCycleRes {
	return &ModerationCycleRes{
		Retries:     retries,
		KaspiStatus: status,
	}
}

func NewProductStats() *ProductStats {
	return &ProductStats{
		ByConveyorStatus: make(map[domain.ConveyorStatus]int64),
		ByKaspiStatus:    make(map[domain.KaspiStatus]int64),
	}
}
