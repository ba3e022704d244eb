package usecase

import (
	"context"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

type ConveyorUC interface {
	ForceSync(ctx context.Context, id int64) error
	MarkInFeed(ctx context.Context, id int64) error
	Queue(ctx context.Context, id int64) error
	Pricing(ctx context.Context, id int64) (*PricingRes, error)
	ProcessNext(ctx context.Context) (bool, error)
}

type ModerationUC interface {
	RecordRejection(ctx context.Context, id int64, reason string) error
	SuggestFix(ctx context.Context, req *SuggestFixReq) (*SuggestFixRes, error)
	ApplyFix(ctx context.Context, req *ApplyFixReq) (*ApplyFixRes, error)
	Resubmit(ctx context.Context, id int64) (*ApplyFixRes, error)
	AutoFix(ctx context.Context, limit int) (int, error)
}

type FeedUC interface {
	Generate(ctx context.Context) (*FeedRes, error)
	Invalidate(ctx context.Context)
}

type JobUC interface {
	Enqueue(ctx context.Context, req *EnqueueJobReq) (*domain.Job, error)
	Status(ctx context.Context, limit int) (*JobsStatusRes, error)
	Stop(ctx context.Context) (*StopJobsRes, error)
	ConsumeNext(ctx context.Context) (bool, error)
}

type StatsUC interface {
	Stats(ctx context.Context) (*StatsRes, error)
	Health(ctx context.Context) (*HealthRes, error)
}

type SettingsUC interface {
	Get() domain.Settings
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
}
