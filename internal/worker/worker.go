package worker

import (
	"context"
	"errors"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// drainLimit ограничивает число единиц работы одного вида за тик, чтобы очередь заданий не голодала.
const drainLimit = 50

type JobConsumer interface {
	ConsumeNext(ctx context.Context) (bool, error)
}

type ConveyorProcessor interface {
	ProcessNext(ctx context.Context) (bool, error)
}

type ModerationFixer interface {
	AutoFix(ctx context.Context, limit int) (int, error)
}

type SettingsRefresher interface {
	EnsureFresh(ctx context.Context, maxAge time.Duration) error
}

// Worker периодически разбирает очередь заданий discovery, прогоняет записи по конвейеру
// и, если включено, выполняет автоматический проход по отказам модерации.
type Worker struct {
	jobs       JobConsumer
	conveyor   ConveyorProcessor
	moderation ModerationFixer
	settings   SettingsRefresher
	cfg        *cfg.WorkerCfg
	logger     logger.Logger
}

func New(
	jobs JobConsumer,
	conveyor ConveyorProcessor,
	moderation ModerationFixer,
	settings SettingsRefresher,
	cfg *cfg.WorkerCfg,
	logger logger.Logger,
) *Worker {
	return &Worker{
		jobs:       jobs,
		conveyor:   conveyor,
		moderation: moderation,
		settings:   settings,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run выполняет тики до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Infof("worker started, poll interval %s", interval)
	for {
		w.Tick(ctx)

		select {
		case <-ctx.Done():
			w.logger.Infof("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick выполняет один проход. Ошибки логируются, следующий тик повторит работу.
func (w *Worker) Tick(ctx context.Context) {
	if err := w.settings.EnsureFresh(ctx, w.cfg.SettingsRefresh); err != nil {
		w.logger.Warnf("settings refresh failed, using previous snapshot: %v", err)
	}

	jobs := w.drain(ctx, "job", w.jobs.ConsumeNext)
	records := w.drain(ctx, "conveyor", w.conveyor.ProcessNext)
	if jobs+records > 0 {
		w.logger.Infof("tick: %d jobs consumed, %d records processed", jobs, records)
	}

	if !w.cfg.ModerationAutoFix || ctx.Err() != nil {
		return
	}

	batch := w.cfg.ModerationBatch
	if batch <= 0 {
		batch = 10
	}
	fixed, err := w.moderation.AutoFix(ctx, batch)
	if err != nil {
		w.logger.Errorf(err, "moderation auto fix failed")
		return
	}
	if fixed > 0 {
		w.logger.Infof("moderation auto fix: %d records resubmitted", fixed)
	}
}

func (w *Worker) drain(ctx context.Context, kind string, next func(context.Context) (bool, error)) int {
	done := 0
	for done < drainLimit && ctx.Err() == nil {
		worked, err := next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Errorf(err, "%s step failed", kind)
			}
			return done
		}
		if !worked {
			return done
		}
		done++
	}
	return done
}
