package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// StatsUseCase — производные представления только для чтения.
type StatsUseCase struct {
	productRepo ProductRepository
	jobRepo     JobRepository
	logger      logger.Logger
}

func NewStatsUC(productRepo ProductRepository, jobRepo JobRepository, logger logger.Logger) *StatsUseCase {
	return &StatsUseCase{
		productRepo: productRepo,
		jobRepo:     jobRepo,
		logger:      logger,
	}
}

func (s *StatsUseCase) Stats(ctx context.Context) (*StatsRes, error) {
	const op = "StatsUseCase.Stats"

	products, err := s.productRepo.Stats(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	running, err := s.jobRepo.HasActive(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return &StatsRes{Products: products, Running: running}, nil
}

// Health не возвращает ошибку: недоступность хранилища отражается статусом degraded.
func (s *StatsUseCase) Health(ctx context.Context) (*HealthRes, error) {
	const op = "StatsUseCase.Health"

	res := &HealthRes{Status: HealthOK, CheckedAt: time.Now().UTC()}

	running, err := s.jobRepo.HasActive(ctx)
	if err != nil {
		s.logger.Warnf("health check failed: %v", e.Wrap(op, err))
		res.Status = HealthDegraded
		return res, nil
	}
	res.Running = running

	latest, err := s.jobRepo.Latest(ctx)
	if err != nil {
		s.logger.Warnf("health check failed: %v", e.Wrap(op, err))
		res.Status = HealthDegraded
		return res, nil
	}
	if latest != nil {
		res.LatestStatus = latest.Status
		res.LatestLog = latest.Log
	}

	return res, nil
}
