package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

const defaultJobsLimit = 50

// JobUseCase — очередь заданий discovery и её потребитель.
type JobUseCase struct {
	jobRepo     JobRepository
	productRepo ProductRepository
	discovery   DiscoveryGateway
	publisher   EventPublisher
	metrics     MetricsRecorder
	logger      logger.Logger
}

func NewJobUC(
	jobRepo JobRepository,
	productRepo ProductRepository,
	discovery DiscoveryGateway,
	publisher EventPublisher,
	metrics MetricsRecorder,
	logger logger.Logger,
) *JobUseCase {
	return &JobUseCase{
		jobRepo:     jobRepo,
		productRepo: productRepo,
		discovery:   discovery,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
	}
}

// Enqueue добавляет задание в статусе pending. Одинаковые запросы не схлопываются.
func (j *JobUseCase) Enqueue(ctx context.Context, req *EnqueueJobReq) (*domain.Job, error) {
	const op = "JobUseCase.Enqueue"

	if !req.Mode.Valid() {
		return nil, e.Wrap(op, e.ErrInvalidJobMode)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, e.Wrap(op, e.ErrMissingQuery)
	}
	if req.Page <= 0 {
		return nil, e.Wrap(op, e.ErrInvalidPage)
	}

	job := domain.NewJob(req.Mode, query, req.Page)
	job.Log = domain.LogLine(time.Now(), "queued: mode=%s query=%q page=%d", req.Mode, query, req.Page)

	created, err := j.jobRepo.Create(ctx, job)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	j.publish(ctx, NewJobEvent(EventJobEnqueued, created.ID, map[string]any{
		"mode":  string(created.Mode),
		"query": created.Query,
		"page":  created.Page,
	}))
	return created, nil
}

// Status возвращает последние задания; конвейер считается запущенным, пока есть pending или processing.
func (j *JobUseCase) Status(ctx context.Context, limit int) (*JobsStatusRes, error) {
	const op = "JobUseCase.Status"

	if limit <= 0 {
		limit = defaultJobsLimit
	}

	running, err := j.jobRepo.HasActive(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	latest, err := j.jobRepo.Latest(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	jobs, err := j.jobRepo.List(ctx, limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return &JobsStatusRes{Running: running, Latest: latest, Jobs: jobs}, nil
}

// Stop переводит все pending-задания в stopped. Задание в processing доработает до конца.
func (j *JobUseCase) Stop(ctx context.Context) (*StopJobsRes, error) {
	const op = "JobUseCase.Stop"

	stopped, err := j.jobRepo.StopPending(ctx, domain.LogLine(time.Now(), "stopped by operator before processing"))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if stopped > 0 {
		j.publish(ctx, NewJobEvent(EventJobsStopped, 0, map[string]any{"stopped": stopped}))
	}
	return &StopJobsRes{Stopped: stopped}, nil
}

// ConsumeNext забирает самое старое pending-задание и выполняет discovery.
// Возвращает false, если очередь пуста.
func (j *JobUseCase) ConsumeNext(ctx context.Context) (bool, error) {
	const op = "JobUseCase.ConsumeNext"

	job, err := j.jobRepo.ClaimPending(ctx)
	if err != nil {
		return false, e.Wrap(op, err)
	}
	if job == nil {
		return false, nil
	}

	log := j.logger.With("job_id", job.ID)
	log.Infof("job claimed: mode=%s query=%q page=%d", job.Mode, job.Query, job.Page)

	items, err := j.discovery.Discover(ctx, job.Query, job.Page)
	if err != nil {
		log.Errorf(err, "discovery failed")
		return true, j.finish(ctx, job, domain.LogLine(time.Now(), "discovery failed: %v", err))
	}

	if err := j.jobRepo.AppendLog(ctx, job.ID, domain.LogLine(time.Now(), "discovered %d items", len(items))); err != nil {
		return true, e.Wrap(op, err)
	}

	records := make([]*domain.ProductRecord, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		records = append(records, domain.NewProductRecord(
			name, strings.TrimSpace(item.Brand), item.Description, item.Price, item.Specs, job.Mode.InitialConveyorStatus(),
		))
	}

	inserted, err := j.productRepo.InsertDiscovered(ctx, records)
	if err != nil {
		log.Errorf(err, "saving discovered items failed")
		return true, j.finish(ctx, job, domain.LogLine(time.Now(), "saving discovered items failed: %v", err))
	}

	line := domain.LogLine(time.Now(), "inserted %d new products (%d already known) with status %s",
		inserted, len(records)-inserted, job.Mode.InitialConveyorStatus())
	return true, j.finish(ctx, job, line)
}

func (j *JobUseCase) finish(ctx context.Context, job *domain.Job, line string) error {
	if err := j.jobRepo.Finish(ctx, job.ID, domain.JobDone, line); err != nil {
		return e.Wrap("JobUseCase.finish", err)
	}

	j.metrics.JobFinished(domain.JobDone)
	j.publish(ctx, NewJobEvent(EventJobFinished, job.ID, map[string]any{"log": strings.TrimSpace(line)}))
	return nil
}

func (j *JobUseCase) publish(ctx context.Context, event *ConveyorEvent) {
	if err := j.publisher.Publish(ctx, event); err != nil {
		j.logger.Warnf("failed to publish %s event: %v", event.Type, err)
	}
}
