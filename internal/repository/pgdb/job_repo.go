package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

const jobColumns = `id, mode, query, page, status, log, created_at`

// JobRepo — очередь заданий discovery в таблице jobs.
type JobRepo struct {
	pool   *pgxpool.Pool
	conv   converter.JobConverter
	getter *trmpgx.CtxGetter
}

func NewJobRepo(pool *pgxpool.Pool, conv converter.JobConverter) *JobRepo {
	return &JobRepo{
		pool:   pool,
		conv:   conv,
		getter: trmpgx.DefaultCtxGetter,
	}
}

func (j *JobRepo) db(ctx context.Context) trmpgx.Tr {
	return j.getter.DefaultTrOrDB(ctx, j.pool)
}

func (j *JobRepo) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO jobs (mode, query, page, status, log)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + jobColumns

	model := j.conv.ToModel(job)
	created, err := j.scanOne(j.db(ctx).QueryRow(ctx, query, model.Mode, model.Query, model.Page, model.Status, model.Log))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return created, nil
}

// List возвращает последние задания, новые первыми.
func (j *JobRepo) List(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := j.db(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := j.scanOne(rows)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		result = append(result, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

func (j *JobRepo) Latest(ctx context.Context) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC LIMIT 1`

	job, err := j.scanOne(j.db(ctx).QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return job, nil
}

// HasActive сообщает, есть ли задание в статусе pending или processing.
func (j *JobRepo) HasActive(ctx context.Context) (bool, error) {
	var active bool
	query := `SELECT EXISTS (SELECT 1 FROM jobs WHERE status IN ('pending', 'processing'))`
	if err := j.db(ctx).QueryRow(ctx, query).Scan(&active); err != nil {
		return false, e.Wrap(whereami.WhereAmI(), err)
	}

	return active, nil
}

// StopPending останавливает только ожидающие задания. Выполняющееся задание доработает до конца.
func (j *JobRepo) StopPending(ctx context.Context, logLine string) (int64, error) {
	query := `
		UPDATE jobs SET
			status = 'stopped',
			log = log || $1,
			updated_at = NOW()
		WHERE status = 'pending'
	`

	tag, err := j.db(ctx).Exec(ctx, query, logLine)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return tag.RowsAffected(), nil
}

func (j *JobRepo) ClaimPending(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE jobs SET
			status = 'processing',
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := j.scanOne(j.db(ctx).QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return job, nil
}

func (j *JobRepo) AppendLog(ctx context.Context, id int64, logLine string) error {
	query := `UPDATE jobs SET log = log || $2, updated_at = NOW() WHERE id = $1`

	tag, err := j.db(ctx).Exec(ctx, query, id, logLine)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrJobNotFound)
	}

	return nil
}

func (j *JobRepo) Finish(ctx context.Context, id int64, status domain.JobStatus, logLine string) error {
	query := `UPDATE jobs SET status = $2, log = log || $3, updated_at = NOW() WHERE id = $1`

	tag, err := j.db(ctx).Exec(ctx, query, id, string(status), logLine)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrJobNotFound)
	}

	return nil
}

func (j *JobRepo) scanOne(row pgx.Row) (*domain.Job, error) {
	var m converter.JobModel
	if err := row.Scan(&m.ID, &m.Mode, &m.Query, &m.Page, &m.Status, &m.Log, &m.CreatedAt); err != nil {
		return nil, err
	}

	return j.conv.ToEntity(&m), nil
}
