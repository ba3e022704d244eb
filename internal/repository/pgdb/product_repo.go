package pgdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

const productColumns = `
	id, name, brand, description, price, specs, conveyor_status,
	ms_created, stock_added, kaspi_created, kaspi_status, kaspi_details,
	moderation_retries, conveyor_log, created_at, updated_at`

// feedEligiblePredicate повторяет domain.ProductRecord.FeedEligible на стороне SQL.
const feedEligiblePredicate = `(kaspi_created OR lower(btrim(specs->>'is_in_feed')) IN ('true', '1', 'yes'))`

// ProductRepo реализует хранилище записей конвейера поверх PostgreSQL.
// Каждый переход состояния выполняется одним условным UPDATE, поэтому параллельные запросы не теряют изменений.
type ProductRepo struct {
	pool   *pgxpool.Pool
	conv   converter.ProductConverter
	getter *trmpgx.CtxGetter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool:   pool,
		conv:   conv,
		getter: trmpgx.DefaultCtxGetter,
	}
}

// db возвращает транзакцию из контекста, если она открыта, иначе пул.
func (p *ProductRepo) db(ctx context.Context) trmpgx.Tr {
	return p.getter.DefaultTrOrDB(ctx, p.pool)
}

func (p *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	rec, err := p.scanOne(p.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return rec, nil
}

// GetByIDForUpdate блокирует строку до конца транзакции из контекста.
// Вне транзакции блокировка снимается сразу после чтения.
func (p *ProductRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	rec, err := p.scanOne(p.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return rec, nil
}

func (p *ProductRepo) ListFeedEligible(ctx context.Context) ([]domain.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + feedEligiblePredicate + ` ORDER BY id`

	return p.queryRecords(ctx, query)
}

func (p *ProductRepo) ListRejected(ctx context.Context, maxRetries int, limit int) ([]domain.ProductRecord, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE kaspi_status = 'rejected' AND moderation_retries < $1
		ORDER BY id
		LIMIT $2
	`

	return p.queryRecords(ctx, query, maxRetries, limit)
}

// ForceSync сбрасывает запись в idle и все три вехи независимо от текущего статуса.
func (p *ProductRepo) ForceSync(ctx context.Context, id int64, logLine string) error {
	query := `
		UPDATE products SET
			conveyor_status = 'idle',
			ms_created = FALSE,
			stock_added = FALSE,
			kaspi_created = FALSE,
			conveyor_log = conveyor_log || $2,
			updated_at = NOW()
		WHERE id = $1
	`

	return p.execByID(ctx, query, id, logLine)
}

// MarkInFeed идемпотентна: строка журнала дописывается только при фактической смене состояния.
func (p *ProductRepo) MarkInFeed(ctx context.Context, id int64, logLine string) error {
	query := `
		UPDATE products SET
			conveyor_log = CASE
				WHEN kaspi_created AND conveyor_status = 'in_feed' THEN conveyor_log
				ELSE conveyor_log || $2
			END,
			kaspi_created = TRUE,
			conveyor_status = 'in_feed',
			updated_at = NOW()
		WHERE id = $1
	`

	return p.execByID(ctx, query, id, logLine)
}

func (p *ProductRepo) Enqueue(ctx context.Context, id int64, logLine string) error {
	query := `
		UPDATE products SET
			conveyor_status = 'pending',
			conveyor_log = conveyor_log || $2,
			updated_at = NOW()
		WHERE id = $1 AND (conveyor_status IS NULL OR conveyor_status = 'idle')
	`

	tag, err := p.db(ctx).Exec(ctx, query, id, logLine)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return p.missingOr(ctx, id, e.ErrInvalidStatusShift)
	}

	return nil
}

// RecordRejection фиксирует отказ модерации. Закрытую запись повторно не открывает.
func (p *ProductRepo) RecordRejection(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE products SET
			kaspi_status = 'rejected',
			kaspi_details = $2,
			updated_at = NOW()
		WHERE id = $1 AND kaspi_status IS DISTINCT FROM 'closed'
	`

	tag, err := p.db(ctx).Exec(ctx, query, id, reason)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return p.missingOr(ctx, id, e.ErrRetryLimitReached)
	}

	return nil
}

// ApplyColumnFix меняет одну колонку из белого списка и возвращает запись на модерацию.
func (p *ProductRepo) ApplyColumnFix(ctx context.Context, id int64, field domain.FixField, value string) error {
	var column string
	switch field {
	case domain.FixFieldName:
		column = "name"
	case domain.FixFieldBrand:
		column = "brand"
	case domain.FixFieldDescription:
		column = "description"
	default:
		return e.Wrap(whereami.WhereAmI(), e.ErrFieldNotAllowed)
	}

	query := fmt.Sprintf(`
		UPDATE products SET
			%s = $2,
			kaspi_status = 'pending',
			kaspi_details = '',
			updated_at = NOW()
		WHERE id = $1 AND kaspi_status IS DISTINCT FROM 'closed'
	`, column)

	return p.execWhileOpen(ctx, query, id, value)
}

// ApplySpecsFix записывает specs целиком. Вызывается внутри транзакции после GetByIDForUpdate.
func (p *ProductRepo) ApplySpecsFix(ctx context.Context, id int64, specs domain.Specs) error {
	data, err := specs.MarshalJSON()
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE products SET
			specs = $2::jsonb,
			kaspi_status = 'pending',
			kaspi_details = '',
			updated_at = NOW()
		WHERE id = $1 AND kaspi_status IS DISTINCT FROM 'closed'
	`

	return p.execWhileOpen(ctx, query, id, string(data))
}

func (p *ProductRepo) ResetForResubmit(ctx context.Context, id int64) error {
	query := `
		UPDATE products SET
			kaspi_status = 'pending',
			kaspi_details = '',
			updated_at = NOW()
		WHERE id = $1 AND kaspi_status IS DISTINCT FROM 'closed'
	`

	return p.execWhileOpen(ctx, query, id)
}

// RegisterModerationCycle увеличивает счётчик и при достижении лимита закрывает запись тем же UPDATE.
func (p *ProductRepo) RegisterModerationCycle(ctx context.Context, id int64, limit int, closedSummary string) (*usecase.ModerationCycleRes, error) {
	query := `
		UPDATE products SET
			moderation_retries = moderation_retries + 1,
			kaspi_status = CASE WHEN moderation_retries + 1 >= $2 THEN 'closed' ELSE kaspi_status END,
			kaspi_details = CASE WHEN moderation_retries + 1 >= $2 THEN $3 ELSE kaspi_details END,
			specs = CASE
				WHEN moderation_retries + 1 >= $2 THEN specs || '{"is_closed": true}'::jsonb
				ELSE specs
			END,
			updated_at = NOW()
		WHERE id = $1 AND kaspi_status IS DISTINCT FROM 'closed'
		RETURNING moderation_retries, kaspi_status
	`

	var (
		retries int
		status  *string
	)
	err := p.db(ctx).QueryRow(ctx, query, id, limit, closedSummary).Scan(&retries, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, p.missingOr(ctx, id, e.ErrRetryLimitReached)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return usecase.NewModerationCycleRes(retries, domain.KaspiStatus(converter.ConvertStringPointer(status))), nil
}

// ClaimPending забирает самую старую pending-запись. Параллельные воркеры пропускают заблокированные строки.
func (p *ProductRepo) ClaimPending(ctx context.Context) (*domain.ProductRecord, error) {
	query := `
		UPDATE products SET
			conveyor_status = 'processing',
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM products
			WHERE conveyor_status = 'pending'
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + productColumns

	rec, err := p.scanOne(p.db(ctx).QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return rec, nil
}

func (p *ProductRepo) CompleteStage(ctx context.Context, id int64, stage domain.ConveyorStage, logLine string) (bool, error) {
	var set string
	switch stage {
	case domain.StageERPCreate:
		set = "ms_created = TRUE"
	case domain.StageStock:
		set = "stock_added = TRUE"
	case domain.StageKaspiCard:
		set = "kaspi_created = TRUE, kaspi_status = 'pending'"
	default:
		return false, e.Wrap(whereami.WhereAmI(), fmt.Errorf("unknown conveyor stage %q", stage))
	}

	query := fmt.Sprintf(`
		UPDATE products SET
			%s,
			conveyor_log = conveyor_log || $2,
			updated_at = NOW()
		WHERE id = $1 AND conveyor_status = 'processing'
	`, set)

	return p.execWhileProcessing(ctx, query, id, logLine)
}

func (p *ProductRepo) FinishConveyor(ctx context.Context, id int64, status domain.ConveyorStatus, logLine string) (bool, error) {
	query := `
		UPDATE products SET
			conveyor_status = $3,
			conveyor_log = conveyor_log || $2,
			updated_at = NOW()
		WHERE id = $1 AND conveyor_status = 'processing'
	`

	return p.execWhileProcessing(ctx, query, id, logLine, string(status))
}

// InsertDiscovered вставляет найденные товары одним батчем. Имя уникально, дубликаты пропускаются.
func (p *ProductRepo) InsertDiscovered(ctx context.Context, records []*domain.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO products (name, brand, description, price, specs, conveyor_status)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (name) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		model, err := p.conv.ToModel(rec)
		if err != nil {
			return 0, e.Wrap(whereami.WhereAmI(), err)
		}
		batch.Queue(query, model.Name, model.Brand, model.Description, model.Price, string(model.Specs), model.ConveyorStatus)
	}

	br := p.db(ctx).SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range records {
		tag, err := br.Exec()
		if err != nil {
			return inserted, e.Wrap(whereami.WhereAmI(), err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

func (p *ProductRepo) Stats(ctx context.Context) (*usecase.ProductStats, error) {
	query := `
		SELECT
			COALESCE(conveyor_status, 'idle'),
			COALESCE(kaspi_status, ''),
			COUNT(*),
			COUNT(*) FILTER (WHERE ` + feedEligiblePredicate + `)
		FROM products
		GROUP BY 1, 2
	`

	rows, err := p.db(ctx).Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	stats := usecase.NewProductStats()
	for rows.Next() {
		var (
			conveyor, kaspi string
			count, eligible int64
		)
		if err := rows.Scan(&conveyor, &kaspi, &count, &eligible); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		stats.Total += count
		stats.FeedEligible += eligible
		stats.ByConveyorStatus[domain.ConveyorStatus(conveyor)] += count
		stats.ByKaspiStatus[domain.KaspiStatus(kaspi)] += count
		if domain.KaspiStatus(kaspi) == domain.KaspiStatusClosed {
			stats.Closed += count
		}
		if domain.ConveyorStatus(conveyor) == domain.ConveyorError {
			stats.Errors += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return stats, nil
}

// execByID выполняет UPDATE по id и возвращает ErrProductNotFound, если строка не найдена.
func (p *ProductRepo) execByID(ctx context.Context, query string, id int64, args ...any) error {
	tag, err := p.db(ctx).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return nil
}

// execWhileOpen выполняет UPDATE с условием на незакрытую модерацию; ноль строк означает либо отсутствие записи, либо закрытие.
func (p *ProductRepo) execWhileOpen(ctx context.Context, query string, id int64, args ...any) error {
	tag, err := p.db(ctx).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return p.missingOr(ctx, id, e.ErrRetryLimitReached)
	}

	return nil
}

func (p *ProductRepo) execWhileProcessing(ctx context.Context, query string, id int64, args ...any) (bool, error) {
	tag, err := p.db(ctx).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return false, e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		if err := p.missingOr(ctx, id, nil); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// missingOr различает «записи нет» и «запись не в том состоянии» после UPDATE без затронутых строк.
func (p *ProductRepo) missingOr(ctx context.Context, id int64, stateErr error) error {
	var exists bool
	if err := p.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}
	if stateErr == nil {
		return nil
	}

	return e.Wrap(whereami.WhereAmI(), stateErr)
}

func (p *ProductRepo) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ProductRecord, error) {
	rows, err := p.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.ProductRecord, 0)
	for rows.Next() {
		rec, err := p.scanOne(rows)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

func (p *ProductRepo) scanOne(row pgx.Row) (*domain.ProductRecord, error) {
	var m converter.ProductModel
	err := row.Scan(
		&m.ID, &m.Name, &m.Brand, &m.Description, &m.Price, &m.Specs, &m.ConveyorStatus,
		&m.MSCreated, &m.StockAdded, &m.KaspiCreated, &m.KaspiStatus, &m.KaspiDetails,
		&m.ModerationRetries, &m.ConveyorLog, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return p.conv.ToEntity(&m), nil
}
