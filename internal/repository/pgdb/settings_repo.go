package pgdb

import (
	"context"

	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// SettingsRepo хранит runtime-настройки в таблице settings (ключ → значение).
type SettingsRepo struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

func (s *SettingsRepo) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.getter.DefaultTrOrDB(ctx, s.pool).Query(ctx, `SELECT key, value, updated_at FROM settings`)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var m converter.SettingModel
		if err := rows.Scan(&m.Key, &m.Value, &m.UpdatedAt); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		result[m.Key] = m.Value
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// Save записывает значения одним батчем.
func (s *SettingsRepo) Save(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for key, value := range values {
		batch.Queue(query, key, value)
	}

	br := s.getter.DefaultTrOrDB(ctx, s.pool).SendBatch(ctx, batch)
	defer br.Close()

	for range values {
		if _, err := br.Exec(); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}
