package converter

import "time"

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	ID                int64      `db:"id"`
	Name              string     `db:"name"`
	Brand             string     `db:"brand"`
	Description       string     `db:"description"`
	Price             int64      `db:"price"`
	Specs             []byte     `db:"specs"`
	ConveyorStatus    *string    `db:"conveyor_status"`
	MSCreated         bool       `db:"ms_created"`
	StockAdded        bool       `db:"stock_added"`
	KaspiCreated      bool       `db:"kaspi_created"`
	KaspiStatus       *string    `db:"kaspi_status"`
	KaspiDetails      string     `db:"kaspi_details"`
	ModerationRetries int        `db:"moderation_retries"`
	ConveyorLog       string     `db:"conveyor_log"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at"`
}

// JobModel представляет запись таблицы jobs в PostgreSQL.
type JobModel struct {
	ID        int64     `db:"id"`
	Mode      string    `db:"mode"`
	Query     string    `db:"query"`
	Page      int       `db:"page"`
	Status    string    `db:"status"`
	Log       string    `db:"log"`
	CreatedAt time.Time `db:"created_at"`
}

// SettingModel представляет запись таблицы settings в PostgreSQL.
type SettingModel struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
