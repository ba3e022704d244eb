package domain

import (
	"fmt"
	"strconv"
	"time"
)

// ConveyorStatus — стадия товара на конвейере синхронизации.
type ConveyorStatus string

const (
	ConveyorIdle       ConveyorStatus = "idle"
	ConveyorPending    ConveyorStatus = "pending"
	ConveyorProcessing ConveyorStatus = "processing"
	ConveyorDone       ConveyorStatus = "done"
	ConveyorError      ConveyorStatus = "error"
	ConveyorInFeed     ConveyorStatus = "in_feed"
)

// KaspiStatus — состояние модерации карточки на маркетплейсе. Пустое значение соответствует NULL.
type KaspiStatus string

const (
	KaspiStatusNone     KaspiStatus = ""
	KaspiStatusPending  KaspiStatus = "pending"
	KaspiStatusRejected KaspiStatus = "rejected"
	KaspiStatusClosed   KaspiStatus = "closed"
)

// MaxModerationRetries — потолок автоматических повторных отправок на модерацию.
const MaxModerationRetries = 3

// ProductRecord описывает каноническое состояние товара на конвейере.
type ProductRecord struct {
	ID                int64
	Name              string
	Brand             string
	Description       string
	Price             int64 // закупочная цена в целых единицах валюты
	Specs             Specs
	ConveyorStatus    ConveyorStatus
	MSCreated         bool
	StockAdded        bool
	KaspiCreated      bool
	KaspiStatus       KaspiStatus
	KaspiDetails      string
	ModerationRetries int
	ConveyorLog       string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// FeedEligible сообщает, должен ли товар попасть в XML-фид.
// Отклонённые модерацией, но созданные карточки тоже попадают в фид.
func (p *ProductRecord) FeedEligible() bool {
	return p.KaspiCreated || p.Specs.IsInFeed
}

// Article — артикул товара в ERP. Конвейер создаёт товар в ERP с артикулом, равным внутреннему id.
func (p *ProductRecord) Article() string {
	return strconv.FormatInt(p.ID, 10)
}

// EffectiveConveyorStatus трактует NULL/пустой статус как idle.
func (p *ProductRecord) EffectiveConveyorStatus() ConveyorStatus {
	if p.ConveyorStatus == "" {
		return ConveyorIdle
	}
	return p.ConveyorStatus
}

// NewProductRecord создаёт запись, найденную на этапе discovery.
func NewProductRecord(name, brand, description string, price int64, specs Specs, status ConveyorStatus) *ProductRecord {
	return &ProductRecord{
		Name:           name,
		Brand:          brand,
		Description:    description,
		Price:          price,
		Specs:          specs,
		ConveyorStatus: status,
	}
}

// LogLine формирует строку журнала конвейера с отметкой времени.
func LogLine(now time.Time, format string, args ...any) string {
	return fmt.Sprintf("[%s] %s\n", now.Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
}

// ConveyorStage — этап конвейера, каждому соответствует свой флаг-веха.
type ConveyorStage string

const (
	StageERPCreate ConveyorStage = "erp_create" // ms_created
	StageStock     ConveyorStage = "stock"      // stock_added
	StageKaspiCard ConveyorStage = "kaspi_card" // kaspi_created
)

// ConveyorStages — порядок выполнения этапов.
var ConveyorStages = []ConveyorStage{StageERPCreate, StageStock, StageKaspiCard}

// StageDone сообщает, пройден ли этап для записи.
func (p *ProductRecord) StageDone(stage ConveyorStage) bool {
	switch stage {
	case StageERPCreate:
		return p.MSCreated
	case StageStock:
		return p.StockAdded
	case StageKaspiCard:
		return p.KaspiCreated
	}
	return false
}
