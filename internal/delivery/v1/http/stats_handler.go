package http

import (
	"net/http"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// StatsHandler отдаёт статистику, состояние конвейера и runtime-настройки.
type StatsHandler struct {
	statsUsecase    usecase.StatsUC
	settingsUsecase usecase.SettingsUC
	logger          logger.Logger
}

func NewStatsHandler(statsUsecase usecase.StatsUC, settingsUsecase usecase.SettingsUC, logger logger.Logger) *StatsHandler {
	return &StatsHandler{statsUsecase: statsUsecase, settingsUsecase: settingsUsecase, logger: logger}
}

type statsResponse struct {
	Total            int64                           `json:"total"`
	ByConveyorStatus map[domain.ConveyorStatus]int64 `json:"by_conveyor_status"`
	ByKaspiStatus    map[domain.KaspiStatus]int64    `json:"by_kaspi_status"`
	FeedEligible     int64                           `json:"feed_eligible"`
	Closed           int64                           `json:"closed"`
	Errors           int64                           `json:"errors"`
	Running          bool                            `json:"running"`
}

type healthResponse struct {
	Status       string    `json:"status"`
	Running      bool      `json:"running"`
	LatestStatus string    `json:"latest_status,omitempty"`
	LatestLog    string    `json:"latest_log,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

type settingsDTO struct {
	RetailDivisor     *float64 `json:"retail_divisor,omitempty"`
	MinOfferPrice     *int64   `json:"min_offer_price,omitempty"`
	CommissionPercent *float64 `json:"commission_percent,omitempty"`
	TaxPercent        *float64 `json:"tax_percent,omitempty"`
	LogisticsCost     *int64   `json:"logistics_cost,omitempty"`
	StoreID           *string  `json:"store_id,omitempty"`
	MerchantID        *string  `json:"merchant_id,omitempty"`
	CompanyName       *string  `json:"company_name,omitempty"`
	DefaultStock      *int     `json:"default_stock,omitempty"`
	SKUOrder          *string  `json:"sku_order,omitempty"`
	DefaultCategory   *string  `json:"default_category,omitempty"`
}

func (s *StatsHandler) stats(w http.ResponseWriter, r *http.Request) {
	res, err := s.statsUsecase.Stats(r.Context())
	if err != nil {
		respondError(s.logger, w, r, err, nil)
		return
	}

	p := res.Products
	WriteSuccess(w, http.StatusOK, statsResponse{
		Total:            p.Total,
		ByConveyorStatus: p.ByConveyorStatus,
		ByKaspiStatus:    p.ByKaspiStatus,
		FeedEligible:     p.FeedEligible,
		Closed:           p.Closed,
		Errors:           p.Errors,
		Running:          res.Running,
	})
}

// health отвечает 200 в любом состоянии конвейера; 503 только если не удалось прочитать хранилище.
func (s *StatsHandler) health(w http.ResponseWriter, r *http.Request) {
	res, err := s.statsUsecase.Health(r.Context())
	if err != nil {
		respondError(s.logger, w, r, err, nil)
		return
	}

	status := http.StatusOK
	if res.Status != usecase.HealthOK && res.Status != usecase.HealthDegraded {
		status = http.StatusServiceUnavailable
	}

	WriteSuccess(w, status, healthResponse{
		Status:       res.Status,
		Running:      res.Running,
		LatestStatus: string(res.LatestStatus),
		LatestLog:    res.LatestLog,
		CheckedAt:    res.CheckedAt,
	})
}

func (s *StatsHandler) getSettings(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, toSettingsDTO(s.settingsUsecase.Get()))
}

// updateSettings принимает частичный набор полей; отсутствующие поля не меняются.
func (s *StatsHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(s.logger, w, r, err, nil)
		return
	}

	updated, err := s.settingsUsecase.Update(r.Context(), req.toPatch())
	if err != nil {
		respondError(s.logger, w, r, err, nil)
		return
	}

	WriteSuccess(w, http.StatusOK, toSettingsDTO(updated))
}

func (d settingsDTO) toPatch() domain.SettingsPatch {
	patch := domain.SettingsPatch{
		RetailDivisor:     d.RetailDivisor,
		MinOfferPrice:     d.MinOfferPrice,
		CommissionPercent: d.CommissionPercent,
		TaxPercent:        d.TaxPercent,
		LogisticsCost:     d.LogisticsCost,
		StoreID:           d.StoreID,
		MerchantID:        d.MerchantID,
		CompanyName:       d.CompanyName,
		DefaultStock:      d.DefaultStock,
		DefaultCategory:   d.DefaultCategory,
	}
	if d.SKUOrder != nil {
		order := domain.SKUOrder(*d.SKUOrder)
		patch.SKUOrder = &order
	}
	return patch
}

func toSettingsDTO(s domain.Settings) settingsDTO {
	order := string(s.SKUOrder)
	return settingsDTO{
		RetailDivisor:     &s.RetailDivisor,
		MinOfferPrice:     &s.MinOfferPrice,
		CommissionPercent: &s.CommissionPercent,
		TaxPercent:        &s.TaxPercent,
		LogisticsCost:     &s.LogisticsCost,
		StoreID:           &s.StoreID,
		MerchantID:        &s.MerchantID,
		CompanyName:       &s.CompanyName,
		DefaultStock:      &s.DefaultStock,
		SKUOrder:          &order,
		DefaultCategory:   &s.DefaultCategory,
	}
}
