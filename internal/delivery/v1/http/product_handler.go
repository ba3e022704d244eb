package http

import (
	"net/http"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

// ProductHandler обслуживает операции над отдельной записью: конвейер и цикл модерации.
type ProductHandler struct {
	conveyorUsecase   usecase.ConveyorUC
	moderationUsecase usecase.ModerationUC
	logger            logger.Logger
}

func NewProductHandler(conveyorUsecase usecase.ConveyorUC, moderationUsecase usecase.ModerationUC, logger logger.Logger) *ProductHandler {
	return &ProductHandler{conveyorUsecase: conveyorUsecase, moderationUsecase: moderationUsecase, logger: logger}
}

type applyFixRequest struct {
	ActionType string            `json:"action_type"`
	Payload    domain.FixPayload `json:"payload"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type moderationResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
	Retries int   `json:"retries"`
	Closed  bool  `json:"closed"`
}

type pricingResponse struct {
	ProductID  int64 `json:"product_id"`
	Cost       int64 `json:"cost"`
	Retail     int64 `json:"retail"`
	Commission int64 `json:"commission"`
	Tax        int64 `json:"tax"`
	Logistics  int64 `json:"logistics"`
	Margin     int64 `json:"margin"`
}

// forceSync сбрасывает этапы конвейера и возвращает запись в idle.
func (p *ProductHandler) forceSync(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	if err := p.conveyorUsecase.ForceSync(r.Context(), id); err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      id,
	})
}

func (p *ProductHandler) markInFeed(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	if err := p.conveyorUsecase.MarkInFeed(r.Context(), id); err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]any{"success": true})
}

func (p *ProductHandler) queue(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	if err := p.conveyorUsecase.Queue(r.Context(), id); err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]any{"success": true})
}

func (p *ProductHandler) pricing(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	res, err := p.conveyorUsecase.Pricing(r.Context(), id)
	if err != nil {
		p.fail(w, r, id, err)
		return
	}

	b := res.Breakdown
	WriteSuccess(w, http.StatusOK, pricingResponse{
		ProductID:  res.ProductID,
		Cost:       b.Cost,
		Retail:     b.Retail,
		Commission: b.Commission,
		Tax:        b.Tax,
		Logistics:  b.Logistics,
		Margin:     b.Margin,
	})
}

// applyFix применяет одно действие из подсказки. Поле вне allow-list отклоняется без изменений в базе.
func (p *ProductHandler) applyFix(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	var req applyFixRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.fail(w, r, id, err)
		return
	}

	res, err := p.moderationUsecase.ApplyFix(r.Context(), usecase.NewApplyFixReq(id, req.ActionType, req.Payload.Field, req.Payload.Value))
	if err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toModerationResponse(res))
}

func (p *ProductHandler) resubmit(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	res, err := p.moderationUsecase.Resubmit(r.Context(), id)
	if err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toModerationResponse(res))
}

// reject фиксирует отказ модерации, полученный от маркетплейса.
func (p *ProductHandler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		p.fail(w, r, 0, err)
		return
	}

	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		p.fail(w, r, id, err)
		return
	}

	if err := p.moderationUsecase.RecordRejection(r.Context(), id, req.Reason); err != nil {
		p.fail(w, r, id, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]any{"success": true})
}

func (p *ProductHandler) fail(w http.ResponseWriter, r *http.Request, id int64, err error) {
	respondError(p.logger, w, r, err, productContext(id))
}

func toModerationResponse(res *usecase.ApplyFixRes) moderationResponse {
	return moderationResponse{
		Success: true,
		ID:      res.ProductID,
		Retries: res.Retries,
		Closed:  res.Closed,
	}
}
