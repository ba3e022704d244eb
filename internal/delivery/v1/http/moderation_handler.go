package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
)

type ModerationHandler struct {
	moderationUsecase usecase.ModerationUC
	logger            logger.Logger
}

func NewModerationHandler(moderationUsecase usecase.ModerationUC, logger logger.Logger) *ModerationHandler {
	return &ModerationHandler{moderationUsecase: moderationUsecase, logger: logger}
}

type suggestFixRequest struct {
	ProductID       int64          `json:"product_id"`
	RejectionReason string         `json:"rejection_reason"`
	ProductData     map[string]any `json:"product_data"`
}

type suggestFixResponse struct {
	Analysis string             `json:"analysis"`
	Actions  []domain.FixAction `json:"actions"`
	Provider string             `json:"provider,omitempty"`
	Degraded bool               `json:"degraded,omitempty"`
	Debug    *suggestFixDebug   `json:"debug,omitempty"`
}

type suggestFixDebug struct {
	Attempts []attemptResponse `json:"attempts"`
}

type attemptResponse struct {
	Provider   string `json:"provider"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

// suggestFix принимает параметры из query (GET) или из JSON-тела (POST).
// Если ни один провайдер не ответил, отдаётся 503 с пустым списком действий и диагностикой.
func (m *ModerationHandler) suggestFix(w http.ResponseWriter, r *http.Request) {
	req, err := parseSuggestFix(w, r)
	if err != nil {
		respondError(m.logger, w, r, err, productContext(req.ProductID))
		return
	}

	res, err := m.moderationUsecase.SuggestFix(r.Context(), usecase.NewSuggestFixReq(req.ProductID, req.RejectionReason, req.ProductData))
	if err != nil {
		respondError(m.logger, w, r, err, productContext(req.ProductID))
		return
	}

	if res.Degraded {
		m.logger.Warnf("suggest-fix degraded for product %d: %d provider attempts failed", req.ProductID, len(res.Attempts))
		WriteSuccess(w, http.StatusServiceUnavailable, degradedResponse(res))
		return
	}

	actions := res.Suggestion.Actions
	if actions == nil {
		actions = []domain.FixAction{}
	}

	WriteSuccess(w, http.StatusOK, suggestFixResponse{
		Analysis: res.Suggestion.Analysis,
		Actions:  actions,
		Provider: res.Provider,
	})
}

func parseSuggestFix(w http.ResponseWriter, r *http.Request) (suggestFixRequest, error) {
	var req suggestFixRequest

	if r.Method == http.MethodPost {
		err := decodeJSON(w, r, &req)
		return req, err
	}

	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("product_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, e.Wrap(raw, e.ErrInvalidProductID)
		}
		req.ProductID = id
	}
	req.RejectionReason = q.Get("rejection_reason")

	return req, nil
}

func degradedResponse(res *usecase.SuggestFixRes) suggestFixResponse {
	attempts := make([]attemptResponse, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		attempts = append(attempts, attemptResponse{
			Provider:   a.Provider,
			Error:      a.Error,
			DurationMs: a.Duration.Milliseconds(),
		})
	}

	return suggestFixResponse{
		Analysis: "",
		Actions:  []domain.FixAction{},
		Degraded: true,
		Debug:    &suggestFixDebug{Attempts: attempts},
	}
}
