package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
)

const fixPromptTemplate = `Marketplace moderation rejected a product card.
Rejection reason: %s

Product data (JSON):
%s

Answer with a single JSON object and nothing else:
{"analysis": "<short explanation>", "actions": [{"label": "<button text>", "type": "update_field", "payload": {"field": "<one of: %s>", "value": "<new value>"}}]}`

// buildFixPrompt формирует запрос к провайдеру подсказок.
func buildFixPrompt(reason string, product map[string]any) (string, error) {
	data, err := json.MarshalIndent(product, "", "  ")
	if err != nil {
		return "", err
	}

	fields := []string{
		string(domain.FixFieldName),
		string(domain.FixFieldDescription),
		string(domain.FixFieldBrand),
		string(domain.FixFieldKaspiCategoryID),
	}

	return fmt.Sprintf(fixPromptTemplate, reason, data, strings.Join(fields, ", ")), nil
}

// productSnapshot — данные записи, которые видит провайдер подсказок.
func productSnapshot(rec *domain.ProductRecord) map[string]any {
	specs := make(map[string]any, len(rec.Specs.Keys()))
	for _, k := range rec.Specs.Keys() {
		raw, _ := rec.Specs.Raw(k)
		specs[k] = raw
	}

	return map[string]any{
		"id":          rec.ID,
		"name":        rec.Name,
		"brand":       rec.Brand,
		"description": rec.Description,
		"price":       rec.Price,
		"specs":       specs,
	}
}

// parseSuggestion разбирает ответ провайдера. Ответ без JSON-объекта с массивом actions считается ошибкой провайдера.
// Действия неподдерживаемого типа, с полем вне белого списка или без значения отбрасываются.
func parseSuggestion(raw string) (domain.FixSuggestion, error) {
	body := stripCodeFence(raw)

	var aux struct {
		Analysis *string          `json:"analysis"`
		Actions  *json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal([]byte(body), &aux); err != nil {
		return domain.FixSuggestion{}, fmt.Errorf("%w: %v", e.ErrMalformedSuggestion, err)
	}
	if aux.Actions == nil {
		return domain.FixSuggestion{}, fmt.Errorf("%w: actions are missing", e.ErrMalformedSuggestion)
	}

	var rawActions []json.RawMessage
	if err := json.Unmarshal(*aux.Actions, &rawActions); err != nil {
		return domain.FixSuggestion{}, fmt.Errorf("%w: actions must be an array", e.ErrMalformedSuggestion)
	}

	suggestion := domain.FixSuggestion{Actions: make([]domain.FixAction, 0, len(rawActions))}
	if aux.Analysis != nil {
		suggestion.Analysis = strings.TrimSpace(*aux.Analysis)
	}

	for _, item := range rawActions {
		var action domain.FixAction
		if err := json.Unmarshal(item, &action); err != nil {
			continue
		}
		action.Type = strings.TrimSpace(action.Type)
		if action.Type != domain.ActionUpdateField || !action.Payload.Field.Allowed() {
			continue
		}
		if strings.TrimSpace(action.Payload.Value) == "" {
			continue
		}
		suggestion.Actions = append(suggestion.Actions, action)
	}

	return suggestion, nil
}

// stripCodeFence убирает markdown-обёртку ```json ... ``` и текст вокруг объекта.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// closedSummary — текст kaspi_details для записи, закрытой по лимиту попыток.
func closedSummary(limit int, lastReason string) string {
	reason := strings.TrimSpace(lastReason)
	if reason == "" {
		reason = "not provided"
	}
	return fmt.Sprintf("moderation closed after %d attempts; last rejection reason: %s", limit, reason)
}
