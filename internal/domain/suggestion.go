package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ActionUpdateField — единственный поддерживаемый тип действия исправления.
const ActionUpdateField = "update_field"

// FixField — поле товара, которое может изменить исправление модерации.
type FixField string

const (
	FixFieldName            FixField = "name"
	FixFieldDescription     FixField = "description"
	FixFieldBrand           FixField = "brand"
	FixFieldKaspiCategoryID FixField = "kaspi_category_id"
)

var allowedFixFields = map[FixField]struct{}{
	FixFieldName:            {},
	FixFieldDescription:     {},
	FixFieldBrand:           {},
	FixFieldKaspiCategoryID: {},
}

// Allowed сообщает, входит ли поле в белый список.
func (f FixField) Allowed() bool {
	_, ok := allowedFixFields[f]
	return ok
}

// Virtual сообщает, что поле хранится внутри specs, а не отдельной колонкой.
func (f FixField) Virtual() bool {
	return f == FixFieldKaspiCategoryID
}

// FixSuggestion — разбор отказа модерации и предложенные действия.
type FixSuggestion struct {
	Analysis string      `json:"analysis"`
	Actions  []FixAction `json:"actions"`
}

// FixAction — одно предлагаемое изменение.
type FixAction struct {
	Label   string     `json:"label"`
	Type    string     `json:"type"`
	Payload FixPayload `json:"payload"`
}

// FixPayload — изменяемое поле и новое значение.
type FixPayload struct {
	Field FixField `json:"field"`
	Value string   `json:"value"`
}

// UnmarshalJSON принимает value как строку или число: модели часто возвращают id категории числом.
func (p *FixPayload) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.Field = FixField(strings.TrimSpace(aux.Field))
	p.Value = ""

	value := bytes.TrimSpace(aux.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return nil
	}

	var str string
	if err := json.Unmarshal(value, &str); err == nil {
		p.Value = str
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(value, &num); err != nil {
		return err
	}
	p.Value = num.String()
	return nil
}
