package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Известные ключи набора атрибутов товара.
const (
	SpecStock           = "stock"
	SpecImageURLs       = "image_urls"
	SpecKaspiAttributes = "kaspi_attributes"
	SpecKaspiCategory   = "kaspi_category"
	SpecKaspiCategoryID = "kaspi_category_id"
	SpecKaspiSKU        = "kaspi_sku"
	SpecIsInFeed        = "is_in_feed"
	SpecIsClosed        = "is_closed"
	SpecDescription     = "description"
)

// AttributeCodeSeparator разделяет сегменты кода атрибута маркетплейса, например "Smartphones*Color".
const AttributeCodeSeparator = "*"

// Specs — открытый набор атрибутов товара.
// Типизированные поля только читают известные ключи; исходный JSON хранится целиком,
// поэтому неизвестные и некорректные значения переживают чтение и запись без изменений.
// Отсутствующий или нечитаемый ключ всегда означает значение по умолчанию.
type Specs struct {
	Stock           *int
	ImageURLs       []string
	KaspiAttributes []KaspiAttribute
	KaspiCategory   string
	KaspiCategoryID string
	KaspiSKU        string
	Description     string
	IsInFeed        bool
	IsClosed        bool

	raw map[string]json.RawMessage
}

// KaspiAttribute — атрибут карточки маркетплейса.
type KaspiAttribute struct {
	Code   string
	Name   string
	Values []string
}

// DisplayName возвращает явное имя атрибута или последний сегмент его кода.
func (a KaspiAttribute) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	code := a.Code
	if idx := strings.LastIndex(code, AttributeCodeSeparator); idx >= 0 {
		code = code[idx+len(AttributeCodeSeparator):]
	}
	return strings.TrimSpace(code)
}

// ParseSpecs разбирает JSON-объект атрибутов. NULL и пустой ввод дают пустой набор.
func ParseSpecs(data []byte) (Specs, error) {
	var s Specs
	if err := s.UnmarshalJSON(data); err != nil {
		return Specs{}, err
	}
	return s, nil
}

func (s *Specs) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*s = Specs{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("specs must be a JSON object: %w", err)
	}

	s.raw = raw
	s.refresh()
	return nil
}

func (s Specs) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(s.raw)
}

// With возвращает копию набора, в которой ключ key заменён значением value. Остальные ключи не меняются.
func (s Specs) With(key string, value any) (Specs, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return Specs{}, fmt.Errorf("encode spec %s: %w", key, err)
	}

	raw := make(map[string]json.RawMessage, len(s.raw)+1)
	for k, v := range s.raw {
		raw[k] = v
	}
	raw[key] = encoded

	out := Specs{raw: raw}
	out.refresh()
	return out, nil
}

// Has сообщает, присутствует ли ключ в наборе.
func (s Specs) Has(key string) bool {
	_, ok := s.raw[key]
	return ok
}

// Keys возвращает отсортированный список ключей.
func (s Specs) Keys() []string {
	keys := make([]string, 0, len(s.raw))
	for k := range s.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw возвращает исходное JSON-значение ключа.
func (s Specs) Raw(key string) (json.RawMessage, bool) {
	v, ok := s.raw[key]
	return v, ok
}

// StockOr возвращает остаток или def, если ключ отсутствует.
func (s Specs) StockOr(def int) int {
	if s.Stock == nil {
		return def
	}
	return *s.Stock
}

func (s *Specs) refresh() {
	s.Stock = nil
	if v, ok := s.raw[SpecStock]; ok {
		if n, ok := flexInt(v); ok {
			s.Stock = &n
		}
	}
	s.ImageURLs = flexStrings(s.raw[SpecImageURLs])
	s.KaspiAttributes = parseAttributes(s.raw[SpecKaspiAttributes])
	s.KaspiCategory = flexString(s.raw[SpecKaspiCategory])
	s.KaspiCategoryID = flexString(s.raw[SpecKaspiCategoryID])
	s.KaspiSKU = flexString(s.raw[SpecKaspiSKU])
	s.Description = flexString(s.raw[SpecDescription])
	s.IsInFeed = flexBool(s.raw[SpecIsInFeed])
	s.IsClosed = flexBool(s.raw[SpecIsClosed])
}

func flexString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return strings.TrimSpace(str)
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err == nil {
		return num.String()
	}
	return ""
}

func flexInt(v json.RawMessage) (int, bool) {
	var num json.Number
	if err := json.Unmarshal(v, &num); err != nil {
		str := flexString(v)
		if str == "" {
			return 0, false
		}
		num = json.Number(str)
	}
	if n, err := num.Int64(); err == nil {
		return int(n), true
	}
	if f, err := num.Float64(); err == nil {
		return int(f), true
	}
	return 0, false
}

func flexBool(v json.RawMessage) bool {
	if len(v) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	switch strings.ToLower(flexString(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func flexStrings(v json.RawMessage) []string {
	if len(v) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		if s := flexString(v); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := flexString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseAttributes поддерживает обе формы: объект {code: value} и массив [{code, name, value}].
func parseAttributes(v json.RawMessage) []KaspiAttribute {
	if len(v) == 0 {
		return nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(v, &asMap); err == nil {
		codes := make([]string, 0, len(asMap))
		for code := range asMap {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		attrs := make([]KaspiAttribute, 0, len(codes))
		for _, code := range codes {
			values := flexStrings(asMap[code])
			if len(values) == 0 {
				continue
			}
			attrs = append(attrs, KaspiAttribute{Code: code, Values: values})
		}
		return attrs
	}

	var asList []struct {
		Code  json.RawMessage `json:"code"`
		Name  json.RawMessage `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(v, &asList); err != nil {
		return nil
	}

	attrs := make([]KaspiAttribute, 0, len(asList))
	for _, item := range asList {
		attr := KaspiAttribute{
			Code:   flexString(item.Code),
			Name:   flexString(item.Name),
			Values: flexStrings(item.Value),
		}
		if attr.DisplayName() == "" || len(attr.Values) == 0 {
			continue
		}
		attrs = append(attrs, attr)
	}
	return attrs
}
