package usecase

import (
	"strconv"
	"strings"

	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
)

// skuResolver выбирает SKU предложения по настроенному приоритету источников.
type skuResolver struct {
	order domain.SKUOrder
	codes map[string]string // артикул ERP → код ERP
}

func newSKUResolver(order domain.SKUOrder, codes map[string]string) skuResolver {
	if !order.Valid() {
		order = domain.SKUExplicitFirst
	}
	return skuResolver{order: order, codes: codes}
}

// needsERPCodes сообщает, понадобится ли справочник ERP для разрешения SKU хотя бы одной записи.
func needsERPCodes(order domain.SKUOrder, records []domain.ProductRecord) bool {
	for i := range records {
		if !records[i].FeedEligible() {
			continue
		}
		if order == domain.SKUERPFirst || records[i].Specs.KaspiSKU == "" {
			return true
		}
	}
	return false
}

func (r skuResolver) Resolve(rec *domain.ProductRecord) string {
	explicit := rec.Specs.KaspiSKU
	code := strings.TrimSpace(r.codes[rec.Article()])

	var candidates []string
	if r.order == domain.SKUERPFirst {
		candidates = []string{code, explicit}
	} else {
		candidates = []string{explicit, code}
	}

	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return strconv.FormatInt(rec.ID, 10)
}

// effectiveStock возвращает остаток из specs; при отсутствии или нуле подставляется DefaultStock, если он задан.
func effectiveStock(rec *domain.ProductRecord, s domain.Settings) int {
	stock := rec.Specs.StockOr(0)
	if stock <= 0 && s.DefaultStock > 0 {
		stock = s.DefaultStock
	}
	if stock < 0 {
		stock = 0
	}
	return stock
}

// flattenAttributes разворачивает атрибуты маркетплейса в повторяющиеся пары имя/значение.
func flattenAttributes(attrs []domain.KaspiAttribute) []domain.OfferParam {
	params := make([]domain.OfferParam, 0, len(attrs))
	for _, attr := range attrs {
		name := attr.DisplayName()
		if name == "" {
			continue
		}
		for _, v := range attr.Values {
			params = append(params, domain.OfferParam{Name: name, Value: v})
		}
	}
	return params
}

func offerDescription(rec *domain.ProductRecord) string {
	if rec.Specs.Description != "" {
		return rec.Specs.Description
	}
	return strings.TrimSpace(rec.Description)
}

func offerCategory(rec *domain.ProductRecord, s domain.Settings) string {
	if rec.Specs.KaspiCategory != "" {
		return rec.Specs.KaspiCategory
	}
	return s.DefaultCategory
}

// buildOffer собирает предложение фида из записи конвейера.
func buildOffer(rec *domain.ProductRecord, sku string, s domain.Settings) domain.CatalogOffer {
	stock := effectiveStock(rec, s)

	return domain.CatalogOffer{
		SKU:         sku,
		Model:       strings.TrimSpace(rec.Name),
		Brand:       strings.TrimSpace(rec.Brand),
		Description: offerDescription(rec),
		Category:    offerCategory(rec, s),
		Images:      rec.Specs.ImageURLs,
		Availability: domain.Availability{
			Available:  stock > 0,
			StoreID:    s.StoreID,
			StockCount: stock,
		},
		Price:  RetailPrice(rec.Price, s.RetailDivisor),
		Params: flattenAttributes(rec.Specs.KaspiAttributes),
	}
}

// newStageReq собирает данные записи для внешних этапов конвейера.
func newStageReq(rec *domain.ProductRecord, s domain.Settings) *StageReq {
	return &StageReq{
		ProductID:   rec.ID,
		Article:     rec.Article(),
		Name:        strings.TrimSpace(rec.Name),
		Brand:       strings.TrimSpace(rec.Brand),
		Description: offerDescription(rec),
		Cost:        rec.Price,
		Price:       RetailPrice(rec.Price, s.RetailDivisor),
		Stock:       effectiveStock(rec, s),
		Images:      rec.Specs.ImageURLs,
		Category:    offerCategory(rec, s),
		CategoryID:  rec.Specs.KaspiCategoryID,
		Attributes:  flattenAttributes(rec.Specs.KaspiAttributes),
	}
}
